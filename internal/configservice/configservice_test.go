// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configservice

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/eventbus"
	"grimm.is/flywall/internal/repository"
)

func newFlowRuleRepo(t *testing.T) *repository.Repository[domain.ConfigID, *domain.FlowConfig] {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := repository.New[domain.ConfigID, *domain.FlowConfig](context.Background(), repository.Options[domain.ConfigID, *domain.FlowConfig]{
		DB:         db,
		Table:      "flow_configs",
		IDToString: repository.UUIDIDToString,
		NewZero:    func() *domain.FlowConfig { return &domain.FlowConfig{} },
	})
	require.NoError(t, err)
	return repo
}

func TestFlowRuleService_Set_EmitsSingleFlowRouteEvent(t *testing.T) {
	repo := newFlowRuleRepo(t)
	bus := eventbus.New(4)
	svc := NewFlowRuleService(repo, bus)

	ch, unsub := bus.SubscribeRoute()
	defer unsub()

	fc := &domain.FlowConfig{ID: domain.NewConfigID(), FlowID: 3, Enable: true}
	require.NoError(t, svc.Set(context.Background(), fc))

	select {
	case ev := <-ch:
		assert.True(t, ev.FlowRuleUpdate)
		require.NotNil(t, ev.FlowID)
		assert.Equal(t, uint32(3), *ev.FlowID)
	default:
		t.Fatal("expected a RouteEvent to have been published")
	}
}

func TestFlowRuleService_SetList_CrossCuttingEventHasNoFlowID(t *testing.T) {
	repo := newFlowRuleRepo(t)
	bus := eventbus.New(4)
	svc := NewFlowRuleService(repo, bus)

	ch, unsub := bus.SubscribeRoute()
	defer unsub()

	list := []*domain.FlowConfig{
		{ID: domain.NewConfigID(), FlowID: 1, Enable: true},
		{ID: domain.NewConfigID(), FlowID: 2, Enable: true},
	}
	require.NoError(t, svc.SetList(context.Background(), list))

	select {
	case ev := <-ch:
		assert.True(t, ev.FlowRuleUpdate)
		assert.Nil(t, ev.FlowID)
	default:
		t.Fatal("expected a RouteEvent to have been published")
	}
}

func TestFlowRuleService_Delete_PropagatesAndEmits(t *testing.T) {
	repo := newFlowRuleRepo(t)
	bus := eventbus.New(4)
	svc := NewFlowRuleService(repo, bus)

	fc := &domain.FlowConfig{ID: domain.NewConfigID(), FlowID: 5, Enable: true}
	require.NoError(t, svc.Set(context.Background(), fc))

	ch, unsub := bus.SubscribeRoute()
	defer unsub()

	require.NoError(t, svc.Delete(context.Background(), fc.ID))

	all, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	select {
	case ev := <-ch:
		assert.True(t, ev.FlowRuleUpdate)
		require.NotNil(t, ev.FlowID)
		assert.Equal(t, uint32(5), *ev.FlowID)
	default:
		t.Fatal("expected a RouteEvent on delete")
	}
}
