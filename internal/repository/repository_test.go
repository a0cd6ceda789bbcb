// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/domain"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestRepo(t *testing.T, db *sql.DB, clock Clock) *Repository[domain.ConfigID, *domain.FlowConfig] {
	t.Helper()
	repo, err := New[domain.ConfigID, *domain.FlowConfig](context.Background(), Options[domain.ConfigID, *domain.FlowConfig]{
		DB:         db,
		Table:      "flow_configs",
		Clock:      clock,
		IDToString: UUIDIDToString,
		NewZero:    func() *domain.FlowConfig { return &domain.FlowConfig{} },
	})
	require.NoError(t, err)
	return repo
}

func TestRepository_SetAndFindByID(t *testing.T) {
	db := testDB(t)
	repo := newTestRepo(t, db, nil)
	ctx := context.Background()

	fc := &domain.FlowConfig{ID: domain.NewConfigID(), FlowID: 7, Enable: true}
	require.NoError(t, repo.Set(ctx, fc))

	got, err := repo.FindByID(ctx, fc.ID)
	require.NoError(t, err)
	assert.Equal(t, fc.FlowID, got.FlowID)
	assert.True(t, got.UpdateAt > 0)
}

func TestRepository_FindByID_NotFound(t *testing.T) {
	db := testDB(t)
	repo := newTestRepo(t, db, nil)

	_, err := repo.FindByID(context.Background(), domain.NewConfigID())
	require.Error(t, err)
}

func TestRepository_List(t *testing.T) {
	db := testDB(t)
	repo := newTestRepo(t, db, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Set(ctx, &domain.FlowConfig{ID: domain.NewConfigID(), FlowID: domain.FlowID(i)}))
	}

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRepository_Delete_Idempotent(t *testing.T) {
	db := testDB(t)
	repo := newTestRepo(t, db, nil)
	ctx := context.Background()

	id := domain.NewConfigID()
	require.NoError(t, repo.Delete(ctx, id))

	fc := &domain.FlowConfig{ID: id, FlowID: 1}
	require.NoError(t, repo.Set(ctx, fc))
	require.NoError(t, repo.Delete(ctx, id))
	require.NoError(t, repo.Delete(ctx, id))

	_, err := repo.FindByID(ctx, id)
	assert.Error(t, err)
}

func TestRepository_CheckedSet_RejectsStale(t *testing.T) {
	db := testDB(t)
	tick := 100.0
	clock := func() float64 {
		tick++
		return tick
	}
	repo := newTestRepo(t, db, clock)
	ctx := context.Background()

	id := domain.NewConfigID()
	first := &domain.FlowConfig{ID: id, FlowID: 1, UpdateAt: 0}
	require.NoError(t, repo.CheckedSet(ctx, first))
	storedAt := first.UpdateAt

	stale := &domain.FlowConfig{ID: id, FlowID: 2, UpdateAt: storedAt - 1}
	err := repo.CheckedSet(ctx, stale)
	require.Error(t, err)

	fresh := &domain.FlowConfig{ID: id, FlowID: 3, UpdateAt: storedAt}
	require.NoError(t, repo.CheckedSet(ctx, fresh))

	got, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowID(3), got.FlowID)
}

func TestRepository_FindByIDs_SkipsMissing(t *testing.T) {
	db := testDB(t)
	repo := newTestRepo(t, db, nil)
	ctx := context.Background()

	present := domain.NewConfigID()
	missing := domain.NewConfigID()
	require.NoError(t, repo.Set(ctx, &domain.FlowConfig{ID: present, FlowID: 9}))

	got, err := repo.FindByIDs(ctx, []domain.ConfigID{present, missing})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, present, got[0].ID)
}
