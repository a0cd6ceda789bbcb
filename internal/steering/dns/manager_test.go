// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dns

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/miekg/dns"
	_ "modernc.org/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/eventbus"
	"grimm.is/flywall/internal/repository"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newRulesRepo(t *testing.T, db *sql.DB) *repository.Repository[domain.ConfigID, *domain.DNSRuleConfig] {
	t.Helper()
	repo, err := repository.New[domain.ConfigID, *domain.DNSRuleConfig](context.Background(), repository.Options[domain.ConfigID, *domain.DNSRuleConfig]{
		DB:         db,
		Table:      "dns_rule_configs",
		IDToString: repository.UUIDIDToString,
		NewZero:    func() *domain.DNSRuleConfig { return &domain.DNSRuleConfig{} },
	})
	require.NoError(t, err)
	return repo
}

func newRedirectsRepo(t *testing.T, db *sql.DB) *repository.Repository[domain.ConfigID, *domain.DNSRedirectRule] {
	t.Helper()
	repo, err := repository.New[domain.ConfigID, *domain.DNSRedirectRule](context.Background(), repository.Options[domain.ConfigID, *domain.DNSRedirectRule]{
		DB:         db,
		Table:      "dns_redirect_rules",
		IDToString: repository.UUIDIDToString,
		NewZero:    func() *domain.DNSRedirectRule { return &domain.DNSRedirectRule{} },
	})
	require.NoError(t, err)
	return repo
}

func newUpstreamsRepo(t *testing.T, db *sql.DB) *repository.Repository[domain.ConfigID, *domain.DnsUpstreamConfig] {
	t.Helper()
	repo, err := repository.New[domain.ConfigID, *domain.DnsUpstreamConfig](context.Background(), repository.Options[domain.ConfigID, *domain.DnsUpstreamConfig]{
		DB:         db,
		Table:      "dns_upstream_configs",
		IDToString: repository.UUIDIDToString,
		NewZero:    func() *domain.DnsUpstreamConfig { return &domain.DnsUpstreamConfig{} },
	})
	require.NoError(t, err)
	return repo
}

func newFlowsRepo(t *testing.T, db *sql.DB) *repository.Repository[domain.ConfigID, *domain.FlowConfig] {
	t.Helper()
	repo, err := repository.New[domain.ConfigID, *domain.FlowConfig](context.Background(), repository.Options[domain.ConfigID, *domain.FlowConfig]{
		DB:         db,
		Table:      "flow_configs",
		IDToString: repository.UUIDIDToString,
		NewZero:    func() *domain.FlowConfig { return &domain.FlowConfig{} },
	})
	require.NoError(t, err)
	return repo
}

func newTestManager(t *testing.T) (*Manager, *fakeMarkWriter, *repository.Repository[domain.ConfigID, *domain.DNSRuleConfig], *repository.Repository[domain.ConfigID, *domain.DnsUpstreamConfig], *repository.Repository[domain.ConfigID, *domain.FlowConfig]) {
	t.Helper()
	db := newTestDB(t)
	rules := newRulesRepo(t, db)
	redirects := newRedirectsRepo(t, db)
	upstreams := newUpstreamsRepo(t, db)
	flows := newFlowsRepo(t, db)
	marks := newFakeMarkWriter()

	m := NewManager(rules, redirects, upstreams, flows, nil, marks, nil, testLogger())
	t.Cleanup(m.Shutdown)
	return m, marks, rules, upstreams, flows
}

func TestManager_RebuildFlow_MaterializesRuleAndDereferencesUpstream(t *testing.T) {
	m, _, rules, upstreams, flows := newTestManager(t)
	ctx := context.Background()

	flow := &domain.FlowConfig{ID: domain.NewConfigID(), FlowID: 5, Enable: true}
	require.NoError(t, flows.Set(ctx, flow))

	up := &domain.DnsUpstreamConfig{ID: domain.NewConfigID(), Mode: domain.UpstreamPlaintext, IPs: []string{"9.9.9.9"}}
	require.NoError(t, upstreams.Set(ctx, up))

	rule := &domain.DNSRuleConfig{
		ID:         domain.NewConfigID(),
		Index:      1,
		Enable:     true,
		FlowID:     5,
		UpstreamID: up.ID,
		Source:     []domain.RuleSource{{Kind: domain.SourceConfig, Config: &domain.DomainConfig{MatchType: domain.MatchDomain, Value: "example.com"}}},
	}
	require.NoError(t, rules.Set(ctx, rule))

	require.NoError(t, m.RebuildHandlerSet(ctx))

	h, ok := m.Handler(5)
	require.True(t, ok)
	trace := h.CheckDomain("www.example.com.", dns.TypeA)
	require.NotNil(t, trace.RuleID)
	assert.Equal(t, rule.ID, *trace.RuleID)
}

func TestManager_RebuildFlow_MissingUpstreamDisablesRule(t *testing.T) {
	m, _, rules, _, flows := newTestManager(t)
	ctx := context.Background()

	flow := &domain.FlowConfig{ID: domain.NewConfigID(), FlowID: 7, Enable: true}
	require.NoError(t, flows.Set(ctx, flow))

	rule := &domain.DNSRuleConfig{
		ID:         domain.NewConfigID(),
		Index:      1,
		Enable:     true,
		FlowID:     7,
		UpstreamID: domain.NewConfigID(), // does not dereference
		Source:     []domain.RuleSource{{Kind: domain.SourceConfig, Config: &domain.DomainConfig{MatchType: domain.MatchDomain, Value: "example.com"}}},
	}
	require.NoError(t, rules.Set(ctx, rule))

	require.NoError(t, m.RebuildHandlerSet(ctx))

	h, ok := m.Handler(7)
	require.True(t, ok)
	trace := h.CheckDomain("www.example.com.", dns.TypeA)
	require.Error(t, trace.Err)
}

func TestManager_CheckDomain_UnknownFlow(t *testing.T) {
	m, _, _, _, _ := newTestManager(t)
	_, err := m.CheckDomain(999, "example.com.", dns.TypeA)
	require.Error(t, err)
}

func TestManager_RebuildHandlerSet_RemovesDisabledFlow(t *testing.T) {
	m, _, _, _, flows := newTestManager(t)
	ctx := context.Background()

	flow := &domain.FlowConfig{ID: domain.NewConfigID(), FlowID: 9, Enable: true}
	require.NoError(t, flows.Set(ctx, flow))
	require.NoError(t, m.RebuildHandlerSet(ctx))

	_, ok := m.Handler(9)
	require.True(t, ok)

	flow.Enable = false
	require.NoError(t, flows.Set(ctx, flow))
	require.NoError(t, m.RebuildHandlerSet(ctx))

	_, ok = m.Handler(9)
	assert.False(t, ok)
}

func TestManager_RuleUpdatedEvent_RebuildsFlow(t *testing.T) {
	db := newTestDB(t)
	rules := newRulesRepo(t, db)
	redirects := newRedirectsRepo(t, db)
	upstreams := newUpstreamsRepo(t, db)
	flows := newFlowsRepo(t, db)
	bus := eventbus.New(4)

	m := NewManager(rules, redirects, upstreams, flows, nil, newFakeMarkWriter(), bus, testLogger())
	t.Cleanup(m.Shutdown)
	ctx := context.Background()

	flow := &domain.FlowConfig{ID: domain.NewConfigID(), FlowID: 11, Enable: true}
	require.NoError(t, flows.Set(ctx, flow))
	require.NoError(t, m.RebuildHandlerSet(ctx))

	up := &domain.DnsUpstreamConfig{ID: domain.NewConfigID(), Mode: domain.UpstreamPlaintext, IPs: []string{"9.9.9.9"}}
	require.NoError(t, upstreams.Set(ctx, up))
	rule := &domain.DNSRuleConfig{
		ID:         domain.NewConfigID(),
		Index:      1,
		Enable:     true,
		FlowID:     11,
		UpstreamID: up.ID,
		Source:     []domain.RuleSource{{Kind: domain.SourceConfig, Config: &domain.DomainConfig{MatchType: domain.MatchFull, Value: "exact.test."}}},
	}
	require.NoError(t, rules.Set(ctx, rule))

	flowID := uint32(11)
	delivered, _ := bus.PublishDns(eventbus.DnsEvent{RuleUpdated: true, FlowID: &flowID})
	require.Equal(t, 1, delivered)

	require.Eventually(t, func() bool {
		h, ok := m.Handler(11)
		if !ok {
			return false
		}
		return h.CheckDomain("exact.test.", dns.TypeA).RuleID != nil
	}, time.Second, 10*time.Millisecond)
}
