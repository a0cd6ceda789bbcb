// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dns

import (
	"context"
	"sync"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/errors"
	"grimm.is/flywall/internal/eventbus"
	"grimm.is/flywall/internal/geo"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/repository"
)

// Manager owns the set of per-flow handlers and keeps them in sync with
// DnsEvent notifications from the Configuration Propagation Pipeline
// (spec §4.5 "Cache invalidation on rule change").
type Manager struct {
	mu       sync.RWMutex
	handlers map[domain.FlowID]*FlowDNSHandler

	rules     *repository.Repository[domain.ConfigID, *domain.DNSRuleConfig]
	redirects *repository.Repository[domain.ConfigID, *domain.DNSRedirectRule]
	upstreams *repository.Repository[domain.ConfigID, *domain.DnsUpstreamConfig]
	flows     *repository.Repository[domain.ConfigID, *domain.FlowConfig]
	geo       *geo.Cache
	marks     MarkWriter

	bus         *eventbus.Bus
	baseLog     *logging.Logger
	log         *logging.SubLogger
	unsubscribe func()
	rec         Recorder

	loggedMissingUpstream map[domain.ConfigID]bool
}

// SetRecorder wires rec into every existing and future flow handler so
// internal/metrics can observe cache and resolver behavior.
func (m *Manager) SetRecorder(rec Recorder) {
	m.mu.Lock()
	m.rec = rec
	for _, h := range m.handlers {
		h.SetRecorder(rec)
	}
	m.mu.Unlock()
}

func (m *Manager) newHandler(flowID domain.FlowID) *FlowDNSHandler {
	h := NewFlowDNSHandler(flowID, m.marks, m.baseLog)
	if m.rec != nil {
		h.SetRecorder(m.rec)
	}
	return h
}

// NewManager constructs a Manager and subscribes it to bus's DnsEvent
// stream. Callers must call RebuildAll once at startup to populate the
// initial handler set from the repositories.
func NewManager(
	rules *repository.Repository[domain.ConfigID, *domain.DNSRuleConfig],
	redirects *repository.Repository[domain.ConfigID, *domain.DNSRedirectRule],
	upstreams *repository.Repository[domain.ConfigID, *domain.DnsUpstreamConfig],
	flows *repository.Repository[domain.ConfigID, *domain.FlowConfig],
	geoCache *geo.Cache,
	marks MarkWriter,
	bus *eventbus.Bus,
	log *logging.Logger,
) *Manager {
	m := &Manager{
		handlers:              make(map[domain.FlowID]*FlowDNSHandler),
		rules:                 rules,
		redirects:             redirects,
		upstreams:             upstreams,
		flows:                 flows,
		geo:                   geoCache,
		marks:                 marks,
		bus:                   bus,
		baseLog:               log,
		log:                   log.With("dns.manager"),
		loggedMissingUpstream: make(map[domain.ConfigID]bool),
	}
	if bus != nil {
		ch, unsub := bus.SubscribeDns()
		m.unsubscribe = unsub
		go m.watchEvents(ch)
	}
	return m
}

func (m *Manager) watchEvents(ch <-chan eventbus.DnsEvent) {
	ctx := context.Background()
	for ev := range ch {
		switch {
		case ev.FlowUpdated:
			if err := m.RebuildHandlerSet(ctx); err != nil {
				m.log.Warn("rebuild flow dns handler set: %v", err)
			}
		case ev.GeositeUpdated:
			if err := m.RebuildAll(ctx); err != nil {
				m.log.Warn("rebuild all flow dns rules after geosite update: %v", err)
			}
		case ev.RuleUpdated && ev.FlowID != nil:
			if err := m.RebuildFlow(ctx, domain.FlowID(*ev.FlowID)); err != nil {
				m.log.Warn("rebuild dns rules for flow %d: %v", *ev.FlowID, err)
			}
		case ev.RuleUpdated:
			if err := m.RebuildAll(ctx); err != nil {
				m.log.Warn("rebuild all flow dns rules: %v", err)
			}
		}
	}
}

// Shutdown unsubscribes from the event bus.
func (m *Manager) Shutdown() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Handler returns the FlowDNSHandler for flowID, if one has been built.
func (m *Manager) Handler(flowID domain.FlowID) (*FlowDNSHandler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[flowID]
	return h, ok
}

// CheckDomain runs the "check domain" diagnostic operation against the
// named flow's handler (spec §4.5 "Testable checkability").
func (m *Manager) CheckDomain(flowID domain.FlowID, name string, qtype uint16) (Trace, error) {
	h, ok := m.Handler(flowID)
	if !ok {
		return Trace{}, errors.Errorf(errors.KindNotFound, "flow_rule.not_found")
	}
	return h.CheckDomain(name, qtype), nil
}

// RebuildHandlerSet rebuilds the handler map itself — flows appearing or
// disappearing (spec §4.5: "FlowUpdated rebuilds the handler set").
func (m *Manager) RebuildHandlerSet(ctx context.Context) error {
	flows, err := m.flows.List(ctx)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "list flows")
	}

	want := make(map[domain.FlowID]bool, len(flows))
	for _, f := range flows {
		if f.Enable {
			want[f.FlowID] = true
		}
	}

	m.mu.Lock()
	for id := range m.handlers {
		if !want[id] {
			delete(m.handlers, id)
		}
	}
	for id := range want {
		if _, ok := m.handlers[id]; !ok {
			m.handlers[id] = m.newHandler(id)
		}
	}
	m.mu.Unlock()

	return m.RebuildAll(ctx)
}

// RebuildAll re-materializes every known flow handler's rule set.
func (m *Manager) RebuildAll(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]domain.FlowID, 0, len(m.handlers))
	for id := range m.handlers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var firstErr error
	for _, id := range ids {
		if err := m.RebuildFlow(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RebuildFlow re-materializes one flow's redirects and rules, creating the
// handler if it does not yet exist.
func (m *Manager) RebuildFlow(ctx context.Context, flowID domain.FlowID) error {
	ruleConfigs, err := repository.FindByFlowID[domain.ConfigID, *domain.DNSRuleConfig](ctx, m.rules, flowID)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "list dns rules for flow")
	}
	redirectConfigs, err := repository.FindByFlowID[domain.ConfigID, *domain.DNSRedirectRule](ctx, m.redirects, flowID)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "list dns redirects for flow")
	}

	runtimeRules := m.materializeRules(ctx, ruleConfigs)
	runtimeRedirects := m.materializeRedirects(runtimeRedirectsInput(redirectConfigs))

	m.mu.Lock()
	h, ok := m.handlers[flowID]
	if !ok {
		h = m.newHandler(flowID)
		m.handlers[flowID] = h
	}
	m.mu.Unlock()

	h.SwapRules(runtimeRedirects, runtimeRules)
	return nil
}

func runtimeRedirectsInput(cfgs []*domain.DNSRedirectRule) []*domain.DNSRedirectRule {
	out := make([]*domain.DNSRedirectRule, 0, len(cfgs))
	for _, c := range cfgs {
		if c.Enable {
			out = append(out, c)
		}
	}
	return out
}

func (m *Manager) materializeRedirects(cfgs []*domain.DNSRedirectRule) []runtimeRedirect {
	out := make([]runtimeRedirect, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, runtimeRedirect{
			ID:         c.ID,
			MatchRules: m.expandSources(c.MatchRules),
			ResultInfo: c.ResultInfo,
		})
	}
	return out
}

// materializeRules converts enabled DNSRuleConfigs into runtimeRules,
// expanding GeoKey sources and dereferencing upstream_id (spec §4.5,
// P2: a rule whose upstream doesn't dereference is silently disabled and
// an error is logged exactly once).
func (m *Manager) materializeRules(ctx context.Context, cfgs []*domain.DNSRuleConfig) []runtimeRule {
	out := make([]runtimeRule, 0, len(cfgs))
	for _, c := range cfgs {
		if !c.Enable {
			continue
		}
		upstream, err := m.upstreams.FindByID(ctx, c.UpstreamID)
		if err != nil {
			if !m.loggedMissingUpstream[c.ID] {
				m.log.Warn("dns rule %s: upstream %s does not dereference, disabling rule", c.ID, c.UpstreamID)
				m.loggedMissingUpstream[c.ID] = true
			}
			continue
		}
		delete(m.loggedMissingUpstream, c.ID)

		out = append(out, runtimeRule{
			ID:       c.ID,
			Index:    c.Index,
			Filter:   c.Filter,
			Bind:     c.Bind,
			Mark:     c.Mark,
			Sources:  m.expandSources(c.Source),
			Upstream: *upstream,
		})
	}
	return out
}

func (m *Manager) expandSources(sources []domain.RuleSource) []domain.DomainConfig {
	out := make([]domain.DomainConfig, 0, len(sources))
	for _, s := range sources {
		switch s.Kind {
		case domain.SourceConfig:
			if s.Config != nil {
				out = append(out, *s.Config)
			}
		case domain.SourceGeoKey:
			if s.GeoKey == nil || m.geo == nil {
				continue
			}
			domains, err := m.geo.ResolveDomains(*s.GeoKey)
			if err != nil {
				m.log.Warn("resolve geo key %s:%s: %v", s.GeoKey.Name, s.GeoKey.Key, err)
				continue
			}
			out = append(out, domains...)
		}
	}
	return out
}

