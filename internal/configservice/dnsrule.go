// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configservice

import (
	"context"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/eventbus"
	"grimm.is/flywall/internal/repository"
)

// NewDNSRuleService wires a ConfigService over DNSRuleConfig, emitting
// DnsEvent{RuleUpdated} after every write (spec §4.5, §4.7).
func NewDNSRuleService(repo *repository.Repository[domain.ConfigID, *domain.DNSRuleConfig], bus *eventbus.Bus) *ConfigService[domain.ConfigID, *domain.DNSRuleConfig] {
	after := func(ctx context.Context, newList, oldList []*domain.DNSRuleConfig) {
		idOf := func(d *domain.DNSRuleConfig) domain.ConfigID { return d.ID }
		flowOf := func(d *domain.DNSRuleConfig) uint32 { return uint32(d.FlowID) }

		var flowIDPtr *uint32
		if f, single := changedFlowID(newList, oldList, idOf, flowOf); single {
			flowIDPtr = &f
		}
		bus.PublishDns(eventbus.DnsEvent{RuleUpdated: true, FlowID: flowIDPtr})
	}
	return New(repo, AfterUpdateFunc[*domain.DNSRuleConfig](after))
}

// NewDNSRedirectService wires a ConfigService over DNSRedirectRule. A
// redirect is not itself flow-keyed the same way a DNSRuleConfig is (it
// carries a list of ApplyFlows), so every write is treated as
// cross-cutting (flow_id: None) per §4.7 step 3.
func NewDNSRedirectService(repo *repository.Repository[domain.ConfigID, *domain.DNSRedirectRule], bus *eventbus.Bus) *ConfigService[domain.ConfigID, *domain.DNSRedirectRule] {
	after := func(ctx context.Context, newList, oldList []*domain.DNSRedirectRule) {
		bus.PublishDns(eventbus.DnsEvent{RuleUpdated: true})
	}
	return New(repo, AfterUpdateFunc[*domain.DNSRedirectRule](after))
}

// NewDNSUpstreamService wires a ConfigService over DnsUpstreamConfig.
// Upstreams are referenced by id at rule-materialization time (§9 "Cyclic
// references"), so an upstream edit is cross-cutting: every DNS rule that
// references it must re-materialize.
func NewDNSUpstreamService(repo *repository.Repository[domain.ConfigID, *domain.DnsUpstreamConfig], bus *eventbus.Bus) *ConfigService[domain.ConfigID, *domain.DnsUpstreamConfig] {
	after := func(ctx context.Context, newList, oldList []*domain.DnsUpstreamConfig) {
		bus.PublishDns(eventbus.DnsEvent{RuleUpdated: true})
	}
	return New(repo, AfterUpdateFunc[*domain.DnsUpstreamConfig](after))
}
