// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configservice

import (
	"context"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/eventbus"
	"grimm.is/flywall/internal/repository"
)

// NewFlowRuleService wires a ConfigService over FlowConfig, emitting
// RouteEvent{FlowRuleUpdate} after every write so internal/steering/flowtable
// rebuilds the mac/ip -> flow_id maps (spec §4.3, §4.7).
func NewFlowRuleService(repo *repository.Repository[domain.ConfigID, *domain.FlowConfig], bus *eventbus.Bus) *ConfigService[domain.ConfigID, *domain.FlowConfig] {
	after := func(ctx context.Context, newList, oldList []*domain.FlowConfig) {
		idOf := func(d *domain.FlowConfig) domain.ConfigID { return d.ID }
		flowOf := func(d *domain.FlowConfig) uint32 { return uint32(d.FlowID) }

		var flowIDPtr *uint32
		if f, single := changedFlowID(newList, oldList, idOf, flowOf); single {
			flowIDPtr = &f
		}
		bus.PublishRoute(eventbus.RouteEvent{FlowRuleUpdate: true, FlowID: flowIDPtr})
	}
	return New(repo, AfterUpdateFunc[*domain.FlowConfig](after))
}
