// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configservice

import (
	"context"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/eventbus"
	"grimm.is/flywall/internal/repository"
)

// NewWanIpRuleService wires a ConfigService over WanIpRuleConfig, emitting
// DstIpEvent after every write so internal/steering/dstmark rebuilds its
// (cidr, mark, priority) table (spec §4.4, §4.7). A plain rule edit is
// distinguished from an actual geo-database refresh (see geosource.go) by
// GeoIPUpdated=false; the dstmark consumer rebuilds either way since it
// has no cheaper incremental path (Open Question #2 in SPEC_FULL.md).
func NewWanIpRuleService(repo *repository.Repository[domain.ConfigID, *domain.WanIpRuleConfig], bus *eventbus.Bus) *ConfigService[domain.ConfigID, *domain.WanIpRuleConfig] {
	after := func(ctx context.Context, newList, oldList []*domain.WanIpRuleConfig) {
		bus.PublishDstIp(eventbus.DstIpEvent{GeoIPUpdated: false})
	}
	return New(repo, AfterUpdateFunc[*domain.WanIpRuleConfig](after))
}
