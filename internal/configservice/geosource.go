// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configservice

import (
	"context"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/eventbus"
	"grimm.is/flywall/internal/repository"
)

// NewGeoSourceService wires a ConfigService over GeoSourceConfig. Adding,
// removing, or re-pointing a geo source changes which sites/CIDRs are
// available to every consumer, so it always fires a cross-cutting
// DnsEvent{GeositeUpdated} and DstIpEvent{GeoIPUpdated: true} (spec §4.7,
// scenario 6). This hook only covers source-config edits; no package in
// the daemon re-downloads or re-parses geosite.dat/geoip.dat on a timer,
// and nothing else publishes these events.
func NewGeoSourceService(repo *repository.Repository[domain.ConfigID, *domain.GeoSourceConfig], bus *eventbus.Bus) *ConfigService[domain.ConfigID, *domain.GeoSourceConfig] {
	after := func(ctx context.Context, newList, oldList []*domain.GeoSourceConfig) {
		bus.PublishDns(eventbus.DnsEvent{GeositeUpdated: true})
		bus.PublishDstIp(eventbus.DstIpEvent{GeoIPUpdated: true})
	}
	return New(repo, AfterUpdateFunc[*domain.GeoSourceConfig](after))
}
