// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configservice

import (
	"context"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/eventbus"
	"grimm.is/flywall/internal/repository"
)

// NewFirewallRuleService wires a ConfigService over FirewallRuleConfig.
// Firewall rules resolve through the same Geo/IP source machinery as
// WanIpRuleConfig (DstIpSource), so their writes drive the same
// firewall-blacklist/firewall-map resync path (scenario 6c in spec §8).
func NewFirewallRuleService(repo *repository.Repository[domain.ConfigID, *domain.FirewallRuleConfig], bus *eventbus.Bus) *ConfigService[domain.ConfigID, *domain.FirewallRuleConfig] {
	after := func(ctx context.Context, newList, oldList []*domain.FirewallRuleConfig) {
		bus.PublishDstIp(eventbus.DstIpEvent{GeoIPUpdated: false})
	}
	return New(repo, AfterUpdateFunc[*domain.FirewallRuleConfig](after))
}

// NewFirewallBlacklistService wires a ConfigService over
// FirewallBlacklistConfig, same rebuild path as firewall rules.
func NewFirewallBlacklistService(repo *repository.Repository[domain.ConfigID, *domain.FirewallBlacklistConfig], bus *eventbus.Bus) *ConfigService[domain.ConfigID, *domain.FirewallBlacklistConfig] {
	after := func(ctx context.Context, newList, oldList []*domain.FirewallBlacklistConfig) {
		bus.PublishDstIp(eventbus.DstIpEvent{GeoIPUpdated: false})
	}
	return New(repo, AfterUpdateFunc[*domain.FirewallBlacklistConfig](after))
}

// NewStaticNatMappingService wires a ConfigService over StaticNatMapping.
// It has no after-update hook, so writes publish no bus event. No package
// in the daemon reads these rows into kernel maps: the NAT starter
// (internal/services/nat) only attaches its programs and drains conntrack
// events.
func NewStaticNatMappingService(repo *repository.Repository[domain.ConfigID, *domain.StaticNatMapping]) *ConfigService[domain.ConfigID, *domain.StaticNatMapping] {
	return New[domain.ConfigID, *domain.StaticNatMapping](repo, nil)
}

// NewEnrolledDeviceService wires a ConfigService over EnrolledDevice.
// Enrolled devices feed DHCPv4 static bindings. Writes publish no bus
// event; the DHCPv4 starter reads the device list once when it starts, so
// a change reaches a running lease pool only when that service restarts.
func NewEnrolledDeviceService(repo *repository.Repository[domain.ConfigID, *domain.EnrolledDevice]) *ConfigService[domain.ConfigID, *domain.EnrolledDevice] {
	return New[domain.ConfigID, *domain.EnrolledDevice](repo, nil)
}
