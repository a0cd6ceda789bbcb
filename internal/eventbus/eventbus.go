// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package eventbus implements the typed fan-out channels that carry
// configuration-change notifications between Config Services, the
// Service Supervisor, and the Flow/DNS Steering Core (spec §2, §4.7).
//
// There is one process-wide Bus, constructed explicitly in cmd/landscaped
// and passed to every subscriber — never a package-level global (§9
// "Global singletons").
package eventbus

import (
	"context"
)

// IfaceEvent reports interface link state transitions observed externally
// (outside the supervisor). Delivery is lossless: Publish blocks (subject to
// ctx) until every subscriber's channel has room.
type IfaceEvent struct {
	Name string
	Up   bool // true = Up(name), false = Down(name)
}

// DnsEvent reports DNS-pipeline-relevant configuration changes.
type DnsEvent struct {
	RuleUpdated    bool
	FlowID         *uint32 // nil means "all flows" / cross-cutting
	GeositeUpdated bool
	FlowUpdated    bool
}

// DstIpEvent reports destination-IP mark table inputs changing.
type DstIpEvent struct {
	GeoIPUpdated bool
}

// RouteEvent reports flow-rule-driven routing changes.
type RouteEvent struct {
	FlowRuleUpdate bool
	FlowID         *uint32
}

// Bus is the process-wide event fan-out. Each event type has its own set of
// subscriber channels so delivery for one type never head-of-line blocks
// another.
type Bus struct {
	iface  *fanout[IfaceEvent]
	dns    *fanout[DnsEvent]
	dstIP  *fanout[DstIpEvent]
	route  *fanout[RouteEvent]
}

// New creates an empty Bus. ifaceBacklog sizes the per-subscriber buffer for
// the lossless IfaceEvent channel (config.FlowConfig.IfaceEventBacklog).
func New(ifaceBacklog int) *Bus {
	if ifaceBacklog <= 0 {
		ifaceBacklog = 16
	}
	return &Bus{
		iface: newFanout[IfaceEvent](ifaceBacklog, false),
		dns:   newFanout[DnsEvent](64, true),
		dstIP: newFanout[DstIpEvent](16, true),
		route: newFanout[RouteEvent](64, true),
	}
}

// SubscribeIface registers a new lossless IfaceEvent subscriber.
func (b *Bus) SubscribeIface() (<-chan IfaceEvent, func()) { return b.iface.subscribe() }

// SubscribeDns registers a new lossy DnsEvent subscriber.
func (b *Bus) SubscribeDns() (<-chan DnsEvent, func()) { return b.dns.subscribe() }

// SubscribeDstIp registers a new lossy DstIpEvent subscriber.
func (b *Bus) SubscribeDstIp() (<-chan DstIpEvent, func()) { return b.dstIP.subscribe() }

// SubscribeRoute registers a new lossy RouteEvent subscriber.
func (b *Bus) SubscribeRoute() (<-chan RouteEvent, func()) { return b.route.subscribe() }

// PublishIface delivers ev to every IfaceEvent subscriber, blocking (subject
// to ctx cancellation) until each has room — iface events must never be
// dropped (§2).
func (b *Bus) PublishIface(ctx context.Context, ev IfaceEvent) error { return b.iface.publish(ctx, ev) }

// PublishDns delivers ev to every DnsEvent subscriber, dropping (and
// counting) on any subscriber whose channel is full.
func (b *Bus) PublishDns(ev DnsEvent) (delivered, dropped int) { return b.dns.publishLossy(ev) }

// PublishDstIp delivers ev to every DstIpEvent subscriber, lossy.
func (b *Bus) PublishDstIp(ev DstIpEvent) (delivered, dropped int) { return b.dstIP.publishLossy(ev) }

// PublishRoute delivers ev to every RouteEvent subscriber, lossy.
func (b *Bus) PublishRoute(ev RouteEvent) (delivered, dropped int) { return b.route.publishLossy(ev) }
