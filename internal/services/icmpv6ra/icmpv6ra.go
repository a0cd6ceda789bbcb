// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package icmpv6ra implements the icmpv6ra service kind (spec §4.6): a
// Router Advertisement server on a LAN interface, announcing the prefix
// currently delegated to the WAN side. It subscribes to
// internal/services/dhcpv6pd's IAPrefixMap rather than polling it (spec §9
// "push, don't poll"). Built against github.com/mdlayher/ndp per
// SPEC_FULL.md's DOMAIN STACK entry; no in-pack example exercises RA
// serving.
package icmpv6ra

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/mdlayher/ndp"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/services"
	"grimm.is/flywall/internal/services/dhcpv6pd"
	"grimm.is/flywall/internal/supervisor"
)

// WanIface names the WAN-side interface whose delegated prefix this LAN
// interface should advertise; cmd/landscaped sets it at construction time
// from the -wan-iface flag.
type Starter struct {
	Log      *logging.Logger
	Prefixes *dhcpv6pd.IAPrefixMap
	WanIface string
}

func New(log *logging.Logger, prefixes *dhcpv6pd.IAPrefixMap, wanIface string) *Starter {
	return &Starter{Log: log, Prefixes: prefixes, WanIface: wanIface}
}

func (s *Starter) Start(ctx context.Context, iface string, cfg *domain.ICMPv6RAPayload) (*supervisor.WatchService, error) {
	log := s.Log.With("icmpv6ra").With(iface)
	w := supervisor.NewWatchService()

	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", iface, err)
	}
	conn, _, err := ndp.Listen(ifi, ndp.LinkLocal)
	if err != nil {
		return nil, fmt.Errorf("open icmpv6 socket on %s: %w", iface, err)
	}

	updates, unsubscribe := s.Prefixes.Subscribe()

	runCtx, cancel := context.WithCancel(context.Background())
	go s.advertiseLoop(runCtx, conn, iface, cfg, updates, log)

	w.JustChangeStatus(supervisor.StatusRunning)
	services.RunUntilStopping(w, func() {
		cancel()
		unsubscribe()
		conn.Close()
		log.Info("stopped")
	})
	return w, nil
}

func (s *Starter) advertiseLoop(ctx context.Context, conn *ndp.Conn, iface string, cfg *domain.ICMPv6RAPayload, updates <-chan dhcpv6pd.PrefixUpdate, log *logging.SubLogger) {
	var current net.IPNet
	if p, ok := s.Prefixes.Current(s.WanIface); ok {
		current = p
	}

	ticker := time.NewTicker(200 * time.Second) // unsolicited RA interval
	defer ticker.Stop()

	send := func() {
		if current.IP == nil {
			return
		}
		if err := sendRA(conn, current, cfg); err != nil {
			log.Warn("send RA on %s: %v", iface, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			if u.Iface != s.WanIface {
				continue
			}
			current = u.Prefix
			send()
		case <-ticker.C:
			send()
		}
	}
}

var allNodesMulticast = netip.MustParseAddr("ff02::1")

func sendRA(conn *ndp.Conn, prefix net.IPNet, cfg *domain.ICMPv6RAPayload) error {
	ones, _ := prefix.Mask.Size()
	addr, ok := netip.AddrFromSlice(prefix.IP.To16())
	if !ok {
		return fmt.Errorf("invalid prefix address %s", prefix.IP)
	}

	msg := &ndp.RouterAdvertisement{
		RouterLifetime:           30 * time.Minute,
		ManagedConfiguration:     cfg.ManagedFlag,
		OtherConfiguration:       cfg.OtherConfigFlag,
		Options: []ndp.Option{
			&ndp.PrefixInformation{
				PrefixLength:                   uint8(ones),
				OnLink:                         true,
				AutonomousAddressConfiguration: true,
				ValidLifetime:                  24 * time.Hour,
				PreferredLifetime:              4 * time.Hour,
				Prefix:                         addr,
			},
		},
	}
	return conn.WriteTo(msg, nil, allNodesMulticast)
}
