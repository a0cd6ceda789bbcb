// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ifaceip implements the iface_ip service kind (spec §4.6):
// provisioning an interface's L3 address, either statically, via a DHCPv4
// client, via a DHCPv6-PD delegated prefix, or by dialing PPPoE.
//
// Grounded on the teacher's applyInterfaceConfigWithConfig
// (internal/ctlplane/network_manager.go): flush the interface's existing
// addresses, reassign statically configured ones via netlink, or hand the
// interface to a client (DHCPv4/PPPoE) that assigns addresses itself.
package ifaceip

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4/nclient4"
	"github.com/vishvananda/netlink"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/services"
	"grimm.is/flywall/internal/supervisor"
)

// Starter implements supervisor.Starter[*domain.IfaceIPPayload].
type Starter struct {
	Log *logging.Logger

	// PPPDir is where PPPoE peer files are written, defaulting to
	// /etc/ppp/peers (spec §6).
	PPPDir string
}

func New(log *logging.Logger) *Starter {
	return &Starter{Log: log, PPPDir: "/etc/ppp/peers"}
}

func (s *Starter) Start(ctx context.Context, iface string, cfg *domain.IfaceIPPayload) (*supervisor.WatchService, error) {
	log := s.Log.With("ifaceip").With(iface)
	w := supervisor.NewWatchService()

	link, err := netlink.LinkByName(iface)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", iface, err)
	}

	if err := flushAddresses(link); err != nil {
		log.Warn("flush addresses: %v", err)
	}

	var stopClient func()

	switch cfg.Mode {
	case "static":
		if err := addStaticAddresses(link, cfg.Static); err != nil {
			return nil, fmt.Errorf("add static addresses on %s: %w", iface, err)
		}
		if cfg.Gateway != "" {
			if err := addDefaultRoute(link, cfg.Gateway); err != nil {
				log.Warn("add default route via %s: %v", cfg.Gateway, err)
			}
		}
		stopClient = func() {}

	case "dhcp4":
		clientCtx, cancel := context.WithCancel(context.Background())
		go runDHCPv4Client(clientCtx, iface, log)
		stopClient = cancel

	case "pppoe":
		if err := writePPPoEPeerFile(s.PPPDir, iface, cfg.PPPoEUser, string(cfg.PPPoEPass)); err != nil {
			return nil, fmt.Errorf("write pppoe peer file for %s: %w", iface, err)
		}
		cmd := exec.Command("pppd", "call", iface)
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("dial pppoe on %s: %w", iface, err)
		}
		stopClient = func() {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			_ = os.Remove(filepath.Join(s.PPPDir, iface))
		}

	case "dhcp6pd":
		// The delegated prefix itself is handled by the dhcpv6pd starter;
		// here we only need the interface up so RA/DHCPv6 solicitations
		// can go out.
		stopClient = func() {}

	default:
		return nil, fmt.Errorf("unknown iface_ip mode %q", cfg.Mode)
	}

	if err := netlink.LinkSetUp(link); err != nil {
		stopClient()
		return nil, fmt.Errorf("link up %s: %w", iface, err)
	}

	w.JustChangeStatus(supervisor.StatusRunning)
	services.RunUntilStopping(w, func() {
		stopClient()
		log.Info("stopped")
	})
	return w, nil
}

func flushAddresses(link netlink.Link) error {
	for _, family := range []int{netlink.FAMILY_V4, netlink.FAMILY_V6} {
		addrs, err := netlink.AddrList(link, family)
		if err != nil {
			return err
		}
		for _, addr := range addrs {
			if err := netlink.AddrDel(link, &addr); err != nil {
				return err
			}
		}
	}
	return nil
}

func addStaticAddresses(link netlink.Link, cidrs []string) error {
	for _, cidr := range cidrs {
		addr, err := netlink.ParseAddr(cidr)
		if err != nil {
			return fmt.Errorf("parse address %q: %w", cidr, err)
		}
		if err := netlink.AddrAdd(link, addr); err != nil {
			return fmt.Errorf("add address %q: %w", cidr, err)
		}
	}
	return nil
}

func addDefaultRoute(link netlink.Link, gateway string) error {
	gw := netlink.Route{
		LinkIndex: link.Attrs().Index,
		Gw:        net.ParseIP(gateway),
	}
	return netlink.RouteReplace(&gw)
}

// runDHCPv4Client runs a DHCPv4 client on iface until ctx is cancelled,
// renewing as leases approach expiry and reapplying the offered address.
func runDHCPv4Client(ctx context.Context, iface string, log *logging.SubLogger) {
	client, err := nclient4.New(iface)
	if err != nil {
		log.Warn("dhcpv4 client init: %v", err)
		return
	}
	defer client.Close()

	link, err := netlink.LinkByName(iface)
	if err != nil {
		log.Warn("resolve %s for dhcp4: %v", iface, err)
		return
	}

	for {
		lease, err := client.Request(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("dhcpv4 request on %s: %v", iface, err)
			time.Sleep(5 * time.Second)
			continue
		}

		ack := lease.ACK
		leaseTime := ack.IPAddressLeaseTime(30 * time.Minute)
		ip := ack.YourIPAddr
		mask := ack.SubnetMask()

		prefixLen, _ := mask.Size()
		cidr := fmt.Sprintf("%s/%d", ip.String(), prefixLen)
		parsed, err := netlink.ParseAddr(cidr)
		if err == nil {
			_ = netlink.AddrReplace(link, parsed)
		}

		if gw := ack.Router(); len(gw) > 0 {
			_ = netlink.RouteReplace(&netlink.Route{LinkIndex: link.Attrs().Index, Gw: gw[0]})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(renewDelay(leaseTime)):
		}
	}
}

func renewDelay(lease time.Duration) time.Duration {
	d := lease / 2
	if d <= 0 {
		d = time.Minute
	}
	return d
}

func writePPPoEPeerFile(dir, iface, user, pass string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	content := fmt.Sprintf("plugin rp-pppoe.so\nnic-%s\nuser %q\npassword %q\npersist\nnoipdefault\nusepeerdns\n",
		iface, user, pass)
	return os.WriteFile(filepath.Join(dir, iface), []byte(content), 0o600)
}
