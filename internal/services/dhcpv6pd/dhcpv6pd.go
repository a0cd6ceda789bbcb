// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package dhcpv6pd implements the ipv6pd service kind (spec §4.6): a
// DHCPv6 Prefix Delegation client soliciting a delegated prefix on the WAN
// interface and publishing it into a shared, subscription-based
// IAPrefixMap that internal/services/icmpv6ra reads from (spec §9 "push,
// don't poll"). No in-pack example exercises client-side DHCPv6; built
// directly against insomniacslk/dhcp's dhcpv6/nclient6 per SPEC_FULL.md's
// DOMAIN STACK entry for this component.
package dhcpv6pd

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv6"
	"github.com/insomniacslk/dhcp/dhcpv6/nclient6"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/services"
	"grimm.is/flywall/internal/supervisor"
)

// IAPrefixMap is the shared, process-wide store of delegated prefixes per
// WAN interface, fed by the PD client and consumed by the RA server. It is
// a publish point, not a poll target: subscribers receive a value on every
// change rather than re-reading on a timer.
type IAPrefixMap struct {
	mu   sync.Mutex
	byIf map[string]net.IPNet
	subs []chan PrefixUpdate
}

// PrefixUpdate is delivered to every subscriber whenever an interface's
// delegated prefix is learned, renewed, or withdrawn (Prefix is the zero
// value on withdrawal).
type PrefixUpdate struct {
	Iface  string
	Prefix net.IPNet
}

func NewIAPrefixMap() *IAPrefixMap {
	return &IAPrefixMap{byIf: make(map[string]net.IPNet)}
}

// Subscribe registers a channel that receives every future update. The
// returned unsubscribe func must be called when the reader stops.
func (m *IAPrefixMap) Subscribe() (<-chan PrefixUpdate, func()) {
	ch := make(chan PrefixUpdate, 4)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, c := range m.subs {
			if c == ch {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

// Current returns the last known prefix for iface, if any.
func (m *IAPrefixMap) Current(iface string) (net.IPNet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byIf[iface]
	return p, ok
}

func (m *IAPrefixMap) set(iface string, prefix net.IPNet) {
	m.mu.Lock()
	m.byIf[iface] = prefix
	subs := append([]chan PrefixUpdate(nil), m.subs...)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- PrefixUpdate{Iface: iface, Prefix: prefix}:
		default:
		}
	}
}

func (m *IAPrefixMap) withdraw(iface string) {
	m.mu.Lock()
	delete(m.byIf, iface)
	m.mu.Unlock()
	m.set(iface, net.IPNet{})
}

// Starter implements supervisor.Starter[*domain.DHCPv6PDPayload].
type Starter struct {
	Log     *logging.Logger
	Prefixes *IAPrefixMap
}

func New(log *logging.Logger, prefixes *IAPrefixMap) *Starter {
	return &Starter{Log: log, Prefixes: prefixes}
}

func (s *Starter) Start(ctx context.Context, iface string, cfg *domain.DHCPv6PDPayload) (*supervisor.WatchService, error) {
	log := s.Log.With("dhcpv6pd").With(iface)
	w := supervisor.NewWatchService()

	client, err := nclient6.New(iface)
	if err != nil {
		return nil, fmt.Errorf("dhcpv6 client on %s: %w", iface, err)
	}

	clientCtx, cancel := context.WithCancel(context.Background())
	go s.solicitLoop(clientCtx, client, iface, cfg, log)

	w.JustChangeStatus(supervisor.StatusRunning)
	services.RunUntilStopping(w, func() {
		cancel()
		client.Close()
		s.Prefixes.withdraw(iface)
		log.Info("stopped")
	})
	return w, nil
}

func (s *Starter) solicitLoop(ctx context.Context, client *nclient6.Client, iface string, cfg *domain.DHCPv6PDPayload, log *logging.SubLogger) {
	requestIAPD := func(m *dhcpv6.Message) {
		m.AddOption(&dhcpv6.OptIAPD{IAID: [4]byte{0, 0, 0, 1}})
	}
	for {
		_, reply, err := client.Solicit(ctx, dhcpv6.WithRequestedOptions(dhcpv6.OptionIAPD), requestIAPD)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("dhcpv6pd solicit on %s: %v", iface, err)
			time.Sleep(10 * time.Second)
			continue
		}

		prefix, validLifetime, ok := extractDelegatedPrefix(reply)
		if !ok {
			log.Warn("dhcpv6pd reply on %s carried no IA_PD prefix", iface)
			time.Sleep(10 * time.Second)
			continue
		}
		s.Prefixes.set(iface, prefix)
		log.Info("delegated prefix %s on %s (valid %s)", prefix.String(), iface, validLifetime)

		select {
		case <-ctx.Done():
			return
		case <-time.After(renewDelay(validLifetime)):
		}
	}
}

func extractDelegatedPrefix(msg *dhcpv6.Message) (net.IPNet, time.Duration, bool) {
	opt := msg.GetOneOption(dhcpv6.OptionIAPD)
	iapd, ok := opt.(*dhcpv6.OptIAPD)
	if !ok || iapd == nil {
		return net.IPNet{}, 0, false
	}
	for _, sub := range iapd.Options.Options {
		p, ok := sub.(*dhcpv6.OptIAPrefix)
		if !ok || p.Prefix == nil {
			continue
		}
		return *p.Prefix, p.ValidLifetime, true
	}
	return net.IPNet{}, 0, false
}

func renewDelay(valid time.Duration) time.Duration {
	d := valid / 2
	if d <= 0 {
		d = time.Minute
	}
	return d
}
