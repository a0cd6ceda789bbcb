// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package dhcpv4 implements the dhcp_v4 service kind (spec §4.6): a
// lease-pool DHCPv4 server on a LAN interface, grounded on the teacher's
// internal/services/dhcp/service.go request/response handling but rebuilt
// on insomniacslk/dhcp's server4.Server rather than a hand-rolled
// UDPConn+handler loop, and supplemented with an ARP-scan conflict-detection
// ring buffer (gopacket) per SPEC_FULL.md's PER-SERVICE STARTERS section.
package dhcpv4

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcap"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/dhcpv4/server4"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/services"
	"grimm.is/flywall/internal/supervisor"
)

// EnrolledDeviceLister returns the current set of enrolled devices so the
// lease pool can pre-allocate their static bindings (spec §3).
type EnrolledDeviceLister func() []*domain.EnrolledDevice

// Starter implements supervisor.Starter[*domain.DHCPv4ServerPayload].
type Starter struct {
	Log      *logging.Logger
	Devices  EnrolledDeviceLister
}

func New(log *logging.Logger, devices EnrolledDeviceLister) *Starter {
	return &Starter{Log: log, Devices: devices}
}

func (s *Starter) Start(ctx context.Context, iface string, cfg *domain.DHCPv4ServerPayload) (*supervisor.WatchService, error) {
	log := s.Log.With("dhcpv4").With(iface)
	w := supervisor.NewWatchService()

	pool, err := newLeasePool(cfg, s.Devices)
	if err != nil {
		return nil, fmt.Errorf("build lease pool for %s: %w", iface, err)
	}

	scanner := newArpScanner(iface, cfg.ArpScanSize, log)
	scanner.start()

	handler := func(conn net.PacketConn, peer net.Addr, m *dhcpv4.DHCPv4) {
		resp, err := pool.respond(m)
		if err != nil {
			log.Debug("dhcpv4 %s from %s: %v", m.MessageType(), peer, err)
			return
		}
		if resp == nil {
			return
		}
		if scanner.conflicts(resp.YourIPAddr) {
			log.Warn("suppressing offer of %s on %s: seen on the wire by another host", resp.YourIPAddr, iface)
			return
		}
		if _, err := conn.WriteTo(resp.ToBytes(), peer); err != nil {
			log.Warn("write dhcpv4 response to %s: %v", peer, err)
		}
	}

	srv, err := server4.NewServer(iface, nil, handler)
	if err != nil {
		scanner.stop()
		return nil, fmt.Errorf("start dhcpv4 server on %s: %w", iface, err)
	}

	go func() {
		if err := srv.Serve(); err != nil {
			log.Debug("dhcpv4 server on %s stopped: %v", iface, err)
		}
	}()

	w.JustChangeStatus(supervisor.StatusRunning)
	services.RunUntilStopping(w, func() {
		_ = srv.Close()
		scanner.stop()
		log.Info("stopped")
	})
	return w, nil
}

// leasePool tracks dynamic allocations against a configured range plus the
// statically bound enrolled devices.
type leasePool struct {
	mu        sync.Mutex
	network   *net.IPNet
	rangeLo   net.IP
	rangeHi   net.IP
	gateway   net.IP
	dns       []net.IP
	leaseTime int
	static    map[string]net.IP // mac -> ip
	leased    map[string]net.IP // mac -> ip (dynamic)
}

func newLeasePool(cfg *domain.DHCPv4ServerPayload, devices EnrolledDeviceLister) (*leasePool, error) {
	_, network, err := net.ParseCIDR(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("parse network %q: %w", cfg.Network, err)
	}
	lo := net.ParseIP(cfg.RangeStart)
	hi := net.ParseIP(cfg.RangeEnd)
	if lo == nil || hi == nil {
		return nil, fmt.Errorf("invalid range %q-%q", cfg.RangeStart, cfg.RangeEnd)
	}
	var dns []net.IP
	for _, d := range cfg.DNS {
		if ip := net.ParseIP(d); ip != nil {
			dns = append(dns, ip)
		}
	}
	p := &leasePool{
		network:   network,
		rangeLo:   lo,
		rangeHi:   hi,
		gateway:   net.ParseIP(cfg.GatewayIP),
		dns:       dns,
		leaseTime: cfg.LeaseTime,
		static:    make(map[string]net.IP),
		leased:    make(map[string]net.IP),
	}
	if devices != nil {
		for _, d := range devices() {
			if d.MAC == "" || d.IPv4 == "" {
				continue
			}
			if ip := net.ParseIP(d.IPv4); ip != nil {
				p.static[d.MAC] = ip
			}
		}
	}
	return p, nil
}

func (p *leasePool) respond(m *dhcpv4.DHCPv4) (*dhcpv4.DHCPv4, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ip := p.assign(m.ClientHWAddr.String())
	if ip == nil {
		return nil, fmt.Errorf("lease pool exhausted for %s", m.ClientHWAddr)
	}

	mods := []dhcpv4.Modifier{
		dhcpv4.WithYourIP(ip),
		dhcpv4.WithServerIP(p.gateway),
		dhcpv4.WithNetmask(p.network.Mask),
		dhcpv4.WithLeaseTime(uint32(p.leaseTime)),
	}
	if p.gateway != nil {
		mods = append(mods, dhcpv4.WithRouter(p.gateway))
	}
	if len(p.dns) > 0 {
		mods = append(mods, dhcpv4.WithDNS(p.dns...))
	}

	switch m.MessageType() {
	case dhcpv4.MessageTypeDiscover:
		mods = append(mods, dhcpv4.WithMessageType(dhcpv4.MessageTypeOffer))
	case dhcpv4.MessageTypeRequest:
		mods = append(mods, dhcpv4.WithMessageType(dhcpv4.MessageTypeAck))
	default:
		return nil, nil
	}

	resp, err := dhcpv4.NewReplyFromRequest(m, mods...)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// assign returns the IP bound to mac, allocating the next free dynamic
// address from the range if mac has no static or existing lease.
func (p *leasePool) assign(mac string) net.IP {
	if ip, ok := p.static[mac]; ok {
		return ip
	}
	if ip, ok := p.leased[mac]; ok {
		return ip
	}
	for ip := cloneIP(p.rangeLo); !ipAfter(ip, p.rangeHi); incIP(ip) {
		if p.inUse(ip) {
			continue
		}
		candidate := cloneIP(ip)
		p.leased[mac] = candidate
		return candidate
	}
	return nil
}

func (p *leasePool) inUse(ip net.IP) bool {
	for _, used := range p.static {
		if used.Equal(ip) {
			return true
		}
	}
	for _, used := range p.leased {
		if used.Equal(ip) {
			return true
		}
	}
	return false
}

func cloneIP(ip net.IP) net.IP {
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}

func incIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			return
		}
	}
}

func ipAfter(a, b net.IP) bool {
	a4, b4 := a.To4(), b.To4()
	if a4 == nil || b4 == nil {
		return false
	}
	for i := range a4 {
		if a4[i] != b4[i] {
			return a4[i] > b4[i]
		}
	}
	return false
}

// arpScanner is a fixed-length FIFO ring of the sender IP addresses of
// recently observed ARP replies, used to suppress offering an address a
// foreign host is already using (conflict detection, SPEC_FULL.md
// PER-SERVICE STARTERS).
type arpScanner struct {
	iface  string
	size   int
	log    *logging.SubLogger
	handle *pcap.Handle

	mu   sync.Mutex
	ring []net.IP
	pos  int
}

func newArpScanner(iface string, size int, log *logging.SubLogger) *arpScanner {
	if size <= 0 {
		size = 256
	}
	return &arpScanner{iface: iface, size: size, log: log, ring: make([]net.IP, 0, size)}
}

const arpScanTimeout = time.Second

func (a *arpScanner) start() {
	handle, err := pcap.OpenLive(a.iface, 128, true, arpScanTimeout)
	if err != nil {
		a.log.Debug("arp scan disabled on %s: %v", a.iface, err)
		return
	}
	if err := handle.SetBPFFilter("arp"); err != nil {
		handle.Close()
		a.log.Debug("arp scan filter on %s: %v", a.iface, err)
		return
	}
	a.handle = handle

	go func() {
		src := gopacket.NewPacketSource(handle, handle.LinkType())
		for pkt := range src.Packets() {
			arpLayer := pkt.Layer(layers.LayerTypeARP)
			if arpLayer == nil {
				continue
			}
			arp := arpLayer.(*layers.ARP)
			if arp.Operation != layers.ARPReply {
				continue
			}
			a.observe(net.IP(arp.SourceProtAddress))
		}
	}()
}

func (a *arpScanner) observe(ip net.IP) {
	if ip == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.ring) < a.size {
		a.ring = append(a.ring, cloneIP(ip))
		return
	}
	a.ring[a.pos] = cloneIP(ip)
	a.pos = (a.pos + 1) % a.size
}

func (a *arpScanner) conflicts(ip net.IP) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, seen := range a.ring {
		if seen.Equal(ip) {
			return true
		}
	}
	return false
}

func (a *arpScanner) stop() {
	if a.handle != nil {
		a.handle.Close()
	}
}
