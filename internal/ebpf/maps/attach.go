// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package maps

import (
	"fmt"
	"net"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
)

// SetIfaceU32Config writes a single per-interface scalar tunable (e.g. an
// MSS clamp value keyed by ifindex) into a config map registered under
// mapName.
func (m *Manager) SetIfaceU32Config(mapName, iface string, value uint32) error {
	mm, err := m.GetMap(mapName)
	if err != nil {
		return err
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", iface, err)
	}
	key := uint32(ifi.Index)
	return mm.Update(&key, &value)
}

// OpenRingBuffer opens a reader over the named BPF_MAP_TYPE_RINGBUF map,
// used by starters that consume kernel-published events (e.g. the NAT
// starter's conntrack create/expire notifications).
func (m *Manager) OpenRingBuffer(name string) (*ringbuf.Reader, error) {
	mm, err := m.GetMap(name)
	if err != nil {
		return nil, err
	}
	return ringbuf.NewReader(mm.Map)
}

// Attachment is a live kernel hook attachment; Close detaches it. The
// attach/detach-only starters (nat, mssclamp, firewall, routewan, routelan)
// hold one of these for the lifetime of their WatchService.
type Attachment struct {
	link link.Link
}

// Close detaches the program from the interface.
func (a *Attachment) Close() error {
	if a == nil || a.link == nil {
		return nil
	}
	return a.link.Close()
}

// AttachXDP attaches the named program (already loaded into m's collection)
// to iface's XDP hook. No attach-mode flag is set, so the kernel's default
// XDP mode applies.
func (m *Manager) AttachXDP(progName, iface string) (*Attachment, error) {
	prog := m.program(progName)
	if prog == nil {
		return nil, fmt.Errorf("program %s not loaded", progName)
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", iface, err)
	}
	l, err := link.AttachXDP(link.XDPOptions{
		Program:   prog,
		Interface: ifi.Index,
	})
	if err != nil {
		return nil, fmt.Errorf("attach xdp %s to %s: %w", progName, iface, err)
	}
	return &Attachment{link: l}, nil
}

// AttachTCX attaches the named program to iface's TCX ingress or egress
// hook (the nat, mssclamp and routewan starters all attach at egress).
func (m *Manager) AttachTCX(progName, iface string, egress bool) (*Attachment, error) {
	prog := m.program(progName)
	if prog == nil {
		return nil, fmt.Errorf("program %s not loaded", progName)
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", iface, err)
	}
	attach := link.Ingress
	if egress {
		attach = link.Egress
	}
	l, err := link.AttachTCX(link.TCXOptions{
		Program:   prog,
		Attach:    attach,
		Interface: ifi.Index,
	})
	if err != nil {
		return nil, fmt.Errorf("attach tcx %s to %s: %w", progName, iface, err)
	}
	return &Attachment{link: l}, nil
}

func (m *Manager) program(name string) *ebpf.Program {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.collection == nil {
		return nil
	}
	return m.collection.Programs[name]
}
