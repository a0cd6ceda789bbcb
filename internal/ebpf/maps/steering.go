// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package maps

import (
	"fmt"
	"net"
	"sync"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/ebpf/types"
	"grimm.is/flywall/internal/steering/dstmark"
)

// FlowEntryMap backs flowtable.MapWriter with the mac-keyed and
// prefix-keyed halves of the flow-entry kernel map (spec §6: "flow-entry:
// key = MAC (6B) ⨁ IP (4B/16B); value = {flow_id:u32, qos:u32}").
type FlowEntryMap struct {
	macMap    *ManagedMap
	prefixMap *ManagedMap
}

// NewFlowEntryMap wraps the two registered maps backing the flow-entry
// table. Both must already be registered with m (RegisterMap).
func (m *Manager) NewFlowEntryMap(macMapName, prefixMapName string) (*FlowEntryMap, error) {
	macMap, err := m.GetMap(macMapName)
	if err != nil {
		return nil, err
	}
	prefixMap, err := m.GetMap(prefixMapName)
	if err != nil {
		return nil, err
	}
	return &FlowEntryMap{macMap: macMap, prefixMap: prefixMap}, nil
}

func parseMac(mac string) ([6]byte, error) {
	var out [6]byte
	hw, err := net.ParseMAC(mac)
	if err != nil || len(hw) != 6 {
		return out, fmt.Errorf("invalid mac %q", mac)
	}
	copy(out[:], hw)
	return out, nil
}

func (fm *FlowEntryMap) SetMac(mac string, flowID domain.FlowID) error {
	key, err := parseMac(mac)
	if err != nil {
		return err
	}
	mapKey := types.MacFlowKey{Mac: key}
	return fm.macMap.Update(&mapKey, &types.FlowEntryValue{FlowID: flowID})
}

func (fm *FlowEntryMap) DeleteMac(mac string) error {
	key, err := parseMac(mac)
	if err != nil {
		return err
	}
	mapKey := types.MacFlowKey{Mac: key}
	return fm.macMap.Delete(&mapKey)
}

func cidrToPrefixKey(cidr string) (types.PrefixFlowKey, error) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return types.PrefixFlowKey{}, err
	}
	ones, _ := ipnet.Mask.Size()
	var key types.PrefixFlowKey
	key.PrefixLen = uint32(ones)
	if v4 := ipnet.IP.To4(); v4 != nil {
		copy(key.Addr[:4], v4)
	} else {
		copy(key.Addr[:], ipnet.IP.To16())
	}
	return key, nil
}

func (fm *FlowEntryMap) SetPrefix(cidr string, flowID domain.FlowID) error {
	key, err := cidrToPrefixKey(cidr)
	if err != nil {
		return err
	}
	return fm.prefixMap.Update(&key, &types.FlowEntryValue{FlowID: flowID})
}

func (fm *FlowEntryMap) DeletePrefix(cidr string) error {
	key, err := cidrToPrefixKey(cidr)
	if err != nil {
		return err
	}
	return fm.prefixMap.Delete(&key)
}

// DstMarkMap backs dstmark.MapWriter with the dst-mark kernel LPM map
// (spec §6: "dst-mark: key = IP + prefix; value = {mark:u32,
// priority:u16}"). ReplaceAll diffs the incoming entry set against what it
// last wrote and applies adds before removes, the same ordering guarantee
// flowtable.Table enforces in Go, so a dst-mark rebuild (Open Question #2
// of the Steering Core) never has an instant where neither the old nor the
// new classification for an address is present (spec P6).
type DstMarkMap struct {
	mu      sync.Mutex
	m       *ManagedMap
	current map[string]dstmark.Entry // cidr -> last-written entry
}

func (m *Manager) NewDstMarkMap(mapName string) (*DstMarkMap, error) {
	mm, err := m.GetMap(mapName)
	if err != nil {
		return nil, err
	}
	return &DstMarkMap{m: mm, current: make(map[string]dstmark.Entry)}, nil
}

func (dm *DstMarkMap) ReplaceAll(entries []dstmark.Entry) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	next := make(map[string]dstmark.Entry, len(entries))
	for _, e := range entries {
		next[e.CIDR] = e
	}

	var adds []dstmark.Entry
	for cidr, e := range next {
		if old, ok := dm.current[cidr]; !ok || old.Mark != e.Mark || old.Priority != e.Priority {
			adds = append(adds, e)
		}
	}
	var removes []string
	for cidr := range dm.current {
		if _, ok := next[cidr]; !ok {
			removes = append(removes, cidr)
		}
	}

	for _, e := range adds {
		key, err := cidrToDstMarkKey(e.CIDR)
		if err != nil {
			return err
		}
		if err := dm.m.Update(&key, &types.DstMarkValue{Mark: e.Mark, Priority: e.Priority}); err != nil {
			return fmt.Errorf("update dst-mark entry %s: %w", e.CIDR, err)
		}
	}
	for _, cidr := range removes {
		key, err := cidrToDstMarkKey(cidr)
		if err != nil {
			continue
		}
		if err := dm.m.Delete(&key); err != nil {
			return fmt.Errorf("delete dst-mark entry %s: %w", cidr, err)
		}
	}

	dm.current = next
	return nil
}

func cidrToDstMarkKey(cidr string) (types.DstMarkKey, error) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return types.DstMarkKey{}, err
	}
	ones, _ := ipnet.Mask.Size()
	var key types.DstMarkKey
	key.PrefixLen = uint32(ones)
	if v4 := ipnet.IP.To4(); v4 != nil {
		copy(key.Addr[:4], v4)
	} else {
		copy(key.Addr[:], ipnet.IP.To16())
	}
	return key, nil
}

// DnsMarkMap backs dns.MarkWriter with the dns-mark kernel map (spec §6:
// "dns-mark: key = IP; value = {mark:u32, priority:u16}").
type DnsMarkMap struct {
	m *ManagedMap
}

func (m *Manager) NewDnsMarkMap(mapName string) (*DnsMarkMap, error) {
	mm, err := m.GetMap(mapName)
	if err != nil {
		return nil, err
	}
	return &DnsMarkMap{m: mm}, nil
}

func ipToDnsMarkKey(ip net.IP) types.DnsMarkKey {
	var key types.DnsMarkKey
	if v4 := ip.To4(); v4 != nil {
		copy(key.Addr[:4], v4)
	} else {
		copy(key.Addr[:], ip.To16())
	}
	return key
}

func (dm *DnsMarkMap) SetMark(ip net.IP, mark uint32, priority uint16) error {
	key := ipToDnsMarkKey(ip)
	return dm.m.Update(&key, &types.DnsMarkValue{Mark: mark, Priority: priority})
}

func (dm *DnsMarkMap) DeleteMark(ip net.IP) error {
	key := ipToDnsMarkKey(ip)
	return dm.m.Delete(&key)
}
