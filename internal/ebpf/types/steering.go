// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package types

// MacFlowKey is the flow-entry map's MAC-keyed half: key = MAC (6B).
type MacFlowKey struct {
	Mac [6]byte
	_   [2]byte // Padding for 8-byte alignment
}

// PrefixFlowKey is the flow-entry map's IP-prefix-keyed half, shaped for an
// LPM trie map: a 4-byte prefix length in bits followed by the address
// bytes (cilium/ebpf's LPM trie convention), sized for the IPv6 case and
// reused (zero-padded) for IPv4.
type PrefixFlowKey struct {
	PrefixLen uint32
	Addr      [16]byte
}

// FlowEntryValue is the flow-entry map's value: {flow_id:u32, qos:u32}
// (spec §6: "flow-entry: key = MAC (6B) ⨁ IP (4B/16B); value =
// {flow_id:u32, qos:u32}").
type FlowEntryValue struct {
	FlowID uint32
	QoS    uint32
}

// DstMarkKey is the dst-mark map's key: IP + prefix, as an LPM trie entry.
type DstMarkKey struct {
	PrefixLen uint32
	Addr      [16]byte
}

// DstMarkValue is the dst-mark map's value: {mark:u32, priority:u16} (spec
// §6: "dst-mark: key = IP + prefix; value = {mark:u32, priority:u16}").
type DstMarkValue struct {
	Mark     uint32
	Priority uint16
	_        [2]byte // Padding for 8-byte alignment
}

// DnsMarkKey is the dns-mark map's key: a single resolved IP address,
// stored as a 16-byte slot so the same map shape serves IPv4 (first 4
// bytes, rest zero) and IPv6 answers.
type DnsMarkKey struct {
	Addr [16]byte
}

// DnsMarkValue is the dns-mark map's value: {mark:u32, priority:u16} (spec
// §6: "dns-mark: key = IP; value = {mark:u32, priority:u16}").
type DnsMarkValue struct {
	Mark     uint32
	Priority uint16
	_        [2]byte // Padding for 8-byte alignment
}
