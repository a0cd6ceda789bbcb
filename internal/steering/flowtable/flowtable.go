// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package flowtable compiles the set of enabled FlowConfigs into the two
// kernel maps that classify ingress traffic by flow (spec §4.3): a
// mac -> flow_id map and an ip/prefix -> flow_id map. It owns the Go-side
// view of both tables and pushes changes through a MapWriter adapter,
// applying adds before removes so in-flight packets never see an empty
// window (spec P6, §5 ordering guarantees).
package flowtable

import (
	"context"
	"net"
	"sync"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/errors"
	"grimm.is/flywall/internal/logging"
)

// MapWriter is the map-setting adapter the Steering Core owns; the kernel
// datapath program itself is opaque and out of scope (spec.md §1).
type MapWriter interface {
	SetMac(mac string, flowID domain.FlowID) error
	DeleteMac(mac string) error
	SetPrefix(cidr string, flowID domain.FlowID) error
	DeletePrefix(cidr string) error
}

// Table holds the compiled flow-entry table and diffs each recompilation
// against it.
type Table struct {
	mu       sync.Mutex
	macs     map[string]domain.FlowID
	prefixes map[string]domain.FlowID
	writer   MapWriter
	log      *logging.SubLogger
}

// New constructs an empty Table.
func New(writer MapWriter, log *logging.Logger) *Table {
	return &Table{
		macs:     make(map[string]domain.FlowID),
		prefixes: make(map[string]domain.FlowID),
		writer:   writer,
		log:      log.With("flowtable"),
	}
}

// Compile validates and recompiles the table from the full set of enabled
// FlowConfigs (spec §4.3). It rejects the whole batch (I1, P1) if any two
// entry rules collide on the same mac or the same exact cidr, whether with
// different flow ids (flow_rule.conflict_entry) or within one flow
// (flow_rule.duplicate_entry); on success it applies the symmetric-difference
// add-before-remove update against the previously compiled state.
func (t *Table) Compile(ctx context.Context, configs []*domain.FlowConfig) error {
	newMacs := make(map[string]domain.FlowID)
	newPrefixes := make(map[string]domain.FlowID)

	assign := func(target map[string]domain.FlowID, key string, flowID domain.FlowID) error {
		if existing, ok := target[key]; ok {
			if existing == flowID {
				return errors.Attr(
					errors.Errorf(errors.KindConflict, "flow entry %q duplicated for flow %d", key, flowID),
					"error_id", "flow_rule.duplicate_entry",
				)
			}
			err := errors.Attr(
				errors.Errorf(errors.KindConflict, "flow entry %q claimed by flows %d and %d", key, existing, flowID),
				"error_id", "flow_rule.conflict_entry",
			)
			return errors.Attr(err, "conflict.flow_id", existing)
		}
		target[key] = flowID
		return nil
	}

	for _, cfg := range configs {
		if !cfg.Enable {
			continue
		}
		for _, rule := range cfg.EntryRules {
			key := rule.Mode.Key()
			if rule.Mode.IsMAC() {
				if err := assign(newMacs, key, cfg.FlowID); err != nil {
					return err
				}
			} else {
				if err := assign(newPrefixes, key, cfg.FlowID); err != nil {
					return err
				}
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var macAdds, prefixAdds []string
	for k := range newMacs {
		if old, ok := t.macs[k]; !ok || old != newMacs[k] {
			macAdds = append(macAdds, k)
		}
	}
	var macRemoves []string
	for k := range t.macs {
		if _, ok := newMacs[k]; !ok {
			macRemoves = append(macRemoves, k)
		}
	}

	var prefixAdds2 []string
	for k := range newPrefixes {
		if old, ok := t.prefixes[k]; !ok || old != newPrefixes[k] {
			prefixAdds2 = append(prefixAdds2, k)
		}
	}
	var prefixRemoves []string
	for k := range t.prefixes {
		if _, ok := newPrefixes[k]; !ok {
			prefixRemoves = append(prefixRemoves, k)
		}
	}

	// Adds before removes (P6).
	for _, k := range macAdds {
		if err := t.writer.SetMac(macKeyToMac(k), newMacs[k]); err != nil {
			return errors.Wrapf(err, errors.KindInternal, "set mac entry %s", k)
		}
	}
	for _, k := range prefixAdds2 {
		if err := t.writer.SetPrefix(prefixKeyToCIDR(k), newPrefixes[k]); err != nil {
			return errors.Wrapf(err, errors.KindInternal, "set prefix entry %s", k)
		}
	}
	for _, k := range macRemoves {
		if err := t.writer.DeleteMac(macKeyToMac(k)); err != nil {
			t.log.Warn("delete mac entry %s: %v", k, err)
		}
	}
	for _, k := range prefixRemoves {
		if err := t.writer.DeletePrefix(prefixKeyToCIDR(k)); err != nil {
			t.log.Warn("delete prefix entry %s: %v", k, err)
		}
	}

	t.macs = newMacs
	t.prefixes = newPrefixes
	return nil
}

// LookupPrefix returns the flow id for the longest matching prefix entry
// containing ip, mirroring the kernel LPM trie's tie-break rule (spec
// §4.3: "longest prefix wins"). Used by tests and trace tooling; the real
// datapath performs this lookup in-kernel.
func (t *Table) LookupPrefix(ip net.IP) (domain.FlowID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var best *net.IPNet
	var bestFlow domain.FlowID
	found := false
	for k, flowID := range t.prefixes {
		_, ipnet, err := net.ParseCIDR(prefixKeyToCIDR(k))
		if err != nil || !ipnet.Contains(ip) {
			continue
		}
		if best == nil || morePrefixBits(ipnet, best) {
			best = ipnet
			bestFlow = flowID
			found = true
		}
	}
	return bestFlow, found
}

func morePrefixBits(a, b *net.IPNet) bool {
	aOnes, _ := a.Mask.Size()
	bOnes, _ := b.Mask.Size()
	return aOnes > bOnes
}

func macKeyToMac(key string) string    { return key[len("mac:"):] }
func prefixKeyToCIDR(key string) string { return key[len("ip:"):] }
