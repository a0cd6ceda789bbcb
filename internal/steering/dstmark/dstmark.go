// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package dstmark compiles WanIpRuleConfig (plus the materialized CIDRs of
// any referenced GeoKeys) into the destination-IP mark table (spec §4.4),
// using a generation-counter shadow-map swap: each mutation builds the new
// generation off to the side, atomically swaps it in, and only then drains
// the previous generation — so a reader never observes a half-built table.
package dstmark

import (
	"context"
	"net"
	"sort"
	"strconv"
	"sync/atomic"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/errors"
	"grimm.is/flywall/internal/geo"
	"grimm.is/flywall/internal/logging"
)

// Entry is one compiled (cidr, mark, priority) row.
type Entry struct {
	CIDR     string
	RuleID   domain.ConfigID
	Mark     uint32
	Priority uint16 // rule.Index; lower = preferred
}

// MapWriter is the map-setting adapter for the dst-mark kernel map.
type MapWriter interface {
	// ReplaceAll atomically replaces the entire dst-mark map contents.
	// The adapter is responsible for the actual generation-swap against
	// the kernel map; this package only guarantees the *logical* input
	// to that swap is internally consistent (spec Open Question #2: full
	// rebuild on every mutation, no partial retention).
	ReplaceAll(entries []Entry) error
}

// generation is an immutable compiled table plus a resolver for
// deterministic dst-IP lookups (spec §4.4's tie-break rule).
type generation struct {
	entries []Entry // sorted by (Priority asc, prefix len desc, RuleID asc)
	nets    []*net.IPNet
}

// Table owns the current generation behind an atomic pointer, so readers
// never block on a writer mid-rebuild.
type Table struct {
	current atomic.Pointer[generation]
	writer  MapWriter
	geo     *geo.Cache
	log     *logging.SubLogger
}

// New constructs an empty Table.
func New(writer MapWriter, geoCache *geo.Cache, log *logging.Logger) *Table {
	t := &Table{writer: writer, geo: geoCache, log: log.With("dstmark")}
	t.current.Store(&generation{})
	return t
}

// Compile rebuilds the table from the full set of enabled WanIpRuleConfigs,
// resolving any GeoKey sources through the Geo cache, then swaps the new
// generation in and asks the writer to replace the kernel map contents.
func (t *Table) Compile(ctx context.Context, rules []*domain.WanIpRuleConfig) error {
	var entries []Entry
	for _, rule := range rules {
		if !rule.Enable {
			continue
		}
		cidrs, err := t.resolveSources(rule.Source)
		if err != nil {
			return errors.Wrapf(err, errors.KindInternal, "resolve sources for rule %s", rule.ID)
		}
		for _, cidr := range cidrs {
			entries = append(entries, Entry{
				CIDR:     cidr,
				RuleID:   rule.ID,
				Mark:     rule.Mark.Mark,
				Priority: uint16(rule.Index),
			})
		}
	}

	nets := make([]*net.IPNet, len(entries))
	for i, e := range entries {
		_, ipnet, err := net.ParseCIDR(e.CIDR)
		if err != nil {
			return errors.Wrapf(err, errors.KindValidation, "invalid cidr %s", e.CIDR)
		}
		nets[i] = ipnet
	}

	sortEntries(entries, nets)

	t.current.Store(&generation{entries: entries, nets: nets})

	if t.writer != nil {
		if err := t.writer.ReplaceAll(entries); err != nil {
			return errors.Wrap(err, errors.KindInternal, "replace dst-mark map")
		}
	}
	return nil
}

func (t *Table) resolveSources(sources []domain.DstIpSource) ([]string, error) {
	var out []string
	for _, src := range sources {
		switch src.Kind {
		case domain.DstIpSourceIPConfig:
			if src.IP == nil {
				continue
			}
			out = append(out, src.IP.IP+"/"+strconv.Itoa(src.IP.Prefix))
		case domain.DstIpSourceGeoKey:
			if src.GeoKey == nil || t.geo == nil {
				continue
			}
			cidrs, err := t.geo.ResolveCIDRs(*src.GeoKey)
			if err != nil {
				return nil, err
			}
			out = append(out, cidrs...)
		}
	}
	return out, nil
}

// sortEntries orders entries by (priority asc, prefix length desc, rule id
// asc) — the exact deterministic tie-break spec §4.4 names.
func sortEntries(entries []Entry, nets []*net.IPNet) {
	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if entries[ia].Priority != entries[ib].Priority {
			return entries[ia].Priority < entries[ib].Priority
		}
		aOnes, _ := nets[ia].Mask.Size()
		bOnes, _ := nets[ib].Mask.Size()
		if aOnes != bOnes {
			return aOnes > bOnes
		}
		return entries[ia].RuleID.String() < entries[ib].RuleID.String()
	})

	sortedEntries := make([]Entry, len(entries))
	sortedNets := make([]*net.IPNet, len(nets))
	for i, j := range idx {
		sortedEntries[i] = entries[j]
		sortedNets[i] = nets[j]
	}
	copy(entries, sortedEntries)
	copy(nets, sortedNets)
}

// Resolve picks the entry matching ip per §4.4's deterministic rule:
// highest priority (lowest index), then longest prefix, then lowest rule
// id — entries are pre-sorted so the first match wins.
func (t *Table) Resolve(ip net.IP) (Entry, bool) {
	g := t.current.Load()
	for i, n := range g.nets {
		if n.Contains(ip) {
			return g.entries[i], true
		}
	}
	return Entry{}, false
}

