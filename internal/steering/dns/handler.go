// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package dns implements the per-flow DNS Steering Pipeline (spec §4.5):
// redirect → rule match → upstream resolve → filter → cache → stamp. One
// FlowDNSHandler is instantiated per referenced FlowId and implements
// miekg/dns's dns.Handler so it can be bound to a flow-dispatched listener
// socket, mirroring the teacher's own ServeDNS shape in
// internal/services/dns/service.go but narrowed to one flow's rule set
// instead of one process-wide table.
package dns

import (
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/errors"
	"grimm.is/flywall/internal/logging"
)

// MarkWriter is the dns-mark kernel map adapter (spec §6: "dns-mark: key =
// IP; value = {mark, priority}").
type MarkWriter interface {
	SetMark(ip net.IP, mark uint32, priority uint16) error
	DeleteMark(ip net.IP) error
}

// Recorder receives cache/resolver observations for internal/metrics,
// kept as a narrow interface here so this package never imports the
// prometheus client directly.
type Recorder interface {
	CacheHit()
	CacheMiss()
	ResolveError(cause string)
	ObserveLatency(seconds float64)
}

type noopRecorder struct{}

func (noopRecorder) CacheHit()               {}
func (noopRecorder) CacheMiss()              {}
func (noopRecorder) ResolveError(string)     {}
func (noopRecorder) ObserveLatency(float64)  {}

// negativeTTL is applied to cached NXDOMAIN results (spec §5).
const negativeTTL = 120 * time.Second

// redirectTTL is the conventionally short TTL synthesized redirect answers
// carry (spec §4.5 step 1).
const redirectTTL = 10

// Trace reports what the "check domain" diagnostic operation observed
// without mutating the dns-mark map (spec §4.5: "Testable checkability").
type Trace struct {
	RedirectID    *domain.ConfigID
	RuleID        *domain.ConfigID
	Records       []net.IP
	FromCache     bool
	CacheRecords  []net.IP
	Err           error
}

// FlowDNSHandler owns one flow's redirects, rules, and cache, and answers
// queries dispatched to it by the kernel flow dispatcher (spec §4.5
// "Concurrency": "One DNS listener socket per flow").
type FlowDNSHandler struct {
	flowID domain.FlowID

	mu        sync.RWMutex
	redirects []runtimeRedirect
	rules     []runtimeRule

	cache *cache
	marks MarkWriter
	log   *logging.SubLogger
	rec   Recorder
}

// NewFlowDNSHandler constructs a handler for flowID with an empty rule set;
// callers populate it via SwapRules before serving traffic.
func NewFlowDNSHandler(flowID domain.FlowID, marks MarkWriter, log *logging.Logger) *FlowDNSHandler {
	return &FlowDNSHandler{
		flowID: flowID,
		cache:  newCache(defaultCacheSize),
		marks:  marks,
		log:    log.With("dns.flow"),
		rec:    noopRecorder{},
	}
}

// SetRecorder wires rec to receive cache/resolver observations; nil
// restores the no-op recorder.
func (h *FlowDNSHandler) SetRecorder(rec Recorder) {
	if rec == nil {
		rec = noopRecorder{}
	}
	h.mu.Lock()
	h.rec = rec
	h.mu.Unlock()
}

// SwapRules atomically replaces the handler's redirects and rules, then
// revisits live cache entries so stale stampings don't outlive the rule
// change (spec §4.5 "Cache invalidation on rule change").
func (h *FlowDNSHandler) SwapRules(redirects []runtimeRedirect, rules []runtimeRule) {
	sorted := append([]runtimeRule(nil), rules...)
	sort.Stable(byIndex(sorted))

	h.mu.Lock()
	h.redirects = redirects
	h.rules = sorted
	h.mu.Unlock()

	h.revisitCache(sorted)
}

// revisitCache re-evaluates every live cache entry against the new rule
// set: an entry whose stamping rule disappeared or whose newly-matching
// rule yields a different mark is either re-stamped or evicted.
func (h *FlowDNSHandler) revisitCache(rules []runtimeRule) {
	h.cache.forEach(func(k cacheKey, rec cacheRecord) (cacheRecord, bool) {
		rule, ok := matchRule(rules, k.name)
		if !ok {
			h.unstamp(rec)
			return rec, true
		}
		if rule.ID != rec.ruleID || rule.Mark != rec.mark {
			h.unstamp(rec)
			h.stamp(rec.ips, rule)
			rec.ruleID = rule.ID
			rec.mark = rule.Mark
		}
		return rec, false
	})
}

// ServeDNS implements dns.Handler, running the full pipeline for one query.
func (h *FlowDNSHandler) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	msg := new(dns.Msg)
	msg.SetReply(r)
	msg.Compress = false

	if len(r.Question) == 0 {
		w.WriteMsg(msg)
		return
	}

	q := r.Question[0]
	name := strings.ToLower(q.Name)

	ips, rcode, ttl, _ := h.resolve(name, q.Qtype, false)
	if rcode == dns.RcodeSuccess {
		for _, ip := range ips {
			if rr := ipToRR(q, ip, ttl); rr != nil {
				msg.Answer = append(msg.Answer, rr)
			}
		}
	}
	msg.Rcode = rcode
	w.WriteMsg(msg)
}

// CheckDomain runs the pipeline for name/qtype without stamping the
// dns-mark map, returning a full trace (spec §4.5 "Testable checkability").
func (h *FlowDNSHandler) CheckDomain(name string, qtype uint16) Trace {
	name = dns.Fqdn(strings.ToLower(name))

	h.mu.RLock()
	redirects := h.redirects
	rules := h.rules
	h.mu.RUnlock()

	for _, rd := range redirects {
		if rd.matches(name) {
			id := rd.ID
			var ips []net.IP
			for _, s := range rd.ResultInfo {
				if ip := net.ParseIP(s); ip != nil {
					ips = append(ips, ip)
				}
			}
			return Trace{RedirectID: &id, Records: ips}
		}
	}

	key := cacheKey{name: name, qtype: qtype}
	if rec, ok := h.cache.get(key, time.Now()); ok {
		return Trace{RuleID: ruleIDOrNil(rec.ruleID), Records: rec.ips, FromCache: true, CacheRecords: rec.ips}
	}

	rule, ok := matchRule(rules, name)
	if !ok {
		return Trace{Err: errors.Errorf(errors.KindInternal, "dns_rule.no_match")}
	}

	ips, err := h.resolveUpstream(name, qtype, rule)
	if err != nil {
		return Trace{RuleID: &rule.ID, Err: err}
	}
	return Trace{RuleID: &rule.ID, Records: ips}
}

// resolve executes steps 1-6 of spec §4.5 and, unless checkOnly, stamps
// matching answers into the dns-mark map.
func (h *FlowDNSHandler) resolve(name string, qtype uint16, checkOnly bool) ([]net.IP, int, uint32, error) {
	h.mu.RLock()
	redirects := h.redirects
	rules := h.rules
	h.mu.RUnlock()

	// Step 1: redirect.
	for _, rd := range redirects {
		if rd.matches(name) {
			var ips []net.IP
			for _, s := range rd.ResultInfo {
				if ip := net.ParseIP(s); ip != nil {
					ips = append(ips, ip)
				}
			}
			return ips, dns.RcodeSuccess, redirectTTL, nil
		}
	}

	// Step 5 (read path): cache lookup before resolving.
	key := cacheKey{name: name, qtype: qtype}
	if rec, ok := h.cache.get(key, time.Now()); ok {
		h.rec.CacheHit()
		if len(rec.ips) == 0 {
			return nil, dns.RcodeNameError, 0, nil
		}
		return rec.ips, dns.RcodeSuccess, ttlRemaining(rec.expiresAt), nil
	}
	h.rec.CacheMiss()

	// Step 2: rule match.
	rule, ok := matchRule(rules, name)
	if !ok {
		return nil, dns.RcodeNameError, 0, errors.Errorf(errors.KindInternal, "dns_rule.no_match")
	}

	ips, err := h.resolveUpstream(name, qtype, rule)
	if err != nil {
		return nil, dns.RcodeServerFailure, 0, err
	}

	if !checkOnly {
		h.stamp(ips, rule)
	}
	return ips, dns.RcodeSuccess, 0, nil
}

func ttlRemaining(expiresAt time.Time) uint32 {
	remaining := time.Until(expiresAt)
	if remaining <= 0 {
		return 0
	}
	return uint32(remaining / time.Second)
}

// resolveUpstream issues steps 3-5: upstream query, record-type filtering,
// and cache insertion.
func (h *FlowDNSHandler) resolveUpstream(name string, qtype uint16, rule runtimeRule) ([]net.IP, error) {
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(name), qtype)

	start := time.Now()
	resp, err := exchangeUpstream(q, rule.Upstream, rule.Bind)
	h.rec.ObserveLatency(time.Since(start).Seconds())
	key := cacheKey{name: name, qtype: qtype}

	if err != nil {
		h.rec.ResolveError("timeout")
		return nil, errors.Wrap(err, errors.KindInternal, "dns_upstream.timeout")
	}
	if resp == nil {
		h.rec.ResolveError("bad_response")
		return nil, errors.Errorf(errors.KindInternal, "dns_upstream.bad_response")
	}

	if resp.Rcode == dns.RcodeNameError {
		h.cache.set(key, cacheRecord{expiresAt: time.Now().Add(negativeTTL), ruleID: rule.ID, mark: rule.Mark})
		return nil, nil
	}
	if resp.Rcode != dns.RcodeSuccess {
		h.rec.ResolveError("refused")
		return nil, errors.Errorf(errors.KindInternal, "dns_upstream.refused")
	}

	var ips []net.IP
	minTTL := uint32(3600)
	for _, rr := range resp.Answer {
		var ip net.IP
		switch v := rr.(type) {
		case *dns.A:
			if rule.Filter == domain.FilterOnlyIPv6 {
				continue
			}
			ip = v.A
		case *dns.AAAA:
			if rule.Filter == domain.FilterOnlyIPv4 {
				continue
			}
			ip = v.AAAA
		default:
			continue
		}
		if rr.Header().Ttl < minTTL {
			minTTL = rr.Header().Ttl
		}
		ips = append(ips, ip)
	}

	h.cache.set(key, cacheRecord{
		ips:       ips,
		ruleID:    rule.ID,
		mark:      rule.Mark,
		expiresAt: time.Now().Add(time.Duration(minTTL) * time.Second),
	})
	return ips, nil
}

// stamp pushes resolved IPs into the dns-mark map if the matched rule asks
// for it (spec §4.5 step 6).
func (h *FlowDNSHandler) stamp(ips []net.IP, rule runtimeRule) {
	if h.marks == nil || !rule.Mark.NeedInsertInEBPFMap() {
		return
	}
	for _, ip := range ips {
		if err := h.marks.SetMark(ip, rule.Mark.Mark, rule.Mark.Priority); err != nil {
			h.log.Warn("stamp dns-mark for %s: %v", ip, err)
		}
	}
}

func (h *FlowDNSHandler) unstamp(rec cacheRecord) {
	if h.marks == nil || !rec.mark.NeedInsertInEBPFMap() {
		return
	}
	for _, ip := range rec.ips {
		if err := h.marks.DeleteMark(ip); err != nil {
			h.log.Warn("unstamp dns-mark for %s: %v", ip, err)
		}
	}
}

func matchRule(rules []runtimeRule, name string) (runtimeRule, bool) {
	for _, r := range rules {
		if r.matches(name) {
			return r, true
		}
	}
	return runtimeRule{}, false
}

func ruleIDOrNil(id domain.ConfigID) *domain.ConfigID {
	if id == (domain.ConfigID{}) {
		return nil
	}
	return &id
}

func ipToRR(q dns.Question, ip net.IP, ttl uint32) dns.RR {
	if ttl == 0 {
		ttl = 60
	}
	header := dns.RR_Header{Name: q.Name, Rrtype: q.Qtype, Class: dns.ClassINET, Ttl: ttl}
	switch q.Qtype {
	case dns.TypeA:
		if v4 := ip.To4(); v4 != nil {
			return &dns.A{Hdr: header, A: v4}
		}
	case dns.TypeAAAA:
		if v6 := ip.To16(); v6 != nil {
			return &dns.AAAA{Hdr: header, AAAA: v6}
		}
	}
	return nil
}
