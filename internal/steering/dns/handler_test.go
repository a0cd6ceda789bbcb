// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dns

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/logging"
)

type fakeMarkWriter struct {
	sets    map[string]uint32
	deletes map[string]bool
}

func newFakeMarkWriter() *fakeMarkWriter {
	return &fakeMarkWriter{sets: make(map[string]uint32), deletes: make(map[string]bool)}
}

func (w *fakeMarkWriter) SetMark(ip net.IP, mark uint32, priority uint16) error {
	w.sets[ip.String()] = mark
	return nil
}

func (w *fakeMarkWriter) DeleteMark(ip net.IP) error {
	w.deletes[ip.String()] = true
	return nil
}

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError})
}

func TestFlowDNSHandler_RedirectHit(t *testing.T) {
	h := NewFlowDNSHandler(1, newFakeMarkWriter(), testLogger())
	redirectID := domain.NewConfigID()
	h.SwapRules([]runtimeRedirect{
		{
			ID:         redirectID,
			MatchRules: []domain.DomainConfig{{MatchType: domain.MatchFull, Value: "blocked.test."}},
			ResultInfo: []string{"0.0.0.0"},
		},
	}, nil)

	trace := h.CheckDomain("blocked.test.", dns.TypeA)
	require.NotNil(t, trace.RedirectID)
	assert.Equal(t, redirectID, *trace.RedirectID)
	require.Len(t, trace.Records, 1)
	assert.Equal(t, "0.0.0.0", trace.Records[0].String())
}

func TestFlowDNSHandler_NoRuleMatch(t *testing.T) {
	h := NewFlowDNSHandler(1, newFakeMarkWriter(), testLogger())
	h.SwapRules(nil, nil)

	trace := h.CheckDomain("nowhere.test.", dns.TypeA)
	require.Error(t, trace.Err)
	assert.Nil(t, trace.RuleID)
}

func TestFlowDNSHandler_StampAndUnstampOnRuleChange(t *testing.T) {
	marks := newFakeMarkWriter()
	h := NewFlowDNSHandler(1, marks, testLogger())

	ruleID := domain.NewConfigID()
	ip := net.ParseIP("203.0.113.5")
	key := cacheKey{name: "cached.test.", qtype: dns.TypeA}
	h.cache.set(key, cacheRecord{
		ips:       []net.IP{ip},
		ruleID:    ruleID,
		mark:      domain.FlowMark{Mark: 7, Insert: true},
		expiresAt: time.Now().Add(time.Minute),
	})
	h.stamp([]net.IP{ip}, runtimeRule{ID: ruleID, Mark: domain.FlowMark{Mark: 7, Insert: true}})
	require.Contains(t, marks.sets, ip.String())

	// Swapping in a rule set with no matching rule should unstamp and
	// evict the cached entry.
	h.SwapRules(nil, nil)

	assert.True(t, marks.deletes[ip.String()])
	_, ok := h.cache.get(key, time.Now())
	assert.False(t, ok)
}

func TestFlowDNSHandler_ServeDNS_Redirect(t *testing.T) {
	h := NewFlowDNSHandler(1, newFakeMarkWriter(), testLogger())
	h.SwapRules([]runtimeRedirect{
		{
			MatchRules: []domain.DomainConfig{{MatchType: domain.MatchFull, Value: "blocked.test."}},
			ResultInfo: []string{"10.0.0.1"},
		},
	}, nil)

	req := new(dns.Msg)
	req.SetQuestion("blocked.test.", dns.TypeA)

	rw := &fakeResponseWriter{}
	h.ServeDNS(rw, req)

	require.NotNil(t, rw.msg)
	assert.Equal(t, dns.RcodeSuccess, rw.msg.Rcode)
	require.Len(t, rw.msg.Answer, 1)
	a, ok := rw.msg.Answer[0].(*dns.A)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", a.A.String())
}

type fakeResponseWriter struct {
	msg *dns.Msg
}

func (f *fakeResponseWriter) LocalAddr() net.Addr         { return &net.UDPAddr{} }
func (f *fakeResponseWriter) RemoteAddr() net.Addr        { return &net.UDPAddr{} }
func (f *fakeResponseWriter) WriteMsg(m *dns.Msg) error    { f.msg = m; return nil }
func (f *fakeResponseWriter) Write(b []byte) (int, error) { return len(b), nil }
func (f *fakeResponseWriter) Close() error                { return nil }
func (f *fakeResponseWriter) TsigStatus() error            { return nil }
func (f *fakeResponseWriter) TsigTimersOnly(bool)           {}
func (f *fakeResponseWriter) Hijack()                       {}
