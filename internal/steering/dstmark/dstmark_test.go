// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dstmark

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/logging"
)

type fakeWriter struct {
	replaced [][]Entry
}

func (w *fakeWriter) ReplaceAll(entries []Entry) error {
	cp := append([]Entry(nil), entries...)
	w.replaced = append(w.replaced, cp)
	return nil
}

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError})
}

func ipRule(cidr string, index int, mark uint32) *domain.WanIpRuleConfig {
	parts := splitCIDR(cidr)
	return &domain.WanIpRuleConfig{
		ID:     domain.NewConfigID(),
		Index:  index,
		Enable: true,
		Mark:   domain.FlowMark{Mark: mark},
		Source: []domain.DstIpSource{
			{Kind: domain.DstIpSourceIPConfig, IP: &domain.IPConfig{IP: parts.ip, Prefix: parts.prefix}},
		},
	}
}

type cidrParts struct {
	ip     string
	prefix int
}

func splitCIDR(cidr string) cidrParts {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return cidrParts{}
	}
	ones, _ := ipnet.Mask.Size()
	return cidrParts{ip: ipnet.IP.String(), prefix: ones}
}

func TestTable_Compile_ResolveByLongestPrefix(t *testing.T) {
	tbl := New(&fakeWriter{}, nil, testLogger())

	broad := ipRule("10.0.0.0/8", 5, 1)
	narrow := ipRule("10.1.0.0/16", 5, 2)

	require.NoError(t, tbl.Compile(context.Background(), []*domain.WanIpRuleConfig{broad, narrow}))

	entry, ok := tbl.Resolve(net.ParseIP("10.1.2.3"))
	require.True(t, ok)
	assert.Equal(t, uint32(2), entry.Mark)
}

func TestTable_Compile_ResolveByPriority(t *testing.T) {
	tbl := New(&fakeWriter{}, nil, testLogger())

	highPriority := ipRule("10.0.0.0/8", 1, 10)
	lowPriority := ipRule("10.0.0.0/8", 5, 20)

	require.NoError(t, tbl.Compile(context.Background(), []*domain.WanIpRuleConfig{lowPriority, highPriority}))

	entry, ok := tbl.Resolve(net.ParseIP("10.5.5.5"))
	require.True(t, ok)
	assert.Equal(t, uint32(10), entry.Mark)
}

func TestTable_Resolve_NoMatch(t *testing.T) {
	tbl := New(&fakeWriter{}, nil, testLogger())
	require.NoError(t, tbl.Compile(context.Background(), []*domain.WanIpRuleConfig{ipRule("192.168.0.0/16", 1, 1)}))

	_, ok := tbl.Resolve(net.ParseIP("8.8.8.8"))
	assert.False(t, ok)
}

func TestTable_Compile_SkipsDisabledRules(t *testing.T) {
	writer := &fakeWriter{}
	tbl := New(writer, nil, testLogger())

	disabled := ipRule("10.0.0.0/8", 1, 1)
	disabled.Enable = false

	require.NoError(t, tbl.Compile(context.Background(), []*domain.WanIpRuleConfig{disabled}))

	_, ok := tbl.Resolve(net.ParseIP("10.0.0.1"))
	assert.False(t, ok)
	require.Len(t, writer.replaced, 1)
	assert.Empty(t, writer.replaced[0])
}

func TestTable_Compile_CallsWriterReplaceAll(t *testing.T) {
	writer := &fakeWriter{}
	tbl := New(writer, nil, testLogger())

	require.NoError(t, tbl.Compile(context.Background(), []*domain.WanIpRuleConfig{ipRule("10.0.0.0/8", 1, 7)}))

	require.Len(t, writer.replaced, 1)
	require.Len(t, writer.replaced[0], 1)
	assert.Equal(t, uint32(7), writer.replaced[0][0].Mark)
}

func TestTable_Compile_InvalidCIDR(t *testing.T) {
	tbl := New(&fakeWriter{}, nil, testLogger())
	bad := &domain.WanIpRuleConfig{
		ID:     domain.NewConfigID(),
		Enable: true,
		Source: []domain.DstIpSource{
			{Kind: domain.DstIpSourceIPConfig, IP: &domain.IPConfig{IP: "not-an-ip", Prefix: 8}},
		},
	}
	err := tbl.Compile(context.Background(), []*domain.WanIpRuleConfig{bad})
	require.Error(t, err)
}
