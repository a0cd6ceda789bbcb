// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flowtable

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/errors"
	"grimm.is/flywall/internal/logging"
)

type fakeWriter struct {
	macSets      map[string]domain.FlowID
	macDeletes   map[string]bool
	prefixSets   map[string]domain.FlowID
	prefixDeletes map[string]bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		macSets:       make(map[string]domain.FlowID),
		macDeletes:    make(map[string]bool),
		prefixSets:    make(map[string]domain.FlowID),
		prefixDeletes: make(map[string]bool),
	}
}

func (w *fakeWriter) SetMac(mac string, flowID domain.FlowID) error {
	w.macSets[mac] = flowID
	return nil
}
func (w *fakeWriter) DeleteMac(mac string) error {
	w.macDeletes[mac] = true
	return nil
}
func (w *fakeWriter) SetPrefix(cidr string, flowID domain.FlowID) error {
	w.prefixSets[cidr] = flowID
	return nil
}
func (w *fakeWriter) DeletePrefix(cidr string) error {
	w.prefixDeletes[cidr] = true
	return nil
}

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError})
}

func prefixRule(cidr string, flowID domain.FlowID) *domain.FlowConfig {
	ip, ipnet, _ := net.ParseCIDR(cidr)
	ones, _ := ipnet.Mask.Size()
	return &domain.FlowConfig{
		ID:     domain.NewConfigID(),
		FlowID: flowID,
		Enable: true,
		EntryRules: []domain.FlowEntryRule{
			{Mode: domain.FlowEntryMode{IP: ip, PrefixLen: ones}},
		},
	}
}

func TestTable_Compile_AddsEntries(t *testing.T) {
	w := newFakeWriter()
	tbl := New(w, testLogger())

	cfg := prefixRule("10.0.0.0/8", 1)
	require.NoError(t, tbl.Compile(context.Background(), []*domain.FlowConfig{cfg}))

	assert.Equal(t, domain.FlowID(1), w.prefixSets["10.0.0.0/8"])
}

func TestTable_Compile_RejectsOverlapDifferentFlow(t *testing.T) {
	w := newFakeWriter()
	tbl := New(w, testLogger())

	a := prefixRule("10.0.0.0/8", 1)
	b := prefixRule("10.0.0.0/8", 2)

	err := tbl.Compile(context.Background(), []*domain.FlowConfig{a, b})
	require.Error(t, err)
	assert.Equal(t, errors.KindConflict, errors.GetKind(err))
	assert.Equal(t, "flow_rule.conflict_entry", errors.GetAttributes(err)["error_id"])
	assert.Equal(t, domain.FlowID(1), errors.GetAttributes(err)["conflict.flow_id"])
}

func TestTable_Compile_AddBeforeRemove(t *testing.T) {
	w := newFakeWriter()
	tbl := New(w, testLogger())

	first := prefixRule("10.0.0.0/8", 1)
	require.NoError(t, tbl.Compile(context.Background(), []*domain.FlowConfig{first}))

	second := prefixRule("192.168.0.0/16", 1)
	require.NoError(t, tbl.Compile(context.Background(), []*domain.FlowConfig{second}))

	assert.True(t, w.prefixSets["192.168.0.0/16"] == 1)
	assert.True(t, w.prefixDeletes["10.0.0.0/8"])
}

func TestTable_LookupPrefix_LongestWins(t *testing.T) {
	w := newFakeWriter()
	tbl := New(w, testLogger())

	broad := prefixRule("10.0.0.0/8", 1)
	narrow := prefixRule("10.1.0.0/16", 2)
	require.NoError(t, tbl.Compile(context.Background(), []*domain.FlowConfig{broad, narrow}))

	flowID, ok := tbl.LookupPrefix(net.ParseIP("10.1.2.3"))
	require.True(t, ok)
	assert.Equal(t, domain.FlowID(2), flowID)
}
