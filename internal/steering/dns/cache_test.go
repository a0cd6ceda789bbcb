// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dns

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/domain"
)

func TestCache_SetGet(t *testing.T) {
	c := newCache(32)
	k := cacheKey{name: "example.com.", qtype: 1}
	rec := cacheRecord{ips: []net.IP{net.ParseIP("1.2.3.4")}, expiresAt: time.Now().Add(time.Minute)}

	c.set(k, rec)
	got, ok := c.get(k, time.Now())
	require.True(t, ok)
	assert.Equal(t, rec.ips, got.ips)
}

func TestCache_Expired(t *testing.T) {
	c := newCache(32)
	k := cacheKey{name: "expired.test.", qtype: 1}
	c.set(k, cacheRecord{expiresAt: time.Now().Add(-time.Second)})

	_, ok := c.get(k, time.Now())
	assert.False(t, ok)
}

func TestCache_Miss(t *testing.T) {
	c := newCache(32)
	_, ok := c.get(cacheKey{name: "missing.test."}, time.Now())
	assert.False(t, ok)
}

func TestCache_LRUEviction(t *testing.T) {
	// capacity 1 forces every shard down to its minimum of 1 entry, so
	// two keys landing in the same shard must evict one another.
	c := newCache(1)

	k1 := cacheKey{name: "a.test."}
	var k2 cacheKey
	found := false
	for i := 0; i < 10000; i++ {
		k2 = cacheKey{name: "host" + string(rune('a'+i%26)) + string(rune('a'+(i/26)%26)) + ".test."}
		if c.shardFor(k1) == c.shardFor(k2) {
			found = true
			break
		}
	}
	require.True(t, found, "expected to find a second key sharing k1's shard")

	c.set(k1, cacheRecord{expiresAt: time.Now().Add(time.Minute)})
	c.set(k2, cacheRecord{expiresAt: time.Now().Add(time.Minute)})

	s := c.shardFor(k1)
	assert.LessOrEqual(t, s.ll.Len(), s.capacity)
	_, k1Present := c.get(k1, time.Now())
	_, k2Present := c.get(k2, time.Now())
	assert.False(t, k1Present && k2Present, "both keys should not survive eviction in a capacity-1 shard")
}

func TestCache_ForEach_EvictAndUpdate(t *testing.T) {
	c := newCache(32)
	keep := cacheKey{name: "keep.test."}
	evict := cacheKey{name: "evict.test."}
	id := domain.NewConfigID()

	c.set(keep, cacheRecord{ruleID: id, expiresAt: time.Now().Add(time.Minute)})
	c.set(evict, cacheRecord{expiresAt: time.Now().Add(time.Minute)})

	c.forEach(func(k cacheKey, rec cacheRecord) (cacheRecord, bool) {
		if k == evict {
			return rec, true
		}
		rec.mark = domain.FlowMark{Mark: 42}
		return rec, false
	})

	_, ok := c.get(evict, time.Now())
	assert.False(t, ok)

	got, ok := c.get(keep, time.Now())
	require.True(t, ok)
	assert.Equal(t, uint32(42), got.mark.Mark)
}
