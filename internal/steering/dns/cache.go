// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dns

import (
	"container/list"
	"hash/fnv"
	"net"
	"sync"
	"time"

	"grimm.is/flywall/internal/domain"
)

const (
	cacheShardCount  = 16
	defaultCacheSize = 4096 // spec §4.5: "bounded LRU DNS cache (default 4096 entries)"
)

// cacheKey is (domain, record_type) per spec §4.5 step 5.
type cacheKey struct {
	name  string
	qtype uint16
}

// cacheRecord is one resolved answer set. ruleID/mark record which rule
// stamped it, so a later rule change can re-evaluate or evict the entry
// without a full flush (spec §4.5 "Cache invalidation on rule change").
type cacheRecord struct {
	ips       []net.IP
	ruleID    domain.ConfigID
	mark      domain.FlowMark
	expiresAt time.Time
}

// cache is a bounded LRU+TTL cache sharded by fnv hash of the key for
// contention avoidance, mirroring the teacher's own `[N]*cacheShard`
// pattern but with real LRU eviction instead of random eviction, and a
// capacity that matches spec §4.5's default of 4096 entries total.
type cache struct {
	shards [cacheShardCount]*cacheShard
}

type cacheShard struct {
	mu       sync.Mutex
	ll       *list.List
	items    map[cacheKey]*list.Element
	capacity int
}

type cacheEntry struct {
	key    cacheKey
	record cacheRecord
}

func newCache(capacity int) *cache {
	if capacity <= 0 {
		capacity = defaultCacheSize
	}
	c := &cache{}
	perShard := capacity / cacheShardCount
	if perShard < 1 {
		perShard = 1
	}
	for i := range c.shards {
		c.shards[i] = &cacheShard{
			ll:       list.New(),
			items:    make(map[cacheKey]*list.Element),
			capacity: perShard,
		}
	}
	return c
}

func (c *cache) shardFor(k cacheKey) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(k.name))
	return c.shards[h.Sum32()%cacheShardCount]
}

func (c *cache) get(k cacheKey, now time.Time) (cacheRecord, bool) {
	s := c.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[k]
	if !ok {
		return cacheRecord{}, false
	}
	entry := el.Value.(*cacheEntry)
	if now.After(entry.record.expiresAt) {
		s.ll.Remove(el)
		delete(s.items, k)
		return cacheRecord{}, false
	}
	s.ll.MoveToFront(el)
	return entry.record, true
}

func (c *cache) set(k cacheKey, rec cacheRecord) {
	s := c.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[k]; ok {
		el.Value.(*cacheEntry).record = rec
		s.ll.MoveToFront(el)
		return
	}

	el := s.ll.PushFront(&cacheEntry{key: k, record: rec})
	s.items[k] = el

	for s.ll.Len() > s.capacity {
		oldest := s.ll.Back()
		if oldest == nil {
			break
		}
		s.ll.Remove(oldest)
		delete(s.items, oldest.Value.(*cacheEntry).key)
	}
}

// forEach walks every live (non-expired at call time is not guaranteed —
// callers filter) entry across all shards; used by rule-change
// revisitation (spec §4.5 "Cache invalidation on rule change").
func (c *cache) forEach(fn func(k cacheKey, rec cacheRecord) (newRec cacheRecord, evict bool)) {
	for _, s := range c.shards {
		s.mu.Lock()
		var next *list.Element
		for el := s.ll.Front(); el != nil; el = next {
			next = el.Next()
			entry := el.Value.(*cacheEntry)
			newRec, evict := fn(entry.key, entry.record)
			if evict {
				s.ll.Remove(el)
				delete(s.items, entry.key)
				continue
			}
			entry.record = newRec
		}
		s.mu.Unlock()
	}
}
