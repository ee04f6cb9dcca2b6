package ssa

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ledgerwatch/log/v3"
)

// payload is the tagged variant stored in a cache entry: exactly one of log
// or graph is set. Promotion swaps the whole payload pointer so readers
// always observe a consistent form.
type payload struct {
	log   *Log
	graph *Graph
}

// CacheEntry is one cached execution path. The payload may be promoted in
// place from Log to Graph; the access count is the entry's sole hotness
// signal and tolerates lost updates under race, since it only drives offline
// heuristics.
type CacheEntry struct {
	key         PathKey
	payload     atomic.Pointer[payload]
	accessCount atomic.Uint64
	lastSeen    atomic.Int64
}

func newCacheEntry(key PathKey, l *Log) *CacheEntry {
	e := &CacheEntry{key: key}
	e.payload.Store(&payload{log: l})
	e.touch()
	return e
}

func (e *CacheEntry) touch() {
	e.accessCount.Add(1)
	e.lastSeen.Store(time.Now().Unix())
}

func (e *CacheEntry) Key() PathKey        { return e.key }
func (e *CacheEntry) AccessCount() uint64 { return e.accessCount.Load() }
func (e *CacheEntry) LastSeen() int64     { return e.lastSeen.Load() }

// Log returns the compact trace form, or nil if the entry was promoted.
// Callers pattern-match on the payload form rather than relying on implicit
// dispatch.
func (e *CacheEntry) Log() *Log {
	return e.payload.Load().log
}

// Graph returns the materialized form, or nil if the entry was not promoted.
func (e *CacheEntry) Graph() *Graph {
	return e.payload.Load().graph
}

// Promoted reports whether the payload holds the Graph form.
func (e *CacheEntry) Promoted() bool {
	return e.payload.Load().graph != nil
}

// Replay walks the cached path in execution order, whichever form the
// payload currently holds.
func (e *CacheEntry) Replay(apply func(rec OpRecord) error) error {
	p := e.payload.Load()
	if p.graph != nil {
		return p.graph.Replay(apply)
	}
	return p.log.Replay(apply)
}

// sourceLog returns the trace form regardless of promotion state.
func (e *CacheEntry) sourceLog() *Log {
	p := e.payload.Load()
	if p.graph != nil {
		return p.graph.Log()
	}
	return p.log
}

func (e *CacheEntry) sizeEstimate() uint64 {
	p := e.payload.Load()
	if p.graph != nil {
		return p.graph.sizeEstimate()
	}
	return p.log.sizeEstimate()
}

const cacheShardCount = 64

type cacheShard struct {
	lock    sync.RWMutex
	entries map[PathKey]*CacheEntry
}

// Cache is the shared content-addressed store of execution paths. It is an
// explicitly constructed handle injected into the scheduler and each worker;
// lifecycle is load-from-snapshot-or-empty at startup, flush at checkpoint or
// shutdown. Safe for concurrent lookup, insert and promotion.
type Cache struct {
	shards [cacheShardCount]cacheShard
	logger log.Logger
}

func NewCache(logger log.Logger) *Cache {
	c := &Cache{logger: logger}
	for i := range c.shards {
		c.shards[i].entries = map[PathKey]*CacheEntry{}
	}
	return c
}

func (c *Cache) shard(key PathKey) *cacheShard {
	return &c.shards[(key.code[0]^key.path[0])%cacheShardCount]
}

// Lookup returns the entry for key, counting the access. A miss is normal
// control flow: the caller follows up with LookupOrBuild.
func (c *Cache) Lookup(key PathKey) (*CacheEntry, bool) {
	s := c.shard(key)
	s.lock.RLock()
	e, ok := s.entries[key]
	s.lock.RUnlock()
	if !ok {
		cacheMisses.Inc()
		return nil, false
	}
	e.touch()
	cacheHits.Inc()
	return e, true
}

// Peek returns the entry for key without counting the access. Reporting
// surfaces use it so inspection does not skew hotness.
func (c *Cache) Peek(key PathKey) (*CacheEntry, bool) {
	s := c.shard(key)
	s.lock.RLock()
	e, ok := s.entries[key]
	s.lock.RUnlock()
	return e, ok
}

// LookupOrBuild returns the entry for key, invoking build on a miss to
// produce the initial Log payload. A concurrent insert of the same key wins
// over the built result, which is discarded.
func (c *Cache) LookupOrBuild(key PathKey, build func() (*Log, error)) (*CacheEntry, error) {
	if e, ok := c.Lookup(key); ok {
		return e, nil
	}

	l, err := build()
	if err != nil {
		return nil, fmt.Errorf("ssa log build: %w", err)
	}

	s := c.shard(key)
	s.lock.Lock()
	if e, ok := s.entries[key]; ok {
		s.lock.Unlock()
		e.touch()
		return e, nil
	}
	e := newCacheEntry(key, l)
	s.entries[key] = e
	s.lock.Unlock()
	cacheInserts.Inc()
	return e, nil
}

// Promote converts the entry's payload from Log to Graph using a
// build-then-swap discipline: the graph is built outside any lock, then
// swapped in only if the payload is still the Log it was built from. A
// losing concurrent builder's result is discarded; the entry is never
// observed in a corrupt intermediate state. Promoting an already promoted
// entry is a no-op.
func (c *Cache) Promote(key PathKey) error {
	s := c.shard(key)
	s.lock.RLock()
	e, ok := s.entries[key]
	s.lock.RUnlock()
	if !ok {
		return fmt.Errorf("promote: unknown path key %s", key)
	}

	for {
		p := e.payload.Load()
		if p.graph != nil {
			return nil
		}
		g, err := BuildGraph(p.log)
		if err != nil {
			return fmt.Errorf("promote %s: %w", key, err)
		}
		if e.payload.CompareAndSwap(p, &payload{graph: g}) {
			cachePromotions.Inc()
			return nil
		}
		// Lost the race; whoever won either promoted already or replaced
		// the payload we built from.
	}
}

// Evict removes the given entries. The governor chooses them; the cache does
// not second-guess the policy.
func (c *Cache) Evict(keys []PathKey) {
	for _, key := range keys {
		s := c.shard(key)
		s.lock.Lock()
		if _, ok := s.entries[key]; ok {
			delete(s.entries, key)
			cacheEvictions.Inc()
		}
		s.lock.Unlock()
	}
}

// walk visits every entry under the owning shard's read lock, one shard at a
// time. yield returning false stops the walk.
func (c *Cache) walk(yield func(key PathKey, e *CacheEntry) bool) {
	for i := range c.shards {
		s := &c.shards[i]
		s.lock.RLock()
		for key, e := range s.entries {
			if !yield(key, e) {
				s.lock.RUnlock()
				return
			}
		}
		s.lock.RUnlock()
	}
}

// Len returns the number of cached paths.
func (c *Cache) Len() int {
	n := 0
	c.walk(func(PathKey, *CacheEntry) bool {
		n++
		return true
	})
	return n
}

// SizeEstimate approximates the memory held by cached payloads.
func (c *Cache) SizeEstimate() uint64 {
	var size uint64
	c.walk(func(_ PathKey, e *CacheEntry) bool {
		size += e.sizeEstimate()
		return true
	})
	return size
}

// StatsSnapshot copies the per-entry stats into a slice the governor and the
// reporting tools can sort and slice outside the hot path. Counts observed
// during concurrent execution are approximate.
func (c *Cache) StatsSnapshot() []KeyCount {
	var out []KeyCount
	c.walk(func(key PathKey, e *CacheEntry) bool {
		out = append(out, KeyCount{Key: key, Count: e.AccessCount(), LastSeen: e.LastSeen(), Size: e.sizeEstimate()})
		return true
	})
	return out
}
