package ssa

import (
	"context"
	"sort"

	"github.com/c2h5oh/datasize"
	"github.com/ledgerwatch/log/v3"
)

// KeyCount is one row of an access statistics snapshot.
type KeyCount struct {
	Key      PathKey
	Count    uint64
	LastSeen int64
	Size     uint64
}

// Distribution summarizes the hotness of a stats snapshot: keys sorted by
// descending access count, totals, and the number of keys needed to cover
// each cumulative access share. The thresholds are the usual Pareto cuts.
type Distribution struct {
	Sorted []KeyCount
	Total  uint64
	// CoverCounts[p] is how many of the hottest keys account for p percent
	// of all accesses, for p in Thresholds.
	CoverCounts map[int]int
}

// Thresholds are the cumulative-share percentiles the governor reports.
var Thresholds = []int{50, 80, 90, 95, 99}

// Analyze computes the hotness distribution of a stats snapshot. Pure; the
// snapshot slice is copied, so the caller may keep mutating its own copy.
func Analyze(stats []KeyCount) *Distribution {
	d := &Distribution{
		Sorted:      make([]KeyCount, len(stats)),
		CoverCounts: map[int]int{},
	}
	copy(d.Sorted, stats)
	sort.Slice(d.Sorted, func(i, j int) bool {
		if d.Sorted[i].Count != d.Sorted[j].Count {
			return d.Sorted[i].Count > d.Sorted[j].Count
		}
		// Deterministic order among equal counts.
		return d.Sorted[i].Key.String() < d.Sorted[j].Key.String()
	})
	for _, kc := range d.Sorted {
		d.Total += kc.Count
	}

	var cum uint64
	next := 0
	for i, kc := range d.Sorted {
		cum += kc.Count
		for next < len(Thresholds) && cum*100 >= uint64(Thresholds[next])*d.Total {
			d.CoverCounts[Thresholds[next]] = i + 1
			next++
		}
	}
	return d
}

// TopK returns the k hottest keys.
func (d *Distribution) TopK(k int) []PathKey {
	if k > len(d.Sorted) {
		k = len(d.Sorted)
	}
	keys := make([]PathKey, 0, k)
	for _, kc := range d.Sorted[:k] {
		keys = append(keys, kc.Key)
	}
	return keys
}

// GovernorConfig tunes the offline cache policy.
type GovernorConfig struct {
	// PrewarmTopK is how many of the hottest entries are eagerly promoted
	// to Graph form at startup.
	PrewarmTopK int
	// ProtectTopK entries are never eviction candidates.
	ProtectTopK int
	// MemoryBudget bounds the cache payload size; eviction triggers above it.
	MemoryBudget datasize.ByteSize
}

// Governor applies prewarm and eviction policy to a cache from outside the
// hot path. It only ever reads the stats export surface and issues
// Promote/Evict calls; it never blocks the scheduler or the trackers.
type Governor struct {
	cache  *Cache
	cfg    GovernorConfig
	logger log.Logger
}

func NewGovernor(cache *Cache, cfg GovernorConfig, logger log.Logger) *Governor {
	return &Governor{cache: cache, cfg: cfg, logger: logger}
}

// Prewarm eagerly promotes the hottest entries so their Graph form is ready
// before demand. Promotion failures are logged and skipped; prewarming is an
// optimization, never a correctness requirement.
func (g *Governor) Prewarm(ctx context.Context) {
	if g.cfg.PrewarmTopK <= 0 {
		return
	}
	d := Analyze(g.cache.StatsSnapshot())
	promoted := 0
	for _, key := range d.TopK(g.cfg.PrewarmTopK) {
		if ctx.Err() != nil {
			return
		}
		if err := g.cache.Promote(key); err != nil {
			g.logger.Warn("prewarm promotion failed", "key", key, "err", err)
			continue
		}
		promoted++
	}
	g.logger.Info("ssa cache prewarmed", "promoted", promoted, "entries", g.cache.Len())
}

// MaybeEvict sheds the coldest entries while the cache exceeds its memory
// budget. The currently hottest ProtectTopK entries are never touched, no
// matter how tight the budget.
func (g *Governor) MaybeEvict() {
	if g.cfg.MemoryBudget == 0 {
		return
	}
	size := g.cache.SizeEstimate()
	if size <= uint64(g.cfg.MemoryBudget) {
		return
	}

	stats := g.cache.StatsSnapshot()
	d := Analyze(stats)
	protected := make(map[PathKey]struct{}, g.cfg.ProtectTopK)
	for _, key := range d.TopK(g.cfg.ProtectTopK) {
		protected[key] = struct{}{}
	}

	// Coldest first: lowest access count, then least recently seen.
	candidates := make([]KeyCount, len(d.Sorted))
	copy(candidates, d.Sorted)
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Count != candidates[j].Count {
			return candidates[i].Count < candidates[j].Count
		}
		return candidates[i].LastSeen < candidates[j].LastSeen
	})

	var evict []PathKey
	for _, kc := range candidates {
		if size <= uint64(g.cfg.MemoryBudget) {
			break
		}
		if _, ok := protected[kc.Key]; ok {
			continue
		}
		evict = append(evict, kc.Key)
		if kc.Size < size {
			size -= kc.Size
		} else {
			size = 0
		}
	}
	g.cache.Evict(evict)
	g.logger.Info("ssa cache evicted", "evicted", len(evict), "entries", g.cache.Len())
}
