package ssa

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parex_ssa_cache_hits_total",
		Help: "Path cache lookups that found an entry",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parex_ssa_cache_misses_total",
		Help: "Path cache lookups that missed",
	})
	cacheInserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parex_ssa_cache_inserts_total",
		Help: "New path logs stored",
	})
	cachePromotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parex_ssa_cache_promotions_total",
		Help: "Log payloads promoted to graphs",
	})
	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parex_ssa_cache_evictions_total",
		Help: "Entries evicted by the governor",
	})
)
