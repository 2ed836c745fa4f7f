package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by partition name
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paradigm_cache_hits_total",
			Help: "Total number of partition cache hits",
		},
		[]string{"partition"},
	)

	// CacheMisses tracks cache misses across all partitions
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paradigm_cache_misses_total",
			Help: "Total number of partition cache misses",
		},
	)

	// CacheErrors tracks storage medium faults
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paradigm_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "put", "delete", "names", "keys"
	)

	// PartitionsDeleted tracks partitions dropped wholesale
	PartitionsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paradigm_cache_partitions_deleted_total",
			Help: "Total number of cache partitions deleted",
		},
	)
)
