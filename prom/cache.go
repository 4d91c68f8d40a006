package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bloomcache_lookups_total",
		Help: "The total number of read-through lookups by outcome and the tier that answered",
	}, []string{"outcome", "source"})
	LookupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bloomcache_lookup_duration",
		Help:    "Duration of a read-through lookup",
		Buckets: []float64{.0005, .001, .005, .01, .025, .050, .1, .25, .5, 1, 2.5, 5},
	}, []string{"outcome"})
	CacheWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bloomcache_cache_write_failures_total",
		Help: "The total number of records fetched from the backing store that could not be cached",
	})
	CoalescedFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bloomcache_coalesced_fetches_total",
		Help: "The total number of backing store fetches shared with another in-flight lookup",
	})
)
