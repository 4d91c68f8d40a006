package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilterAdds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bloomcache_filter_adds_total",
		Help: "The total number of items added to a bloom filter",
	}, []string{"filter"})
	FilterChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bloomcache_filter_checks_total",
		Help: "The total number of bloom filter membership checks by result (maybe, absent, error)",
	}, []string{"filter", "result"})
	FilterStoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bloomcache_filter_store_errors_total",
		Help: "The total number of failed bit array reads or writes",
	}, []string{"filter", "op"})
)

var FilterApproximateItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "bloomcache_filter_approximate_items",
	Help: "Estimated number of distinct items in a bloom filter, from its set bit count",
}, []string{"filter"})
