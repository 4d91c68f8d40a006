package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoadItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bloomcache_load_items_total",
		Help: "The total number of ids processed by bulk filter loads by result",
	}, []string{"filter", "result"})
	LoadRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bloomcache_load_retries_total",
		Help: "The total number of filter writes retried during bulk loads",
	}, []string{"filter"})
)
