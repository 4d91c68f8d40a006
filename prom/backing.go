package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BackingOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bloomcache_backing_op_duration",
		Help:    "Duration of a backing store operation",
		Buckets: []float64{.005, .01, .025, .050, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"backend", "method", "result"})
)
