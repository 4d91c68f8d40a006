package readthrough

import (
	"context"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/metrics"
	"github.com/eko/gocache/lib/v4/store"
	bigcache_store "github.com/eko/gocache/store/bigcache/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// LocalTier is an in process record cache in front of redis.
// Entries are never refreshed from redis, so its ttl bounds how stale a record can be.
type LocalTier struct {
	manager cache.CacheInterface[[]byte]
	ttl     time.Duration
	maxItem int // maximum bytes for a record to be cached
}

// NewLocalTier creates a bigcache backed tier holding up to sizeBytes.
// Metrics are registered with registerer, or a private registry when nil.
func NewLocalTier(sizeBytes int, shards int, ttl time.Duration, registerer prometheus.Registerer) (*LocalTier, error) {
	c := bigcache.DefaultConfig(ttl)
	c.HardMaxCacheSize = max(sizeBytes/1048576, 1) // in MB
	c.Verbose = false
	if shards > 0 {
		c.Shards = shards
	}
	// bigcache rejects entries bigger than a shard
	maxItem := (c.HardMaxCacheSize*1048576)/c.Shards - 1
	client, err := bigcache.New(context.Background(), c)
	if err != nil {
		return nil, err
	}
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	promMetrics := metrics.NewPrometheus("bloomcache_local", metrics.WithRegisterer(registerer))
	manager := cache.NewMetric(promMetrics, cache.New[[]byte](bigcache_store.NewBigcache(client)))
	return &LocalTier{
		manager: manager,
		ttl:     ttl,
		maxItem: maxItem,
	}, nil
}

func (l *LocalTier) get(ctx context.Context, id string) ([]byte, bool) {
	val, err := l.manager.Get(ctx, id)
	// any error is a miss, redis is consulted next
	if err != nil || val == nil {
		return nil, false
	}
	return val, true
}

func (l *LocalTier) set(ctx context.Context, id string, val []byte) error {
	if len(val) > l.maxItem {
		return nil
	}
	return l.manager.Set(ctx, id, val, store.WithExpiration(l.ttl))
}

func (l *LocalTier) delete(ctx context.Context, id string) error {
	return l.manager.Delete(ctx, id)
}
