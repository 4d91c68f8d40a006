package readthrough

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/backing"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/kvprovider"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/prom"
	st "github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/settings"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL          = time.Hour
	DefaultFetchTimeout = 30 * time.Second
)

// Gate answers whether an id may have a record. bloom.Filter[string] satisfies it.
type Gate interface {
	Contains(ctx context.Context, id string) (bool, error)
	Add(ctx context.Context, id string) error
}

type Options struct {
	// redis hash holding cached records
	CacheKey  string
	Partition kvprovider.Partition
	// ttl for cache entries, DefaultTTL when zero
	TTL        time.Duration
	ExpiryMode kvprovider.ExpiryMode
	// bounds a coalesced backing store fetch, DefaultFetchTimeout when zero
	FetchTimeout time.Duration
	// optional in process tier
	Local  *LocalTier
	Logger *zerolog.Logger
}

// Cache looks records up through a filter gate, a redis hash cache and finally the backing store.
type Cache struct {
	gate    Gate
	hashes  kvprovider.HashStore
	records backing.RecordStore
	opts    Options
	log     *zerolog.Logger
	group   singleflight.Group
}

func New(gate Gate, hashes kvprovider.HashStore, records backing.RecordStore, opts Options) (*Cache, error) {
	if gate == nil || hashes == nil || records == nil {
		return nil, errors.New("read through cache needs a gate, a hash store and a record store")
	}
	if opts.CacheKey == "" {
		return nil, errors.New("read through cache needs a cache key")
	}
	if err := opts.Partition.Validate(); err != nil {
		return nil, err
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	log := opts.Logger
	if log == nil {
		log = &st.Logger
	}
	return &Cache{
		gate:    gate,
		hashes:  hashes,
		records: records,
		opts:    opts,
		log:     log,
	}, nil
}

// Lookup resolves id. Store failures are returned as errors wrapping kvprovider.ErrTransient
// and are never reported as an absence.
func (c *Cache) Lookup(ctx context.Context, id string) (Result, error) {
	start := time.Now()
	res, err := c.lookup(ctx, id)
	outcome := res.Outcome.String()
	if err != nil {
		outcome = "error"
	}
	prom.Lookups.WithLabelValues(outcome, res.Source.String()).Inc()
	prom.LookupDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return res, err
}

func (c *Cache) lookup(ctx context.Context, id string) (Result, error) {
	maybe, err := c.gate.Contains(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("gate lookup for %s: %w", id, err)
	}
	if !maybe {
		return Result{Outcome: OutcomeDefiniteAbsence}, nil
	}

	if c.opts.Local != nil {
		if val, ok := c.opts.Local.get(ctx, id); ok {
			return Result{Outcome: OutcomeFound, Value: val, Source: SourceLocal}, nil
		}
	}

	val, err := c.hashes.HGet(ctx, c.opts.Partition, c.opts.CacheKey, id)
	if err != nil {
		return Result{}, fmt.Errorf("cache lookup for %s: %w", id, err)
	}
	if val != nil {
		c.setLocal(ctx, id, val)
		return Result{Outcome: OutcomeFound, Value: val, Source: SourceCache}, nil
	}
	return c.fetch(ctx, id)
}

type fetched struct {
	value []byte
	found bool
}

// fetch reads id from the backing store, sharing one in flight fetch between concurrent callers.
func (c *Cache) fetch(ctx context.Context, id string) (Result, error) {
	ch := c.group.DoChan(id, func() (any, error) {
		// the fetch outlives a cancelled leader so other waiters still get a result
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
		defer cancel()
		data, err := c.records.Fetch(fctx, id)
		if backing.IsNotFound(err) {
			return fetched{}, nil
		}
		if err != nil {
			return nil, &kvprovider.TransientError{Op: "fetch", Key: id, Err: err}
		}
		c.populate(fctx, id, data)
		return fetched{value: data, found: true}, nil
	})

	select {
	case <-ctx.Done():
		return Result{}, &kvprovider.TransientError{Op: "fetch", Key: id, Err: ctx.Err()}
	case r := <-ch:
		if r.Shared {
			prom.CoalescedFetches.Inc()
		}
		if r.Err != nil {
			return Result{}, r.Err
		}
		f := r.Val.(fetched)
		if !f.found {
			return Result{Outcome: OutcomePossiblePresenceMiss, Source: SourceBacking}, nil
		}
		val := f.value
		if r.Shared {
			val = slices.Clone(val)
		}
		return Result{Outcome: OutcomeFound, Value: val, Source: SourceBacking}, nil
	}
}

// populate writes a fetched record to the caches. Failures are logged, the record is still served.
func (c *Cache) populate(ctx context.Context, id string, data []byte) {
	err := c.hashes.HSetWithTTL(ctx, c.opts.Partition, c.opts.CacheKey, id, data, c.opts.TTL, c.opts.ExpiryMode)
	if err != nil {
		prom.CacheWriteFailures.Inc()
		c.log.Warn().Err(err).Str("id", id).Str("key", c.opts.CacheKey).Msg("failed to cache fetched record")
	}
	c.setLocal(ctx, id, data)
}

func (c *Cache) setLocal(ctx context.Context, id string, data []byte) {
	if c.opts.Local == nil {
		return
	}
	if err := c.opts.Local.set(ctx, id, data); err != nil {
		c.log.Debug().Err(err).Str("id", id).Msg("ignoring local cache failure")
	}
}

// Register makes a new record visible: id is added to the filter and value is cached.
// The filter is written first so a failed cache write still leaves the id reachable.
func (c *Cache) Register(ctx context.Context, id string, value []byte) error {
	if err := c.gate.Add(ctx, id); err != nil {
		return fmt.Errorf("register %s: %w", id, err)
	}
	err := c.hashes.HSetWithTTL(ctx, c.opts.Partition, c.opts.CacheKey, id, value, c.opts.TTL, c.opts.ExpiryMode)
	if err != nil {
		return fmt.Errorf("register %s: %w", id, err)
	}
	c.setLocal(ctx, id, value)
	return nil
}

// Invalidate drops any cached copy of id. The filter is unchanged as bits can't be removed.
func (c *Cache) Invalidate(ctx context.Context, id string) error {
	if c.opts.Local != nil {
		// a missing entry is reported as an error by bigcache
		_ = c.opts.Local.delete(ctx, id)
	}
	if _, err := c.hashes.HDel(ctx, c.opts.Partition, c.opts.CacheKey, id); err != nil {
		return fmt.Errorf("invalidate %s: %w", id, err)
	}
	return nil
}
