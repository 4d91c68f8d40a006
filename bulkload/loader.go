package bulkload

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/kvprovider"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/prom"
	st "github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/settings"
	"github.com/rs/zerolog"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Adder is the part of a filter the loader writes to. bloom.Filter[string] satisfies it.
type Adder interface {
	Add(ctx context.Context, id string) error
}

type Options struct {
	// filter name for metrics and failure logs
	Name    string
	Workers int
	// max ids added per second, 0 for unlimited
	RatePerSecond float64
	// retries of a transiently failing add before the load is aborted
	MaxRetries int
	// first delay between retries, doubled each attempt
	Backoff time.Duration
	Logger  *zerolog.Logger
}

// OptionsFromSettings returns loader options from the load settings.
func OptionsFromSettings(name string) Options {
	return Options{
		Name:          name,
		Workers:       st.Load.Workers,
		RatePerSecond: st.Load.RatePerSecond,
		MaxRetries:    st.Load.MaxRetries,
		Backoff:       time.Duration(st.Load.BackoffMilliseconds) * time.Millisecond,
	}
}

type Stats struct {
	Added   uint64
	Failed  uint64
	Retries uint64
}

// Loader populates a filter from a Source with bounded concurrency.
type Loader struct {
	filter  Adder
	opts    Options
	limiter *rate.Limiter
	log     *zerolog.Logger

	added   atomic.Uint64
	failed  atomic.Uint64
	retries atomic.Uint64
}

func New(filter Adder, opts Options) *Loader {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	limit := rate.Inf
	burst := 1
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
		burst = max(1, int(opts.RatePerSecond))
	}
	log := opts.Logger
	if log == nil {
		log = &st.Logger
	}
	return &Loader{
		filter:  filter,
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
	}
}

func (l *Loader) Stats() Stats {
	return Stats{
		Added:   l.added.Load(),
		Failed:  l.failed.Load(),
		Retries: l.retries.Load(),
	}
}

// Load adds every id from src. The first id that can't be added cancels the load and is returned.
// Ids added before a failure stay in the filter, loading again is safe.
func (l *Loader) Load(ctx context.Context, src Source) (Stats, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	start := time.Now()
	listErr := src.List(gctx, func(id string) error {
		if err := l.limiter.Wait(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			return l.add(gctx, id)
		})
		return nil
	})
	err := g.Wait()
	stats := l.Stats()
	l.log.Info().Str("filter", l.opts.Name).Uint64("added", stats.Added).Uint64("failed", stats.Failed).
		Uint64("retries", stats.Retries).Dur("took", time.Since(start)).Msg("load finished")
	// a worker failure also cancels the listing, report the root cause
	if err != nil {
		return stats, err
	}
	return stats, listErr
}

func (l *Loader) add(ctx context.Context, id string) error {
	backoff := l.opts.Backoff
	for attempt := 0; ; attempt++ {
		err := l.filter.Add(ctx, id)
		if err == nil {
			l.added.Add(1)
			prom.LoadItems.WithLabelValues(l.opts.Name, "ok").Inc()
			return nil
		}
		if !errors.Is(err, kvprovider.ErrTransient) || attempt >= l.opts.MaxRetries || ctx.Err() != nil {
			l.fail(id, attempt+1, err)
			return fmt.Errorf("failed to load %s after %d attempts: %w", id, attempt+1, err)
		}
		l.retries.Add(1)
		prom.LoadRetries.WithLabelValues(l.opts.Name).Inc()
		l.log.Debug().Err(err).Str("id", id).Dur("backoff", backoff).Msg("retrying filter add")
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.fail(id, attempt+1, ctx.Err())
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

func (l *Loader) fail(id string, attempts int, err error) {
	l.failed.Add(1)
	prom.LoadItems.WithLabelValues(l.opts.Name, "error").Inc()
	line, _ := sjson.SetBytes(nil, "filter", l.opts.Name)
	line, _ = sjson.SetBytes(line, "id", id)
	line, _ = sjson.SetBytes(line, "attempts", attempts)
	line, _ = sjson.SetBytes(line, "error", err.Error())
	st.ChLogLoadErr <- line
	l.log.Warn().Err(err).Str("id", id).Str("filter", l.opts.Name).Msg("failed to add id to filter")
}
