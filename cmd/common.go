package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/backing"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/bloom"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/kvprovider"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/readthrough"
	st "github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/settings"
	"github.com/prometheus/client_golang/prometheus"
)

// exitOnErr prints err and exits when it is not nil.
func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, msg+":", err)
	os.Exit(1)
}

// filterFromDefinition builds a filter handle without touching redis.
func filterFromDefinition(kv kvprovider.KVInterface, def st.FilterDefinition) (*bloom.Filter[string], error) {
	funnel, err := bloom.StringFunnelByName(def.Funnel)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", def.Name, err)
	}
	filter, err := bloom.New(kv, def.Key, kvprovider.Partition(def.Partition), def.ExpectedInsertions, def.FalsePositiveProbability, funnel)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", def.Name, err)
	}
	return filter, nil
}

// readFilter builds the named filter for reads. An unstamped filter is used as is,
// a mismatched stamp is an error.
func readFilter(ctx context.Context, kv kvprovider.KVInterface, name string) (*bloom.Filter[string], error) {
	def, err := st.GetFilterDefinition(name)
	if err != nil {
		return nil, err
	}
	filter, err := filterFromDefinition(kv, def)
	if err != nil {
		return nil, err
	}
	if _, err := filter.CheckStamp(ctx); err != nil {
		return nil, err
	}
	return filter, nil
}

// openFilter builds the named filter and stamps its spec on first use.
func openFilter(ctx context.Context, kv kvprovider.KVInterface, name string) (*bloom.Filter[string], error) {
	def, err := st.GetFilterDefinition(name)
	if err != nil {
		return nil, err
	}
	filter, err := filterFromDefinition(kv, def)
	if err != nil {
		return nil, err
	}
	stamped, err := filter.CheckStamp(ctx)
	if err != nil {
		return nil, err
	}
	if !stamped {
		st.Logger.Info().Str("filter", def.Name).Str("spec", filter.Spec().String()).Msg("stamping new filter")
		if err := filter.Stamp(ctx); err != nil {
			return nil, err
		}
	}
	return filter, nil
}

// cacheOptions maps the cache settings onto read-through options.
// The local tier registers its metrics with registerer.
func cacheOptions(registerer prometheus.Registerer) (readthrough.Options, error) {
	opts := readthrough.Options{
		CacheKey:   st.Cache.Key,
		Partition:  kvprovider.Partition(st.Cache.Partition),
		TTL:        time.Duration(st.Cache.TTLSeconds) * time.Second,
		ExpiryMode: kvprovider.ExpireKey,
		Logger:     &st.Logger,
	}
	if st.Cache.FieldTTL {
		opts.ExpiryMode = kvprovider.ExpireField
	}
	if st.Cache.LocalSizeBytes > 0 {
		local, err := readthrough.NewLocalTier(
			int(st.Cache.LocalSizeBytes),
			st.Cache.LocalShards,
			time.Duration(st.Cache.LocalTTLSeconds)*time.Second,
			registerer,
		)
		if err != nil {
			return opts, fmt.Errorf("failed to create local cache tier: %w", err)
		}
		opts.Local = local
	}
	return opts, nil
}

// openCache wires the named filter, the redis cache and the backing store together.
func openCache(ctx context.Context, kv kvprovider.KVInterface, name string, records backing.RecordStore, registerer prometheus.Registerer) (*readthrough.Cache, error) {
	filter, err := openFilter(ctx, kv, name)
	if err != nil {
		return nil, err
	}
	opts, err := cacheOptions(registerer)
	if err != nil {
		return nil, err
	}
	return readthrough.New(filter, kv, records, opts)
}

// describeErr gives a short reason for output envelopes.
func describeErr(err error) string {
	switch {
	case errors.Is(err, bloom.ErrSpecMismatch):
		return "spec_mismatch"
	case errors.Is(err, kvprovider.ErrTransient):
		return "transient"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
