package bloom

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/kvprovider"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/prom"
	"github.com/cespare/xxhash/v2"
)

// stampProbe is hashed to fingerprint the offset scheme in spec stamps.
var stampProbe = []byte("azul-bloomcache")

// Filter is a bloom filter over items of type T whose bits are held in a BitStore.
// It has no mutable state and is safe for concurrent use.
type Filter[T any] struct {
	store     kvprovider.BitStore
	key       string
	partition kvprovider.Partition
	spec      Spec
	funnel    Funnel[T]
}

// NewFilter wraps the bit array at key in partition, sized by spec.
func NewFilter[T any](store kvprovider.BitStore, key string, partition kvprovider.Partition, spec Spec, funnel Funnel[T]) (*Filter[T], error) {
	if store == nil {
		return nil, fmt.Errorf("%w: no bit store", ErrInvalidParameter)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: empty filter key", ErrInvalidParameter)
	}
	if funnel == nil {
		return nil, fmt.Errorf("%w: no funnel", ErrInvalidParameter)
	}
	if spec.BitSize == 0 || spec.HashCount == 0 || spec.BitSize > MaxBitSize {
		return nil, fmt.Errorf("%w: bad spec %s", ErrInvalidParameter, spec)
	}
	if err := partition.Validate(); err != nil {
		return nil, err
	}
	return &Filter[T]{
		store:     store,
		key:       key,
		partition: partition,
		spec:      spec,
		funnel:    funnel,
	}, nil
}

// New derives a spec for n items at false positive rate p and wraps the bit array at key.
func New[T any](store kvprovider.BitStore, key string, partition kvprovider.Partition, n uint64, p float64, funnel Funnel[T]) (*Filter[T], error) {
	spec, err := DeriveSpec(n, p)
	if err != nil {
		return nil, err
	}
	return NewFilter(store, key, partition, spec, funnel)
}

func (f *Filter[T]) Spec() Spec                      { return f.spec }
func (f *Filter[T]) Key() string                     { return f.key }
func (f *Filter[T]) Partition() kvprovider.Partition { return f.partition }

// Offsets returns the bit positions for item.
func (f *Filter[T]) Offsets(item T) []uint64 {
	return Offsets(f.funnel(item), f.spec)
}

// Add sets every bit for item. The first store failure is returned, bits already set stay set.
func (f *Filter[T]) Add(ctx context.Context, item T) error {
	for _, offset := range f.Offsets(item) {
		if err := f.store.SetBit(ctx, f.partition, f.key, offset); err != nil {
			prom.FilterStoreErrors.WithLabelValues(f.key, "add").Inc()
			return fmt.Errorf("add to filter %s: %w", f.key, err)
		}
	}
	prom.FilterAdds.WithLabelValues(f.key).Inc()
	return nil
}

// AddAll adds items in order, stopping at the first failure.
func (f *Filter[T]) AddAll(ctx context.Context, items ...T) error {
	for _, item := range items {
		if err := f.Add(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// Contains reports false if item was definitely never added, true if it may have been.
// A store failure is returned as an error and never reported as absence.
func (f *Filter[T]) Contains(ctx context.Context, item T) (bool, error) {
	for _, offset := range f.Offsets(item) {
		set, err := f.store.GetBit(ctx, f.partition, f.key, offset)
		if err != nil {
			prom.FilterStoreErrors.WithLabelValues(f.key, "contains").Inc()
			prom.FilterChecks.WithLabelValues(f.key, "error").Inc()
			return false, fmt.Errorf("check filter %s: %w", f.key, err)
		}
		if !set {
			prom.FilterChecks.WithLabelValues(f.key, "absent").Inc()
			return false, nil
		}
	}
	prom.FilterChecks.WithLabelValues(f.key, "maybe").Inc()
	return true, nil
}

// ApproximateCount estimates the number of distinct items added from the number of set bits.
func (f *Filter[T]) ApproximateCount(ctx context.Context) (uint64, error) {
	setBits, err := f.store.BitCount(ctx, f.partition, f.key)
	if err != nil {
		return 0, fmt.Errorf("count filter %s: %w", f.key, err)
	}
	return EstimateCount(f.spec, setBits), nil
}

// StampKey holds the spec the bit array was built with.
func (f *Filter[T]) StampKey() string {
	return f.key + ":spec"
}

func stampFor(spec Spec) string {
	var raw []byte
	for _, offset := range Offsets(stampProbe, spec) {
		raw = binary.BigEndian.AppendUint64(raw, offset)
	}
	return fmt.Sprintf("%d:%d:%016x", spec.BitSize, spec.HashCount, xxhash.Sum64(raw))
}

// StampStore is a BitStore that can also hold plain values, needed for spec stamps.
type StampStore interface {
	kvprovider.BitStore
	GetBytes(ctx context.Context, p kvprovider.Partition, key string) ([]byte, error)
	Set(ctx context.Context, p kvprovider.Partition, key string, value []byte, expiration time.Duration) error
}

// Stamp records the spec of this filter next to its bit array.
func (f *Filter[T]) Stamp(ctx context.Context) error {
	ss, ok := f.store.(StampStore)
	if !ok {
		return fmt.Errorf("%w: store cannot hold stamps", ErrInvalidParameter)
	}
	if err := ss.Set(ctx, f.partition, f.StampKey(), []byte(stampFor(f.spec)), 0); err != nil {
		return fmt.Errorf("stamp filter %s: %w", f.key, err)
	}
	return nil
}

// CheckStamp compares the stored stamp with this filter's spec.
// stamped is false when the bit array has never been stamped.
func (f *Filter[T]) CheckStamp(ctx context.Context) (stamped bool, err error) {
	ss, ok := f.store.(StampStore)
	if !ok {
		return false, fmt.Errorf("%w: store cannot hold stamps", ErrInvalidParameter)
	}
	raw, err := ss.GetBytes(ctx, f.partition, f.StampKey())
	if err != nil {
		return false, fmt.Errorf("read stamp for filter %s: %w", f.key, err)
	}
	if raw == nil {
		return false, nil
	}
	want := stampFor(f.spec)
	if string(raw) != want {
		return true, fmt.Errorf("%w: %s has %s, expected %s", ErrSpecMismatch, f.key, raw, want)
	}
	return true, nil
}
