package bloom

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/kvprovider"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func newTestFilter(t *testing.T, n uint64, p float64) (*Filter[string], *kvprovider.MemoryProvider) {
	store := kvprovider.NewMemoryProvider()
	f, err := New(store, "USER_INFO", 1, n, p, DoubledStringFunnel)
	require.Nil(t, err)
	return f, store
}

func TestFilterNoFalseNegatives(t *testing.T) {
	f, _ := newTestFilter(t, 1000, 0.01)
	for i := 0; i < 1000; i++ {
		require.Nil(t, f.Add(ctx, fmt.Sprintf("user-%d", i)))
	}
	for i := 0; i < 1000; i++ {
		found, err := f.Contains(ctx, fmt.Sprintf("user-%d", i))
		require.Nil(t, err)
		require.True(t, found, "user-%d", i)
	}
}

func TestFilterFalsePositiveRate(t *testing.T) {
	f, _ := newTestFilter(t, 1000, 0.01)
	for i := 0; i < 1000; i++ {
		require.Nil(t, f.Add(ctx, fmt.Sprintf("user-%d", i)))
	}
	positives := 0
	for i := 0; i < 10000; i++ {
		found, err := f.Contains(ctx, fmt.Sprintf("other-%d", i))
		require.Nil(t, err)
		if found {
			positives++
		}
	}
	// expected around 100
	require.Less(t, positives, 300)
}

func TestFilterEmpty(t *testing.T) {
	f, store := newTestFilter(t, 1000, 0.01)
	found, err := f.Contains(ctx, "anyone")
	require.Nil(t, err)
	require.False(t, found)
	// stops at the first unset bit
	require.Equal(t, 1, store.CallCount("getbit"))
}

func TestFilterAddIdempotent(t *testing.T) {
	f, store := newTestFilter(t, 1000, 0.01)
	require.Nil(t, f.Add(ctx, "user-1"))
	count, err := store.BitCount(ctx, 1, "USER_INFO")
	require.Nil(t, err)
	require.LessOrEqual(t, count, f.Spec().HashCount)
	require.Nil(t, f.Add(ctx, "user-1"))
	again, err := store.BitCount(ctx, 1, "USER_INFO")
	require.Nil(t, err)
	require.Equal(t, count, again)
	require.Equal(t, int(2*f.Spec().HashCount), store.CallCount("setbit"))
}

func TestFilterAddAllAndCount(t *testing.T) {
	f, _ := newTestFilter(t, 1000, 0.01)
	items := []string{}
	for i := 0; i < 200; i++ {
		items = append(items, fmt.Sprintf("user-%d", i))
	}
	require.Nil(t, f.AddAll(ctx, items...))
	count, err := f.ApproximateCount(ctx)
	require.Nil(t, err)
	require.InDelta(t, 200, count, 10)
}

func TestFilterStoreFailure(t *testing.T) {
	f, store := newTestFilter(t, 1000, 0.01)
	require.Nil(t, f.Add(ctx, "user-1"))
	store.SetFailure(errors.New("connection refused"))

	found, err := f.Contains(ctx, "user-1")
	require.ErrorIs(t, err, kvprovider.ErrTransient)
	require.False(t, found)

	err = f.Add(ctx, "user-2")
	require.ErrorIs(t, err, kvprovider.ErrTransient)

	_, err = f.ApproximateCount(ctx)
	require.ErrorIs(t, err, kvprovider.ErrTransient)
}

func TestFilterPartitionIsolation(t *testing.T) {
	store := kvprovider.NewMemoryProvider()
	one, err := New(store, "USER_INFO", 1, 1000, 0.01, StringFunnel)
	require.Nil(t, err)
	two, err := New(store, "USER_INFO", 2, 1000, 0.01, StringFunnel)
	require.Nil(t, err)
	require.Nil(t, one.Add(ctx, "user-1"))
	found, err := two.Contains(ctx, "user-1")
	require.Nil(t, err)
	require.False(t, found)
}

func TestNewFilterInvalid(t *testing.T) {
	store := kvprovider.NewMemoryProvider()
	spec, err := DeriveSpec(1000, 0.01)
	require.Nil(t, err)

	_, err = NewFilter(store, "k", 16, spec, StringFunnel)
	require.ErrorIs(t, err, kvprovider.ErrInvalidPartition)
	_, err = NewFilter(store, "", 0, spec, StringFunnel)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewFilter[string](store, "k", 0, spec, nil)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewFilter(store, "k", 0, Spec{}, StringFunnel)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = New(store, "k", 0, 0, 0.01, StringFunnel)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestFilterStamp(t *testing.T) {
	f, store := newTestFilter(t, 1000, 0.01)
	stamped, err := f.CheckStamp(ctx)
	require.Nil(t, err)
	require.False(t, stamped)

	require.Nil(t, f.Stamp(ctx))
	stamped, err = f.CheckStamp(ctx)
	require.Nil(t, err)
	require.True(t, stamped)

	resized, err := New(store, "USER_INFO", 1, 2000, 0.01, DoubledStringFunnel)
	require.Nil(t, err)
	stamped, err = resized.CheckStamp(ctx)
	require.True(t, stamped)
	require.ErrorIs(t, err, ErrSpecMismatch)
}
