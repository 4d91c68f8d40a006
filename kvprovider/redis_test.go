package kvprovider

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newMiniredisProvider(t *testing.T) (*miniredis.Miniredis, *RedisProvider) {
	mr := miniredis.RunT(t)
	prov := NewRedisProviderWithOptions(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { prov.Close() })
	return mr, prov
}

func TestRedisProviderBits(t *testing.T) {
	mr, prov := newMiniredisProvider(t)

	set, err := prov.GetBit(ctx, 1, "USER_INFO", 21566000)
	require.Nil(t, err)
	require.False(t, set)

	require.Nil(t, prov.SetBit(ctx, 1, "USER_INFO", 21566000))
	require.Nil(t, prov.SetBit(ctx, 1, "USER_INFO", 21566000))
	require.Nil(t, prov.SetBit(ctx, 1, "USER_INFO", 7))

	set, err = prov.GetBit(ctx, 1, "USER_INFO", 21566000)
	require.Nil(t, err)
	require.True(t, set)

	count, err := prov.BitCount(ctx, 1, "USER_INFO")
	require.Nil(t, err)
	require.Equal(t, uint64(2), count)

	// written to logical database 1 only
	require.True(t, mr.DB(1).Exists("USER_INFO"))
	require.False(t, mr.DB(0).Exists("USER_INFO"))

	set, err = prov.GetBit(ctx, 0, "USER_INFO", 7)
	require.Nil(t, err)
	require.False(t, set)
}

func TestRedisProviderHash(t *testing.T) {
	mr, prov := newMiniredisProvider(t)

	val, err := prov.HGet(ctx, 0, "USER_INFO", "42")
	require.Nil(t, err)
	require.Nil(t, val)

	err = prov.HSetWithTTL(ctx, 0, "USER_INFO", "42", []byte(`{"id":42}`), time.Hour, ExpireKey)
	require.Nil(t, err)

	val, err = prov.HGet(ctx, 0, "USER_INFO", "42")
	require.Nil(t, err)
	require.Equal(t, []byte(`{"id":42}`), val)
	require.Equal(t, `{"id":42}`, mr.DB(0).HGet("USER_INFO", "42"))

	ttl, err := prov.TTL(ctx, 0, "USER_INFO")
	require.Nil(t, err)
	require.Equal(t, time.Hour, ttl)

	mr.FastForward(2 * time.Hour)
	val, err = prov.HGet(ctx, 0, "USER_INFO", "42")
	require.Nil(t, err)
	require.Nil(t, val)

	require.Nil(t, prov.HSetWithTTL(ctx, 0, "USER_INFO", "43", []byte("x"), 0, ExpireKey))
	deleted, err := prov.HDel(ctx, 0, "USER_INFO", "43")
	require.Nil(t, err)
	require.Equal(t, int64(1), deleted)
}

func TestRedisProviderStrings(t *testing.T) {
	_, prov := newMiniredisProvider(t)

	res, err := prov.GetBytes(ctx, 2, "domain.test")
	require.Nil(t, err)
	require.Nil(t, res)

	require.Nil(t, prov.Set(ctx, 2, "domain.test", []byte("my message"), 0))
	res, err = prov.GetBytes(ctx, 2, "domain.test")
	require.Nil(t, err)
	require.Equal(t, []byte("my message"), res)

	exists, err := prov.Exists(ctx, 2, "domain.test")
	require.Nil(t, err)
	require.True(t, exists)

	ttl, err := prov.TTL(ctx, 2, "domain.test")
	require.Nil(t, err)
	require.Equal(t, NoExpiry, ttl)

	ok, err := prov.Expire(ctx, 2, "domain.test", time.Minute)
	require.Nil(t, err)
	require.True(t, ok)

	size, err := prov.GetDBSize(ctx, 2)
	require.Nil(t, err)
	require.Equal(t, int64(1), size)

	deleted, err := prov.Del(ctx, 2, "domain.test")
	require.Nil(t, err)
	require.Equal(t, int64(1), deleted)

	require.Nil(t, prov.Ping(ctx, 2))
}

func TestRedisProviderUnavailable(t *testing.T) {
	mr, prov := newMiniredisProvider(t)
	mr.Close()

	_, err := prov.GetBit(ctx, 0, "USER_INFO", 1)
	require.ErrorIs(t, err, ErrTransient)

	err = prov.SetBit(ctx, 0, "USER_INFO", 1)
	require.ErrorIs(t, err, ErrTransient)

	_, err = prov.HGet(ctx, 0, "USER_INFO", "1")
	require.ErrorIs(t, err, ErrTransient)
}

func TestRedisProviderDeadline(t *testing.T) {
	_, prov := newMiniredisProvider(t)
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err := prov.GetBit(cctx, 0, "USER_INFO", 1)
	require.ErrorIs(t, err, ErrTransient)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRedisProviderBadPartition(t *testing.T) {
	_, prov := newMiniredisProvider(t)
	err := prov.SetBit(ctx, 99, "USER_INFO", 1)
	require.ErrorIs(t, err, ErrInvalidPartition)
	require.NotErrorIs(t, err, ErrTransient)
}
