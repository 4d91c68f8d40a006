//go:build integration

package kvprovider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRedisProvider(t *testing.T) {
	prov, err := NewRedisProvider()
	require.Nil(t, err)
	defer prov.Close()

	// clear previous run
	_, err = prov.Del(ctx, 3, "domain.bits", "domain.hash", "domain.test")
	require.Nil(t, err)

	// should be same tests as memory provider as they should function identically
	res, err := prov.GetBytes(ctx, 3, "domain.test")
	require.Nil(t, err)
	require.Nil(t, res)

	err = prov.Set(ctx, 3, "domain.test", []byte("my message"), 0)
	require.Nil(t, err)

	res, err = prov.GetBytes(ctx, 3, "domain.test")
	require.Nil(t, err)
	require.Equal(t, []byte("my message"), res)

	require.Nil(t, prov.SetBit(ctx, 3, "domain.bits", 1<<31))
	set, err := prov.GetBit(ctx, 3, "domain.bits", 1<<31)
	require.Nil(t, err)
	require.True(t, set)

	err = prov.HSetWithTTL(ctx, 3, "domain.hash", "a", []byte("b"), time.Minute, ExpireField)
	require.Nil(t, err)
	val, err := prov.HGet(ctx, 3, "domain.hash", "a")
	require.Nil(t, err)
	require.Equal(t, []byte("b"), val)

	_, err = prov.Del(ctx, 3, "domain.bits", "domain.hash", "domain.test")
	require.Nil(t, err)
}
