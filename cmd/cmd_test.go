package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/backing"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/bloom"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/bulkload"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/kvprovider"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/prom"
	st "github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/settings"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var ctx = context.Background()

func lines(out *bytes.Buffer) []string {
	return strings.Split(strings.TrimSpace(out.String()), "\n")
}

func loadIDs(t *testing.T, kv kvprovider.KVInterface, ids ...string) {
	var out bytes.Buffer
	stats, err := runLoad(ctx, &out, kv, st.PrimaryFilterName, bulkload.NewLineSource(strings.NewReader(strings.Join(ids, "\n"))))
	require.Nil(t, err)
	require.Equal(t, uint64(len(ids)), stats.Added)
	require.Equal(t, int64(len(ids)), gjson.Get(out.String(), "added").Int())
}

func TestRunCheck(t *testing.T) {
	kv := kvprovider.NewMemoryProvider()
	loadIDs(t, kv, "user-1", "user-2")

	var out bytes.Buffer
	err := runCheck(ctx, &out, kv, st.PrimaryFilterName, []string{"user-1", "user-2", "never-added"})
	require.Nil(t, err)
	res := lines(&out)
	require.Len(t, res, 3)
	require.Equal(t, "maybe", gjson.Get(res[0], "result").String())
	require.Equal(t, "maybe", gjson.Get(res[1], "result").String())
	require.Equal(t, "absent", gjson.Get(res[2], "result").String())
	require.Equal(t, "never-added", gjson.Get(res[2], "id").String())
}

func TestRunCheckReadOnly(t *testing.T) {
	kv := kvprovider.NewMemoryProvider()
	var out bytes.Buffer
	err := runCheck(ctx, &out, kv, st.PrimaryFilterName, []string{"user-1"})
	require.Nil(t, err)
	require.Equal(t, "absent", gjson.Get(out.String(), "result").String())
	require.Equal(t, 0, kv.CallCount("set"))
	require.Equal(t, 0, kv.CallCount("setbit"))
	exists, err := kv.Exists(ctx, kvprovider.Partition(st.Filter.Partition), st.Filter.Key+":spec")
	require.Nil(t, err)
	require.False(t, exists)

	require.Nil(t, kv.Set(ctx, kvprovider.Partition(st.Filter.Partition), st.Filter.Key+":spec", []byte("1:1:0000000000000000"), 0))
	out.Reset()
	err = runCheck(ctx, &out, kv, st.PrimaryFilterName, []string{"user-1"})
	require.ErrorIs(t, err, bloom.ErrSpecMismatch)
	require.Empty(t, out.String())
}

func TestRunCheckStoreDown(t *testing.T) {
	kv := kvprovider.NewMemoryProvider()
	loadIDs(t, kv, "user-1")
	kv.SetFailure(context.DeadlineExceeded)
	var out bytes.Buffer
	err := runCheck(ctx, &out, kv, st.PrimaryFilterName, []string{"user-1"})
	// stamp check fails before any id is tested
	require.ErrorIs(t, err, kvprovider.ErrTransient)
}

func TestRunInfo(t *testing.T) {
	kv := kvprovider.NewMemoryProvider()
	loadIDs(t, kv, "a", "b", "c")

	var out bytes.Buffer
	err := runInfo(ctx, &out, kv, []string{st.PrimaryFilterName})
	require.Nil(t, err)
	line := out.String()
	require.Equal(t, "primary", gjson.Get(line, "name").String())
	require.Equal(t, int64(21566382), gjson.Get(line, "bit_size").Int())
	require.Equal(t, int64(10), gjson.Get(line, "hash_count").Int())
	require.Equal(t, "ok", gjson.Get(line, "stamp").String())
	require.Equal(t, int64(3), gjson.Get(line, "approximate_count").Int())
	require.Greater(t, gjson.Get(line, "estimated_false_positive_rate").Float(), 0.0)
}

func TestRunInfoUnstampedAndMismatch(t *testing.T) {
	kv := kvprovider.NewMemoryProvider()
	var out bytes.Buffer
	require.Nil(t, runInfo(ctx, &out, kv, nil))
	require.Equal(t, "none", gjson.Get(out.String(), "stamp").String())

	require.Nil(t, kv.Set(ctx, kvprovider.Partition(st.Filter.Partition), st.Filter.Key+":spec", []byte("1:1:0000000000000000"), 0))
	out.Reset()
	require.Nil(t, runInfo(ctx, &out, kv, nil))
	require.Equal(t, "mismatch", gjson.Get(out.String(), "stamp").String())

	_, err := openFilter(ctx, kv, st.PrimaryFilterName)
	require.ErrorIs(t, err, bloom.ErrSpecMismatch)
}

func TestRunInfoUnknownFilter(t *testing.T) {
	var out bytes.Buffer
	err := runInfo(ctx, &out, kvprovider.NewMemoryProvider(), []string{"nope"})
	require.Error(t, err)
}

func TestOpenFilterFromDefinitions(t *testing.T) {
	defer func() { st.Settings.Filters = "" }()
	st.Settings.Filters = `
- name: orders
  key: ORDER_IDS
  partition: 3
  expected_insertions: 1000
  false_positive_probability: 0.01
- name: broken
  funnel: rot13
`
	kv := kvprovider.NewMemoryProvider()
	filter, err := openFilter(ctx, kv, "orders")
	require.Nil(t, err)
	require.Equal(t, "ORDER_IDS", filter.Key())
	require.Equal(t, kvprovider.Partition(3), filter.Partition())
	require.Equal(t, uint64(9586), filter.Spec().BitSize)

	exists, err := kv.Exists(ctx, 3, "ORDER_IDS:spec")
	require.Nil(t, err)
	require.True(t, exists)

	_, err = openFilter(ctx, kv, "broken")
	require.ErrorIs(t, err, bloom.ErrInvalidParameter)
}

func TestRunLookup(t *testing.T) {
	kv := kvprovider.NewMemoryProvider()
	records := backing.NewMemoryStore()
	require.Nil(t, records.Put(ctx, "user-1", []byte(`{"name":"alice"}`)))
	require.Nil(t, records.Put(ctx, "user-2", []byte("plain text")))
	loadIDs(t, kv, "user-1", "user-2", "user-3")

	cache, err := openCache(ctx, kv, st.PrimaryFilterName, records, nil)
	require.Nil(t, err)

	var out bytes.Buffer
	require.Nil(t, runLookup(ctx, &out, cache, []string{"user-1", "user-2", "user-3", "user-4"}))
	res := lines(&out)
	require.Len(t, res, 4)
	require.Equal(t, "found", gjson.Get(res[0], "outcome").String())
	require.Equal(t, "backing", gjson.Get(res[0], "source").String())
	require.Equal(t, "alice", gjson.Get(res[0], "value.name").String())
	require.Equal(t, "plain text", gjson.Get(res[1], "value").String())
	require.Equal(t, "possible_presence_miss", gjson.Get(res[2], "outcome").String())
	require.False(t, gjson.Get(res[2], "value").Exists())
	require.Equal(t, "definite_absence", gjson.Get(res[3], "outcome").String())

	out.Reset()
	require.Nil(t, runLookup(ctx, &out, cache, []string{"user-1"}))
	require.Equal(t, "cache", gjson.Get(out.String(), "source").String())
}

func TestReportFill(t *testing.T) {
	kv := kvprovider.NewMemoryProvider()
	loadIDs(t, kv, "a", "b", "c", "d")
	filter, err := openFilter(ctx, kv, st.PrimaryFilterName)
	require.Nil(t, err)
	require.Nil(t, reportFill(ctx, "primary", filter))
	require.Equal(t, 4.0, testutil.ToFloat64(prom.FilterApproximateItems.WithLabelValues("primary")))
}
