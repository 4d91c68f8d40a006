package backing

import (
	"context"
	"crypto/rand"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func randomRecord(t testing.TB, size int) []byte {
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

// Generic tests that anything implementing the store interface should pass.
func StoreImplementationBaseTests(t *testing.T, rs RecordStore) {
	tests := []struct {
		name  string
		id    string
		input []byte
	}{
		{"EmptyRecord", "empty-record", []byte("")},
		{"SimpleRecord", "user-12345", []byte(`{"id":"user-12345","name":"Jo"}`)},
		{"ShortId", "x", []byte("short id")},
		{"DotId", ".hidden", []byte("dot id")},
		{"LargeRecord", "large-record", randomRecord(t, 256*1024)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert := assert.New(t)

			// Check for non-existent record
			exists, err := rs.Exists(ctx, test.id)
			assert.NoError(err, "Error returned when checking existance of non-existant record")
			assert.False(exists, "Exists check did not return False for a non-existant record")

			data, err := rs.Fetch(ctx, test.id)
			assert.True(IsNotFound(err), "Did not get a NotFound error for non-existant record: %v", err)
			assert.Nil(data, "Data returned for non-existant record")

			didDelete, err := rs.Delete(ctx, test.id)
			assert.True(IsNotFound(err), "Did not get a NotFound error when deleting a non-existant record: %v", err)
			assert.False(didDelete, "Delete did not return False for non-existant record")

			err = rs.Put(ctx, test.id, test.input)
			require.NoError(t, err, "Error occured while saving record")
			defer func() {
				if _, err := rs.Delete(ctx, test.id); err != nil && !IsNotFound(err) {
					t.Errorf("Failed to cleanup test record %v", err)
				}
			}()

			exists, err = rs.Exists(ctx, test.id)
			assert.NoError(err, "Got error when checking for record")
			assert.True(exists, "Record exists check did not return true")

			data, err = rs.Fetch(ctx, test.id)
			assert.NoError(err, "Error occured fetching record")
			assert.Equal(len(test.input), len(data))
			assert.True(slices.Equal(test.input, data), "Fetched record differs from input")

			// overwrite
			err = rs.Put(ctx, test.id, []byte("replaced"))
			assert.NoError(err, "Error occured while replacing record")
			data, err = rs.Fetch(ctx, test.id)
			assert.NoError(err)
			assert.Equal([]byte("replaced"), data)

			didDelete, err = rs.Delete(ctx, test.id)
			assert.NoError(err, "Error returned deleting record")
			assert.True(didDelete, "Delete returned false on successful delete")

			exists, err = rs.Exists(ctx, test.id)
			assert.NoError(err, "Error returned checking for non-existent record")
			assert.False(exists, "Deleted record still exists")
		})
	}

	err := rs.Put(ctx, "", []byte("no id"))
	require.ErrorIs(t, err, ErrInvalidID)
}

// Generic tests for stores that can enumerate their ids.
func ListerBaseTests(t *testing.T, rs RecordStore) {
	lister, ok := rs.(Lister)
	require.True(t, ok, "%s store does not implement Lister", rs.Backend())
	want := []string{"list-a", "list-b", "list-c"}
	for _, id := range want {
		require.NoError(t, rs.Put(ctx, id, []byte(id)))
	}
	defer func() {
		for _, id := range want {
			_, _ = rs.Delete(ctx, id)
		}
	}()

	got := []string{}
	err := lister.List(ctx, func(id string) error {
		got = append(got, id)
		return nil
	})
	require.NoError(t, err)
	slices.Sort(got)
	require.Equal(t, want, got)

	// errors from the callback stop the listing
	stop := fmt.Errorf("stop")
	seen := 0
	err = lister.List(ctx, func(id string) error {
		seen++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, seen)
}

func benchmarkReadStoreWithSize(b *testing.B, rs RecordStore, size int) {
	data := randomRecord(b, size)
	id := fmt.Sprintf("bench-record-%d", size)
	err := rs.Put(ctx, id, data)
	if err != nil {
		b.Fatalf("Failed to store record for test: %s", err.Error())
	}

	b.ReportAllocs()

	for range b.N {
		_, err = rs.Fetch(ctx, id)
		if err != nil {
			b.Fatalf("Failed to read data from provider: %s", err.Error())
		}
	}
}

func BaseBenchmarkReadStore(b *testing.B, rs RecordStore) {
	sizes := []int{1, 33, 1024, 64 * 1024}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("%d", size), func(b *testing.B) {
			benchmarkReadStoreWithSize(b, rs, size)
		})
	}
}
