package backing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	StoreImplementationBaseTests(t, NewMemoryStore())
	ListerBaseTests(t, NewMemoryStore())
}

func TestMemoryStoreCopies(t *testing.T) {
	s := NewMemoryStore()
	in := []byte("abc")
	require.NoError(t, s.Put(ctx, "id", in))
	in[0] = 'z'
	out, err := s.Fetch(ctx, "id")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), out)
	out[0] = 'y'
	again, err := s.Fetch(ctx, "id")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), again)
}

func BenchmarkMemoryStoreRead(b *testing.B) {
	BaseBenchmarkReadStore(b, NewMemoryStore())
}
