package backing

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSQLStore(t *testing.T) *StoreSQL {
	dsn := "file:" + filepath.Join(t.TempDir(), "records.db")
	s, err := NewSQLStore("sqlite3", dsn, SQLTable{Table: "records", IDColumn: "id", PayloadColumn: "payload"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateTable(ctx))
	return s
}

func TestSQLStore(t *testing.T) {
	StoreImplementationBaseTests(t, newTestSQLStore(t))
	ListerBaseTests(t, newTestSQLStore(t))
}

func TestSQLStoreExistingTable(t *testing.T) {
	s := newTestSQLStore(t)
	_, err := s.db.ExecContext(ctx, "INSERT INTO records (id, payload) VALUES ('seeded', X'7b7d')")
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, "INSERT INTO records (id, payload) VALUES ('null-payload', NULL)")
	require.NoError(t, err)

	data, err := s.Fetch(ctx, "seeded")
	require.NoError(t, err)
	require.Equal(t, []byte("{}"), data)

	data, err = s.Fetch(ctx, "null-payload")
	require.NoError(t, err)
	require.Equal(t, []byte{}, data)

	// creating again is harmless
	require.NoError(t, s.CreateTable(ctx))
}

func TestSQLStoreBadConfig(t *testing.T) {
	_, err := NewSQLStore("oracle", "", SQLTable{Table: "t", IDColumn: "i", PayloadColumn: "p"})
	require.Error(t, err)
	_, err = NewSQLStore("sqlite3", "file::memory:", SQLTable{Table: "t"})
	require.Error(t, err)
}
