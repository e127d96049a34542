package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *KVStore {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state", "paperflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewKVStore(db)
}

func TestOpenMigratesToCurrentVersion(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "paperflow.db"))
	require.NoError(t, err)
	defer db.Close()

	version, err := userVersion(db)
	require.NoError(t, err)
	require.Equal(t, CurrentSchemaVersion, version)

	var name string
	require.NoError(t, db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='exemplars'").Scan(&name))
}

func TestKVStorePutKeepsFirstValue(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	stored, err := store.Put(ctx, "identity", "msg-1", []byte("first"))
	require.NoError(t, err)
	require.True(t, stored)

	stored, err = store.Put(ctx, "identity", "msg-1", []byte("second"))
	require.NoError(t, err)
	require.False(t, stored)

	value, found, err := store.Get(ctx, "identity", "msg-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "first", string(value))

	_, found, err = store.Get(ctx, "content", "msg-1")
	require.NoError(t, err)
	require.False(t, found, "buckets must be isolated")
	require.NoError(t, store.Flush(ctx))
}

func TestKVStoreScanAndDelete(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_, err := store.Put(ctx, "identity", k, []byte(k))
		require.NoError(t, err)
	}
	require.NoError(t, store.Delete(ctx, "identity", "a", "c"))

	var keys []string
	require.NoError(t, store.Scan(ctx, "identity", func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	}))
	require.Equal(t, []string{"b"}, keys)
}

func TestKVStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paperflow.db")
	db, err := Open(path)
	require.NoError(t, err)
	_, err = NewKVStore(db).Put(context.Background(), "content", "digest", []byte("/org/a.pdf"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	value, found, err := NewKVStore(reopened).Get(context.Background(), "content", "digest")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "/org/a.pdf", string(value))
}
