package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, KeyClientID)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, KeyClientID, "client-1"))
	require.NoError(t, s.Set(ctx, KeySessionID, "session-1"))

	v, ok, err := s.Get(ctx, KeyClientID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "client-1", v)

	require.NoError(t, s.Set(ctx, KeySessionID, "session-2"))
	v, ok, err = s.Get(ctx, KeySessionID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "session-2", v)

	require.NoError(t, s.Delete(ctx, KeySessionID))
	require.NoError(t, s.Delete(ctx, KeySessionID))
	_, ok, err = s.Get(ctx, KeySessionID)
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, s.Set(ctx, " ", "x"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "identity.yaml")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	exerciseStore(t, s)

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(context.Background(), KeyClientID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "client-1", v)

	_, ok, err = reopened.Get(context.Background(), KeySessionID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStore_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a map\n"), 0o600))
	_, err := NewFileStore(path)
	require.Error(t, err)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)

	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	v, ok, err := reopened.Get(context.Background(), KeyClientID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "client-1", v)
}

func TestOpen(t *testing.T) {
	s, err := Open(Settings{Backend: "memory"})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)

	s, err = Open(Settings{Path: filepath.Join(t.TempDir(), "identity.yaml")})
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, s)

	_, err = Open(Settings{Backend: "sqlite"})
	require.Error(t, err)

	s, err = Open(Settings{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "nested", "identity.db")})
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(Settings{Backend: "redis"})
	require.Error(t, err)

	_, err = Open(Settings{Backend: "redis", RedisAddr: "127.0.0.1:1"})
	require.ErrorContains(t, err, "redis identity store: ping")

	_, err = Open(Settings{Backend: "etcd"})
	require.Error(t, err)
}

// Set SUPPORT_WIDGET_TEST_REDIS_ADDR to run the store checks against a live
// Redis server.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("SUPPORT_WIDGET_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SUPPORT_WIDGET_TEST_REDIS_ADDR not set")
	}
	s, err := NewRedisStore(addr, "support-widget-test:")
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()
	for _, k := range []string{KeyClientID, KeySessionID} {
		require.NoError(t, s.Delete(context.Background(), k))
	}
	exerciseStore(t, s)
}
