package stores

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/orderbell/internal/core/config"
	"github.com/hay-kot/orderbell/internal/core/kv"
	"github.com/hay-kot/orderbell/internal/core/kv/kvtest"
	"github.com/hay-kot/orderbell/internal/data/db"
)

func newTestKVStore(t *testing.T) *KVStore {
	t.Helper()
	database, err := db.Open(t.TempDir(), db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return NewKVStore(database)
}

func TestKVStore_contract(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.KV { return newTestKVStore(t) })
}

func TestMemoryKV_contract(t *testing.T) {
	kvtest.Run(t, func(*testing.T) kv.KV { return NewMemoryKV() })
}

func TestFileKV_contract(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.KV {
		return NewFileKV(filepath.Join(t.TempDir(), "state", "kv.json"))
	})
}

func TestRedisKV_contract(t *testing.T) {
	addr := os.Getenv("ORDERBELL_TEST_REDIS_URL")
	if addr == "" {
		t.Skip("ORDERBELL_TEST_REDIS_URL not set")
	}

	client, err := NewRedisClient(context.Background(), RedisOptions{URL: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	kvtest.Run(t, func(t *testing.T) kv.KV {
		return NewRedisKV(client, fmt.Sprintf("orderbell-test:%d:", time.Now().UnixNano()))
	})
}

func TestKVStore_persists_across_reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	database, err := db.Open(dir, db.DefaultOpenOptions())
	require.NoError(t, err)
	require.NoError(t, NewKVStore(database).Set(ctx, "notifications:log", map[string]int{"version": 1}))
	require.NoError(t, database.Close())

	database, err = db.Open(dir, db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	var got map[string]int
	require.NoError(t, NewKVStore(database).Get(ctx, "notifications:log", &got))
	assert.Equal(t, 1, got["version"])
}

func TestKVStore_UpdatedAt(t *testing.T) {
	ctx := context.Background()
	store := newTestKVStore(t)
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	require.NoError(t, store.Set(ctx, "k", 1))
	at, err := store.UpdatedAt(ctx, "k")
	require.NoError(t, err)
	assert.True(t, fixed.Equal(at))

	_, err = store.UpdatedAt(ctx, "missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestFileKV_corrupt_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	ctx := context.Background()
	store := NewFileKV(path)
	var v string
	err := store.Get(ctx, "k", &v)
	require.Error(t, err)
	assert.NotErrorIs(t, err, kv.ErrNotFound)

	// the next write moves the broken document aside and starts fresh
	require.NoError(t, store.Set(ctx, "k", "fresh"))
	require.NoError(t, store.Get(ctx, "k", &v))
	assert.Equal(t, "fresh", v)

	backups, err := filepath.Glob(path + ".corrupt.*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	raw, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(raw))

	require.NoError(t, store.Set(ctx, "k2", "second"))
	backups, err = filepath.Glob(path + ".corrupt.*")
	require.NoError(t, err)
	assert.Len(t, backups, 1, "a healthy file is not moved again")
}

func TestRecoverFromCorruption(t *testing.T) {
	dir := t.TempDir()
	name := "orderbell.db"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("garbage"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+"-wal"), []byte("wal"), 0o644))

	require.NoError(t, RecoverFromCorruption(dir, name))

	_, err := os.Stat(filepath.Join(dir, name))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, name+"-wal"))
	assert.True(t, os.IsNotExist(err))

	matches, err := filepath.Glob(filepath.Join(dir, name+".corrupt.*"))
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestKVStore_SetTTL_and_sweep(t *testing.T) {
	ctx := context.Background()
	store := newTestKVStore(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.SetTTL(ctx, "heartbeat", "alive", 30*time.Second))
	require.NoError(t, store.Set(ctx, "forever", "x"))

	var v string
	require.NoError(t, store.Get(ctx, "heartbeat", &v))
	assert.Equal(t, "alive", v)

	now = now.Add(time.Minute)

	assert.ErrorIs(t, store.Get(ctx, "heartbeat", &v), kv.ErrNotFound)
	has, err := store.Has(ctx, "heartbeat")
	require.NoError(t, err)
	assert.False(t, has)

	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"forever"}, keys)

	n, err := store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	for _, backend := range []string{config.BackendMemory, config.BackendFile, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.DataDir = t.TempDir()
			cfg.Storage.Backend = backend

			b, err := Open(ctx, &cfg)
			require.NoError(t, err)
			t.Cleanup(func() { _ = b.Close() })

			assert.Equal(t, backend, b.Name)
			require.NoError(t, b.Set(ctx, "k", 1))
			var got int
			require.NoError(t, b.Get(ctx, "k", &got))
			assert.Equal(t, 1, got)

			_, sweeps := b.Sweeper()
			assert.Equal(t, backend == config.BackendSQLite, sweeps)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.DataDir = t.TempDir()
		cfg.Storage.Backend = "floppy"
		_, err := Open(ctx, &cfg)
		assert.Error(t, err)
	})

	t.Run("corrupt sqlite is recreated", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.DataDir = t.TempDir()
		path := filepath.Join(cfg.DataDir, cfg.Storage.SQLite.FileName)
		require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database at all, just text padding it out"), 0o644))

		b, err := Open(ctx, &cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close() })

		require.NoError(t, b.Set(ctx, "k", "v"))
	})
}
