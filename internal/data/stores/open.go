package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hay-kot/orderbell/internal/core/config"
	"github.com/hay-kot/orderbell/internal/core/kv"
	"github.com/hay-kot/orderbell/internal/data/db"
)

// Backend is an opened kv.KV together with the resources behind it.
type Backend struct {
	kv.KV
	Name  string
	close func() error
}

// Close releases the backend's connections. It is safe on a nil Backend.
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// Sweeper returns the backend as a Sweeper when it keeps expired rows
// around until swept.
func (b *Backend) Sweeper() (Sweeper, bool) {
	s, ok := b.KV.(Sweeper)
	return s, ok
}

// Open builds the storage backend selected by cfg.Storage. A corrupted
// SQLite file is moved aside and the database recreated once.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	sc := cfg.Storage

	switch sc.Backend {
	case config.BackendMemory:
		return &Backend{KV: NewMemoryKV(), Name: sc.Backend}, nil

	case config.BackendFile:
		return &Backend{KV: NewFileKV(cfg.FileStorePath()), Name: sc.Backend}, nil

	case config.BackendRedis:
		client, err := NewRedisClient(ctx, RedisOptions{
			URL:      sc.Redis.URL,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		store := NewRedisKV(client, sc.Redis.Prefix)
		return &Backend{KV: store, Name: sc.Backend, close: store.Close}, nil

	case config.BackendSQLite, "":
		opts := db.OpenOptions{
			FileName:     sc.SQLite.FileName,
			MaxOpenConns: sc.SQLite.MaxOpenConns,
			MaxIdleConns: sc.SQLite.MaxIdleConns,
			BusyTimeout:  time.Duration(sc.SQLite.BusyTimeout) * time.Millisecond,
		}

		database, err := db.Open(cfg.DataDir, opts)
		if err != nil && IsCorruptionError(err) {
			log.Warn().Err(err).Str("file", opts.FileName).Msg("database corrupted, starting fresh")
			if rerr := RecoverFromCorruption(cfg.DataDir, opts.FileName); rerr != nil {
				return nil, fmt.Errorf("recover database: %w", rerr)
			}
			database, err = db.Open(cfg.DataDir, opts)
		}
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return &Backend{KV: NewKVStore(database), Name: config.BackendSQLite, close: database.Close}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
}
