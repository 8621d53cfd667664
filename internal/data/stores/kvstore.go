// Package stores holds the kv.KV backends: SQLite, Redis, a JSON file, and
// process memory.
package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hay-kot/orderbell/internal/core/kv"
	"github.com/hay-kot/orderbell/internal/data/db"
)

const busyRetries = 3

// KVStore implements kv.KV using SQLite.
type KVStore struct {
	db  *db.DB
	now func() time.Time
}

var (
	_ kv.KV      = (*KVStore)(nil)
	_ kv.Lister  = (*KVStore)(nil)
	_ kv.Expirer = (*KVStore)(nil)
)

// NewKVStore creates a new SQLite-backed KV store.
func NewKVStore(db *db.DB) *KVStore {
	return &KVStore{db: db, now: time.Now}
}

// Get retrieves and deserializes a value by key. A missing key returns an
// error wrapping kv.ErrNotFound.
func (s *KVStore) Get(ctx context.Context, key string, dest any) error {
	row, err := s.db.Queries().KVGet(ctx, key)
	if IsNotFoundError(err) || (err == nil && s.expired(row)) {
		return fmt.Errorf("kv get %q: %w", key, kv.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("kv get %q: %w", key, err)
	}

	if err := json.Unmarshal(row.Value, dest); err != nil {
		return fmt.Errorf("kv get %q unmarshal: %w", key, err)
	}
	return nil
}

// Set stores a value, retrying briefly while the database is busy.
func (s *KVStore) Set(ctx context.Context, key string, value any) error {
	return s.set(ctx, key, value, 0)
}

// SetTTL stores a value that reads as missing once ttl has passed. Expired
// rows are removed by SweepExpired.
func (s *KVStore) SetTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	return s.set(ctx, key, value, ttl)
}

func (s *KVStore) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv set %q marshal: %w", key, err)
	}

	now := s.now()
	params := db.KVSetParams{Key: key, Value: data, CreatedAt: now.UnixNano(), UpdatedAt: now.UnixNano()}
	if ttl > 0 {
		params.ExpiresAt = sql.NullInt64{Int64: now.Add(ttl).UnixNano(), Valid: true}
	}

	wait := 20 * time.Millisecond
	for attempt := 0; ; attempt++ {
		err = s.db.Queries().KVSet(ctx, params)
		if err == nil || !IsBusyError(err) || attempt == busyRetries {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("kv set %q: %w", key, ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

// Delete removes a key.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.db.Queries().KVDelete(ctx, key); err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

// Has returns whether a key exists.
func (s *KVStore) Has(ctx context.Context, key string) (bool, error) {
	row, err := s.db.Queries().KVGet(ctx, key)
	if IsNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("kv has %q: %w", key, err)
	}
	return !s.expired(row), nil
}

// ListKeys returns all keys in sorted order.
func (s *KVStore) ListKeys(ctx context.Context) ([]string, error) {
	keys, err := s.db.Queries().KVListKeys(ctx, s.now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("kv list keys: %w", err)
	}
	return keys, nil
}

// UpdatedAt returns when key was last written.
func (s *KVStore) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	row, err := s.db.Queries().KVGet(ctx, key)
	if IsNotFoundError(err) {
		return time.Time{}, fmt.Errorf("kv updated at %q: %w", key, kv.ErrNotFound)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("kv updated at %q: %w", key, err)
	}
	return time.Unix(0, row.UpdatedAt), nil
}

// SweepExpired deletes rows whose TTL has passed and returns how many.
func (s *KVStore) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.db.Queries().KVSweepExpired(ctx, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("kv sweep: %w", err)
	}
	return n, nil
}

func (s *KVStore) expired(row db.KvStore) bool {
	return row.ExpiresAt.Valid && row.ExpiresAt.Int64 < s.now().UnixNano()
}
