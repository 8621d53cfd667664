// Package kv defines the key-value port used for durable engine state.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned (wrapped) by Get when a key does not exist.
var ErrNotFound = errors.New("key not found")

// KV is the interface for a persistent key-value store.
// Keys are strings, values are JSON-serializable.
// Get on a missing key returns an error wrapping ErrNotFound.
type KV interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
}

// Lister is implemented by backends that can enumerate their keys.
type Lister interface {
	ListKeys(ctx context.Context) ([]string, error)
}

// Expirer is implemented by backends that can expire a key on their own.
// A key past its TTL reads as missing.
type Expirer interface {
	SetTTL(ctx context.Context, key string, value any, ttl time.Duration) error
}
