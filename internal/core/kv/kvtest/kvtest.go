// Package kvtest holds the behaviour every kv.KV backend must share.
package kvtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/orderbell/internal/core/kv"
)

// Run exercises store against the kv.KV contract. newStore must return an
// empty store.
func Run(t *testing.T, newStore func(t *testing.T) kv.KV) {
	t.Helper()

	type payload struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}

	t.Run("set and get", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		require.NoError(t, store.Set(ctx, "test-key", payload{Name: "hello", Value: 42}))

		var got payload
		require.NoError(t, store.Get(ctx, "test-key", &got))
		assert.Equal(t, payload{Name: "hello", Value: 42}, got)
	})

	t.Run("missing key wraps ErrNotFound", func(t *testing.T) {
		store := newStore(t)

		var v string
		err := store.Get(context.Background(), "nonexistent", &v)
		assert.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("overwrite", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		require.NoError(t, store.Set(ctx, "key", "first"))
		require.NoError(t, store.Set(ctx, "key", "second"))

		var got string
		require.NoError(t, store.Get(ctx, "key", &got))
		assert.Equal(t, "second", got)
	})

	t.Run("delete and has", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		has, err := store.Has(ctx, "key")
		require.NoError(t, err)
		assert.False(t, has)

		require.NoError(t, store.Set(ctx, "key", 1))
		has, err = store.Has(ctx, "key")
		require.NoError(t, err)
		assert.True(t, has)

		require.NoError(t, store.Delete(ctx, "key"))
		has, err = store.Has(ctx, "key")
		require.NoError(t, err)
		assert.False(t, has)

		require.NoError(t, store.Delete(ctx, "key"), "deleting a missing key is not an error")
	})

	t.Run("raw json round trip", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		in := []byte(`{"version":1,"notifications":[]}`)
		require.NoError(t, store.Set(ctx, "notifications:log", rawJSON(in)))

		var out rawJSON
		require.NoError(t, store.Get(ctx, "notifications:log", &out))
		assert.JSONEq(t, string(in), string(out))
	})

	t.Run("list keys", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		lister, ok := store.(kv.Lister)
		if !ok {
			t.Skip("backend does not list keys")
		}

		require.NoError(t, store.Set(ctx, "b", 1))
		require.NoError(t, store.Set(ctx, "a", 2))

		keys, err := lister.ListKeys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, keys)
	})
}

type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) { return r, nil }

func (r *rawJSON) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}
