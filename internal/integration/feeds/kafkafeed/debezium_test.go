package kafkafeed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/orderbell/internal/core/feed"
)

func TestDecode(t *testing.T) {
	t.Run("create with envelope", func(t *testing.T) {
		c, err := Decode([]byte(`{"schema":{},"payload":{"op":"c","before":null,
			"after":{"id":"o-1","order_code":"A100","status":"NEW","store_id":7,"total_amount":"1200.50"},
			"source":{"schema":"public","table":"orders"},"ts_ms":1772355600000}}`))
		require.NoError(t, err)

		assert.Equal(t, feed.KindInsert, c.Kind)
		assert.Equal(t, "orders", c.Table)
		assert.Equal(t, "public", c.Schema)
		assert.Equal(t, "o-1", c.New.ID.String())
		assert.Equal(t, "7", c.New.StoreID.String())
		require.NotNil(t, c.New.Amount())
		assert.InDelta(t, 1200.5, *c.New.Amount(), 0.001)
		assert.Nil(t, c.Old)
		assert.Equal(t, time.UnixMilli(1772355600000).UTC(), c.ReceivedAt)
	})

	t.Run("update without envelope", func(t *testing.T) {
		c, err := Decode([]byte(`{"op":"u","before":{"id":"o-1","status":"NEW"},
			"after":{"id":"o-1","order_code":"A100","status":"SHIPPED"},"source":{"table":"orders"}}`))
		require.NoError(t, err)

		assert.Equal(t, feed.KindUpdate, c.Kind)
		require.NotNil(t, c.Old)
		assert.Equal(t, "NEW", c.Old.Status.String())
		assert.Equal(t, "SHIPPED", c.New.Status.String())
		assert.True(t, c.ReceivedAt.IsZero())
	})

	skips := map[string]string{
		"tombstone": ``,
		"null":      `null`,
		"snapshot":  `{"op":"r","after":{"id":"o-1"}}`,
		"delete":    `{"op":"d","before":{"id":"o-1"}}`,
	}
	for name, in := range skips {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(in))
			assert.ErrorIs(t, err, ErrSkip)
		})
	}

	errs := map[string]string{
		"bad json":      `{`,
		"unknown op":    `{"op":"x","after":{}}`,
		"missing after": `{"op":"c"}`,
	}
	for name, in := range errs {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(in))
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrSkip)
		})
	}
}
