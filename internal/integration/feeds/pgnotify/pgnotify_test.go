package pgnotify

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/orderbell/internal/core/feed"
	"github.com/hay-kot/orderbell/internal/core/feed/feedtest"
)

func TestTriggerSQL(t *testing.T) {
	sql := TriggerSQL("order's", feed.Filter{Table: "orders"})

	assert.Contains(t, sql, `CREATE OR REPLACE FUNCTION "public"."orderbell_notify_orders"()`)
	assert.Contains(t, sql, `pg_notify('order''s'`)
	assert.Contains(t, sql, `AFTER INSERT OR UPDATE ON "public"."orders"`)
	assert.Contains(t, sql, `'old_record', CASE WHEN TG_OP = 'UPDATE'`)
}

func TestSubscribe_requires_dsn(t *testing.T) {
	_, err := New(Options{}).Subscribe(context.Background(), feed.DefaultFilter)
	assert.Error(t, err)
}

func TestSubscribe_reports_connect_failure(t *testing.T) {
	src := New(Options{
		DSN:  "postgres://nobody@127.0.0.1:1/none?connect_timeout=1",
		Pump: []feed.PumpOption{feed.WithBackoff(time.Millisecond, time.Millisecond), feed.WithMaxAttempts(1)},
	})
	h, err := src.Subscribe(context.Background(), feed.DefaultFilter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	var kinds []feed.SignalKind
	for s := range h.Signals() {
		kinds = append(kinds, s.Kind)
	}
	assert.Contains(t, kinds, feed.SignalFailed)
	assert.Equal(t, feed.SignalClosed, kinds[len(kinds)-1])
}

func TestListen_roundtrip(t *testing.T) {
	dsn := os.Getenv("ORDERBELL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ORDERBELL_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	channel := "orderbell_test_" + time.Now().Format("150405")
	h, err := New(Options{DSN: dsn, Channel: channel}).Subscribe(ctx, feed.DefaultFilter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	for s := range h.Signals() {
		if s.Kind == feed.SignalSubscribed {
			break
		}
	}

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })

	require.NoError(t, Notify(ctx, conn, channel, feedtest.Insert("o-1", "A100", "NEW")))

	select {
	case c := <-h.Changes():
		assert.Equal(t, feed.KindInsert, c.Kind)
		assert.Equal(t, "A100", c.New.OrderCode.String())
	case <-ctx.Done():
		t.Fatal("no change received")
	}
}
