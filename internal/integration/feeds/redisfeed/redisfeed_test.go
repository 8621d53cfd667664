package redisfeed

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/orderbell/internal/core/feed"
	"github.com/hay-kot/orderbell/internal/core/feed/feedtest"
)

func TestNew_rejects_bad_url(t *testing.T) {
	_, err := New(Options{URL: "http://localhost"})
	assert.Error(t, err)
}

func TestSubscribe_unreachable_server_fails(t *testing.T) {
	src, err := New(Options{
		URL:  "redis://127.0.0.1:1/0",
		Pump: []feed.PumpOption{feed.WithBackoff(time.Millisecond, time.Millisecond), feed.WithMaxAttempts(1)},
	})
	require.NoError(t, err)

	h, err := src.Subscribe(context.Background(), feed.DefaultFilter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	var failed bool
	for s := range h.Signals() {
		if s.Kind == feed.SignalFailed {
			failed = true
		}
		assert.NotEqual(t, feed.SignalSubscribed, s.Kind)
	}
	assert.True(t, failed)
}

func TestPublish_roundtrip(t *testing.T) {
	url := os.Getenv("ORDERBELL_TEST_REDIS_URL")
	if url == "" {
		t.Skip("ORDERBELL_TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel := "orderbell-test:" + time.Now().Format("150405.000")
	src, err := New(Options{URL: url, Channel: channel})
	require.NoError(t, err)
	h, err := src.Subscribe(ctx, feed.DefaultFilter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	for s := range h.Signals() {
		if s.Kind == feed.SignalSubscribed {
			break
		}
	}

	ro, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(ro)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, Publish(ctx, client, channel, feedtest.Update("o-1", "A100", "NEW", "SHIPPED")))

	select {
	case c := <-h.Changes():
		assert.Equal(t, feed.KindUpdate, c.Kind)
		require.NotNil(t, c.Old)
		assert.Equal(t, "NEW", c.Old.Status.String())
	case <-ctx.Done():
		t.Fatal("no change received")
	}
}
