package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextSignal(t *testing.T, p *Pump) Signal {
	t.Helper()
	select {
	case s, ok := <-p.Signals():
		require.True(t, ok, "signals channel closed")
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
		return Signal{}
	}
}

func TestPump_retries_until_ready_then_emits(t *testing.T) {
	var calls atomic.Int32
	session := func(ctx context.Context, sink *Sink) error {
		if calls.Add(1) <= 2 {
			return errors.New("connection refused")
		}
		sink.Ready()
		sink.Emit(Change{Kind: KindInsert, Table: "orders", New: Row{ID: "1"}})
		sink.Emit(Change{Kind: KindInsert, Table: "products", New: Row{ID: "2"}})
		<-ctx.Done()
		return ctx.Err()
	}

	p := StartPump(context.Background(), DefaultFilter, session, WithBackoff(time.Millisecond, 2*time.Millisecond))
	t.Cleanup(func() { _ = p.Close() })

	want := []struct {
		kind    SignalKind
		attempt int
	}{
		{SignalConnecting, 0},
		{SignalFailed, 1},
		{SignalConnecting, 1},
		{SignalFailed, 2},
		{SignalConnecting, 2},
		{SignalSubscribed, 2},
	}
	for _, w := range want {
		s := nextSignal(t, p)
		assert.Equal(t, w.kind, s.Kind)
		assert.Equal(t, w.attempt, s.Attempt)
		assert.False(t, s.At.IsZero())
	}

	select {
	case c := <-p.Changes():
		assert.Equal(t, Text("1"), c.New.ID)
		assert.False(t, c.ReceivedAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}

	require.NoError(t, p.Close())
	// filtered change never arrives; channel drains to closed
	for c := range p.Changes() {
		t.Fatalf("unexpected change %+v", c)
	}
}

func TestPump_disconnect_after_ready_reports_attempt(t *testing.T) {
	var calls atomic.Int32
	session := func(ctx context.Context, sink *Sink) error {
		sink.Ready()
		if calls.Add(1) == 1 {
			return errors.New("socket closed")
		}
		<-ctx.Done()
		return nil
	}

	p := StartPump(context.Background(), DefaultFilter, session, WithBackoff(time.Millisecond, time.Millisecond))
	t.Cleanup(func() { _ = p.Close() })

	assert.Equal(t, SignalConnecting, nextSignal(t, p).Kind)
	assert.Equal(t, SignalSubscribed, nextSignal(t, p).Kind)

	s := nextSignal(t, p)
	assert.Equal(t, SignalDisconnected, s.Kind)
	assert.Equal(t, 1, s.Attempt)
	assert.ErrorContains(t, s.Err, "socket closed")

	s = nextSignal(t, p)
	assert.Equal(t, SignalConnecting, s.Kind)
	assert.Equal(t, 1, s.Attempt)
	assert.Equal(t, SignalSubscribed, nextSignal(t, p).Kind)
}

func TestPump_Close_cancels_pending_reconnect(t *testing.T) {
	session := func(context.Context, *Sink) error { return errors.New("down") }

	p := StartPump(context.Background(), DefaultFilter, session, WithBackoff(time.Hour, time.Hour))

	assert.Equal(t, SignalConnecting, nextSignal(t, p).Kind)
	assert.Equal(t, SignalFailed, nextSignal(t, p).Kind)

	closed := make(chan struct{})
	go func() {
		_ = p.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on backoff wait")
	}

	s, ok := <-p.Signals()
	require.True(t, ok)
	assert.Equal(t, SignalClosed, s.Kind)
	_, ok = <-p.Signals()
	assert.False(t, ok)

	assert.NoError(t, p.Close(), "Close is idempotent")
}

func TestPump_max_attempts(t *testing.T) {
	session := func(context.Context, *Sink) error { return errors.New("down") }

	p := StartPump(context.Background(), DefaultFilter, session,
		WithBackoff(time.Millisecond, time.Millisecond), WithMaxAttempts(2))
	t.Cleanup(func() { _ = p.Close() })

	var failed int
	for s := range p.Signals() {
		if s.Kind == SignalFailed {
			failed++
		}
	}
	assert.Equal(t, 3, failed, "initial attempt plus two retries")
}

func TestPump_parent_context_cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	session := func(ctx context.Context, sink *Sink) error {
		sink.Ready()
		<-ctx.Done()
		return ctx.Err()
	}

	p := StartPump(ctx, DefaultFilter, session)
	assert.Equal(t, SignalConnecting, nextSignal(t, p).Kind)
	assert.Equal(t, SignalSubscribed, nextSignal(t, p).Kind)

	cancel()
	require.NoError(t, p.Close())
}
