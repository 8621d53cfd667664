package subscriber

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/orderbell/internal/core/feed"
	"github.com/hay-kot/orderbell/internal/core/feed/feedtest"
	"github.com/hay-kot/orderbell/internal/core/notify"
)

var at = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func TestNormalize_insert(t *testing.T) {
	s := New(feedtest.New())

	n, ok := s.Normalize(feedtest.Insert("42", "ORD-42", "NEW"), at)
	require.True(t, ok)

	assert.Equal(t, notify.TypeOrderCreated, n.Type)
	assert.Equal(t, "새 주문 접수", n.Title)
	assert.Equal(t, "42", n.OrderID)
	assert.Equal(t, "ORD-42", n.OrderCode)
	assert.Equal(t, "NEW", n.Status)
	assert.Empty(t, n.PreviousStatus)
	assert.Contains(t, n.Message, "ORD-42")
	assert.Contains(t, n.Message, "입금대기")
	assert.Equal(t, at, n.CreatedAt)
	assert.False(t, n.Read)
	assert.NotEmpty(t, n.ID)
}

func TestNormalize_status_change(t *testing.T) {
	s := New(feedtest.New())

	n, ok := s.Normalize(feedtest.Update("1", "ORD-1", "NEW", "PROCESSING"), at)
	require.True(t, ok)

	assert.Equal(t, notify.TypeOrderStatusChanged, n.Type)
	assert.Equal(t, "주문 상태 변경", n.Title)
	assert.Equal(t, "PROCESSING", n.Status)
	assert.Equal(t, "NEW", n.PreviousStatus)
	assert.Contains(t, n.Message, "ORD-1")
	assert.Contains(t, n.Message, "주문확인")
	assert.NotContains(t, n.Message, "입금대기")
}

func TestNormalize_same_status_is_skipped_not_dropped(t *testing.T) {
	var drops []string
	s := New(feedtest.New(), WithDropHook(func(r string) { drops = append(drops, r) }))

	_, ok := s.Normalize(feedtest.Update("1", "ORD-1", "SHIPPED", "SHIPPED"), at)
	assert.False(t, ok)
	assert.Empty(t, drops)
}

func TestNormalize_code_falls_back_to_id(t *testing.T) {
	s := New(feedtest.New())
	n, ok := s.Normalize(feedtest.Insert("77", "", "NEW"), at)
	require.True(t, ok)
	assert.Equal(t, "77", n.OrderCode)
	assert.Contains(t, n.Message, "77")
}

func TestNormalize_unknown_status_uses_raw_code(t *testing.T) {
	s := New(feedtest.New())
	n, ok := s.Normalize(feedtest.Update("1", "ORD-1", "NEW", "ON_HOLD"), at)
	require.True(t, ok)
	assert.Contains(t, n.Message, "ON_HOLD")
}

func TestNormalize_carries_optional_fields(t *testing.T) {
	s := New(feedtest.New())
	amount := feed.Amount(45000)
	c := feedtest.Insert("1", "ORD-1", "NEW")
	c.New.StoreID = "store-3"
	c.New.TotalAmount = &amount

	n, ok := s.Normalize(c, at)
	require.True(t, ok)
	assert.Equal(t, "store-3", n.StoreID)
	require.NotNil(t, n.TotalAmount)
	assert.InDelta(t, 45000.0, *n.TotalAmount, 0.001)
}

func TestNormalize_drops(t *testing.T) {
	missingOld := feedtest.Update("1", "ORD-1", "NEW", "PROCESSING")
	missingOld.Old = nil

	deleted := feedtest.Insert("1", "ORD-1", "NEW")
	deleted.Kind = feed.KindDelete

	otherTable := feedtest.Insert("1", "ORD-1", "NEW")
	otherTable.Table = "products"

	tests := []struct {
		name   string
		change feed.Change
		reason string
	}{
		{name: "delete", change: deleted, reason: DropKind},
		{name: "unknown kind", change: feed.Change{Kind: "TRUNCATE", Table: "orders", New: feed.Row{ID: "1"}}, reason: DropKind},
		{name: "empty id", change: feedtest.Insert("", "ORD-1", "NEW"), reason: DropMissingID},
		{name: "update without old row", change: missingOld, reason: DropMissingOld},
		{name: "other table", change: otherTable, reason: DropTable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var drops []string
			s := New(feedtest.New(), WithDropHook(func(r string) { drops = append(drops, r) }))

			_, ok := s.Normalize(tt.change, at)
			assert.False(t, ok)
			assert.Equal(t, []string{tt.reason}, drops)
		})
	}
}

func TestNormalize_ids_are_unique(t *testing.T) {
	s := New(feedtest.New())
	seen := map[string]bool{}
	for range 1000 {
		n, ok := s.Normalize(feedtest.Insert("1", "ORD-1", "NEW"), at)
		require.True(t, ok)
		require.False(t, seen[n.ID], "duplicate id %s", n.ID)
		seen[n.ID] = true
	}
}

func TestStart_and_Close(t *testing.T) {
	src := feedtest.New()
	s := New(src)
	assert.Equal(t, StateIdle, s.Status().State)
	assert.Nil(t, s.Changes())

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateConnecting, s.Status().State)
	assert.NotNil(t, s.Changes())
	assert.Equal(t, []feed.Filter{feed.DefaultFilter}, src.Filters())

	require.NoError(t, s.Start(context.Background()), "second Start is a no-op")
	assert.Len(t, src.Filters(), 1)

	h := src.Last()
	require.NoError(t, s.Close())
	assert.True(t, h.Closed())
	assert.Equal(t, StateStopped, s.Status().State)

	assert.False(t, s.Apply(feed.Signal{Kind: feed.SignalSubscribed}), "signals ignored after stop")
	assert.Equal(t, StateStopped, s.Status().State)
	assert.ErrorIs(t, s.Start(context.Background()), ErrStopped)
	assert.NoError(t, s.Close())
}

func TestStart_subscribe_error(t *testing.T) {
	src := feedtest.New()
	src.FailWith(errors.New("dial tcp: refused"))
	s := New(src)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, s.Status().State)
	assert.Contains(t, s.Status().Error, "refused")
}

func TestApply_state_machine(t *testing.T) {
	s := New(feedtest.New())
	boom := errors.New("boom")

	steps := []struct {
		signal       feed.Signal
		state        State
		reconnecting bool
	}{
		{signal: feed.Signal{Kind: feed.SignalConnecting}, state: StateConnecting},
		{signal: feed.Signal{Kind: feed.SignalSubscribed}, state: StateReady},
		{signal: feed.Signal{Kind: feed.SignalDisconnected, Attempt: 1, Err: boom}, state: StateConnecting, reconnecting: true},
		{signal: feed.Signal{Kind: feed.SignalConnecting, Attempt: 1}, state: StateConnecting, reconnecting: true},
		{signal: feed.Signal{Kind: feed.SignalFailed, Attempt: 2, Err: boom}, state: StateError},
		{signal: feed.Signal{Kind: feed.SignalConnecting, Attempt: 2}, state: StateConnecting, reconnecting: true},
		{signal: feed.Signal{Kind: feed.SignalSubscribed, Attempt: 2}, state: StateReady},
		{signal: feed.Signal{Kind: feed.SignalClosed}, state: StateError},
	}

	for _, step := range steps {
		s.Apply(step.signal)
		assert.Equal(t, step.state, s.Status().State, "after %s", step.signal.Kind)
		assert.Equal(t, step.reconnecting, s.Status().Reconnecting(), "after %s", step.signal.Kind)
	}
}

func TestApply_disconnect_without_attempt_still_reconnecting(t *testing.T) {
	s := New(feedtest.New())
	s.Apply(feed.Signal{Kind: feed.SignalSubscribed})
	s.Apply(feed.Signal{Kind: feed.SignalDisconnected})
	assert.True(t, s.Status().Reconnecting())
}

func TestApply_reports_change(t *testing.T) {
	s := New(feedtest.New())
	assert.True(t, s.Apply(feed.Signal{Kind: feed.SignalSubscribed}))
	assert.False(t, s.Apply(feed.Signal{Kind: feed.SignalSubscribed}))
	assert.False(t, s.Apply(feed.Signal{Kind: "BOGUS"}))
}

// A live UPDATE NEW -> PROCESSING for ORD-1 while READY.
func TestScenario_status_change_while_ready(t *testing.T) {
	src := feedtest.New()
	s := New(src)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	src.Last().Signal(feed.Signal{Kind: feed.SignalSubscribed})
	s.Apply(<-s.Signals())
	require.Equal(t, StateReady, s.Status().State)

	src.Last().Push(feedtest.Update("1", "ORD-1", "NEW", "PROCESSING"))
	n, ok := s.Normalize(<-s.Changes(), at)
	require.True(t, ok)
	assert.Equal(t, "NEW", n.PreviousStatus)
	assert.Equal(t, "PROCESSING", n.Status)
}
