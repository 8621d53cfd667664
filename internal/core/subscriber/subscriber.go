// Package subscriber turns row changes from a feed into order notifications
// and tracks the health of the feed connection.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hay-kot/orderbell/internal/core/feed"
	"github.com/hay-kot/orderbell/internal/core/notify"
)

// ErrStopped is returned by Start after Close.
var ErrStopped = errors.New("subscriber stopped")

// State is the connection state of the change feed.
type State string

const (
	StateIdle       State = "IDLE"
	StateConnecting State = "CONNECTING"
	StateReady      State = "READY"
	StateError      State = "ERROR"
	StateStopped    State = "STOPPED"
)

// States lists every State in lifecycle order.
func States() []State {
	return []State{StateIdle, StateConnecting, StateReady, StateError, StateStopped}
}

// Status is a point-in-time view of the connection.
type Status struct {
	State   State     `json:"state"`
	Attempt int       `json:"attempt"`
	Error   string    `json:"error,omitempty"`
	Since   time.Time `json:"since"`
}

// Reconnecting reports whether the feed is re-establishing a subscription
// that was previously live or has failed before.
func (s Status) Reconnecting() bool {
	return s.State == StateConnecting && s.Attempt > 0
}

// Drop reasons passed to the drop hook.
const (
	DropKind       = "kind"
	DropMissingID  = "missing_id"
	DropMissingOld = "missing_old"
	DropTable      = "table"
)

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithFilter sets the table filter. Defaults to feed.DefaultFilter.
func WithFilter(f feed.Filter) Option {
	return func(s *Subscriber) { s.filter = f }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Subscriber) { s.logger = l }
}

// WithDropHook registers fn to be called with the reason for every dropped
// change.
func WithDropHook(fn func(reason string)) Option {
	return func(s *Subscriber) { s.onDrop = fn }
}

// WithNow overrides the timestamp source used for Status.Since.
func WithNow(now func() time.Time) Option {
	return func(s *Subscriber) {
		if now != nil {
			s.now = now
		}
	}
}

// Subscriber owns one feed subscription. It is driven by a single goroutine
// and performs no locking.
type Subscriber struct {
	source feed.Source
	filter feed.Filter
	handle feed.Handle
	status Status
	now    func() time.Time
	logger zerolog.Logger
	onDrop func(string)

	dropLog rate.Sometimes
}

// New returns an idle subscriber for source.
func New(source feed.Source, opts ...Option) *Subscriber {
	s := &Subscriber{
		source:  source,
		filter:  feed.DefaultFilter,
		now:     time.Now,
		logger:  zerolog.Nop(),
		dropLog: rate.Sometimes{First: 5, Interval: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.status = Status{State: StateIdle, Since: s.now()}
	return s
}

// Start opens the subscription. Calling Start on a running subscriber is a
// no-op.
func (s *Subscriber) Start(ctx context.Context) error {
	if s.status.State == StateStopped {
		return ErrStopped
	}
	if s.handle != nil {
		return nil
	}

	s.setStatus(Status{State: StateConnecting})
	h, err := s.source.Subscribe(ctx, s.filter)
	if err != nil {
		s.setStatus(Status{State: StateError, Attempt: 1, Error: err.Error()})
		return fmt.Errorf("subscribe to %s: %w", s.filter.Table, err)
	}
	s.handle = h
	return nil
}

// Changes returns the change channel, or nil before Start.
func (s *Subscriber) Changes() <-chan feed.Change {
	if s.handle == nil {
		return nil
	}
	return s.handle.Changes()
}

// Signals returns the signal channel, or nil before Start.
func (s *Subscriber) Signals() <-chan feed.Signal {
	if s.handle == nil {
		return nil
	}
	return s.handle.Signals()
}

// Status returns the current connection status.
func (s *Subscriber) Status() Status { return s.status }

// Apply advances the connection state machine and reports whether the
// status changed. Signals are ignored once stopped.
func (s *Subscriber) Apply(sig feed.Signal) bool {
	if s.status.State == StateStopped {
		return false
	}

	var next Status
	switch sig.Kind {
	case feed.SignalConnecting:
		next = Status{State: StateConnecting, Attempt: sig.Attempt}
	case feed.SignalSubscribed:
		next = Status{State: StateReady}
	case feed.SignalDisconnected:
		next = Status{State: StateConnecting, Attempt: max(sig.Attempt, 1), Error: errString(sig.Err)}
	case feed.SignalFailed:
		next = Status{State: StateError, Attempt: sig.Attempt, Error: errString(sig.Err)}
	case feed.SignalClosed:
		// the feed gave up on its own; Close is the only way to STOPPED
		next = Status{State: StateError, Attempt: s.status.Attempt, Error: "change feed closed"}
	default:
		s.logger.Debug().Str("signal", string(sig.Kind)).Msg("ignoring unknown feed signal")
		return false
	}

	if next.State == s.status.State && next.Attempt == s.status.Attempt && next.Error == s.status.Error {
		return false
	}

	next.Since = sig.At
	s.setStatus(next)
	return true
}

// Normalize converts c into a notification. It returns false when c does
// not produce one: unchanged statuses are skipped silently, malformed
// changes are dropped and reported to the drop hook.
func (s *Subscriber) Normalize(c feed.Change, at time.Time) (notify.Notification, bool) {
	if !s.filter.Matches(c) {
		s.drop(DropTable, c)
		return notify.Notification{}, false
	}
	if c.New.ID == "" {
		s.drop(DropMissingID, c)
		return notify.Notification{}, false
	}

	order := notify.Order{
		ID:          c.New.ID.String(),
		Code:        c.New.OrderCode.String(),
		Status:      c.New.Status.String(),
		StoreID:     c.New.StoreID.String(),
		TotalAmount: c.New.Amount(),
	}

	switch c.Kind {
	case feed.KindInsert:
		return notify.NewOrderCreated(order, at), true
	case feed.KindUpdate:
		if c.Old == nil {
			s.drop(DropMissingOld, c)
			return notify.Notification{}, false
		}
		previous := c.Old.Status.String()
		if previous == order.Status {
			return notify.Notification{}, false
		}
		return notify.NewOrderStatusChanged(order, previous, at), true
	default:
		s.drop(DropKind, c)
		return notify.Notification{}, false
	}
}

// Close ends the subscription. The subscriber moves to STOPPED and ignores
// further signals. Close is idempotent.
func (s *Subscriber) Close() error {
	if s.status.State == StateStopped {
		return nil
	}
	s.setStatus(Status{State: StateStopped})

	if s.handle == nil {
		return nil
	}
	h := s.handle
	s.handle = nil
	if err := h.Close(); err != nil {
		return fmt.Errorf("close change feed: %w", err)
	}
	return nil
}

func (s *Subscriber) setStatus(next Status) {
	if next.Since.IsZero() {
		next.Since = s.now()
	}
	prev := s.status.State
	s.status = next
	if prev != next.State {
		s.logger.Info().
			Str("from", string(prev)).
			Str("to", string(next.State)).
			Int("attempt", next.Attempt).
			Msg("feed connection state changed")
	}
}

func (s *Subscriber) drop(reason string, c feed.Change) {
	s.dropLog.Do(func() {
		s.logger.Debug().
			Str("reason", reason).
			Str("kind", string(c.Kind)).
			Str("table", c.Table).
			Str("order_id", c.New.ID.String()).
			Msg("dropping change")
	})
	if s.onDrop != nil {
		s.onDrop(reason)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
