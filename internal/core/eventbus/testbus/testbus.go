// Package testbus provides test utilities for the event bus.
// It wraps a real EventBus with event recording and assertion helpers.
package testbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hay-kot/orderbell/internal/core/eventbus"
)

// RecordedEvent holds a captured event name and payload.
type RecordedEvent struct {
	Event   eventbus.Event
	Payload any
}

// Bus wraps a real EventBus with event recording for tests.
type Bus struct {
	*eventbus.EventBus
	cancel context.CancelFunc

	mu     sync.Mutex
	events []RecordedEvent
}

// New creates a test bus, starts it in a background goroutine, and
// subscribes to all event types for recording. The bus is stopped
// when the test completes.
func New(t *testing.T) *Bus {
	t.Helper()

	bus := eventbus.New(256)
	ctx, cancel := context.WithCancel(context.Background())

	tb := &Bus{
		EventBus: bus,
		cancel:   cancel,
	}

	bus.SubscribeChangeDropped(func(p eventbus.ChangeDroppedPayload) {
		tb.record(eventbus.EventChangeDropped, p)
	})
	bus.SubscribeConnectionChanged(func(p eventbus.ConnectionChangedPayload) {
		tb.record(eventbus.EventConnectionChanged, p)
	})
	bus.SubscribeNotificationAppended(func(p eventbus.NotificationAppendedPayload) {
		tb.record(eventbus.EventNotificationAppended, p)
	})
	bus.SubscribeNotificationRead(func(p eventbus.NotificationReadPayload) {
		tb.record(eventbus.EventNotificationRead, p)
	})
	bus.SubscribeNotificationsCleared(func(p eventbus.NotificationsClearedPayload) {
		tb.record(eventbus.EventNotificationsCleared, p)
	})
	bus.SubscribePersistFailed(func(p eventbus.PersistFailedPayload) {
		tb.record(eventbus.EventPersistFailed, p)
	})
	bus.SubscribeSnapshot(func(p eventbus.SnapshotPublishedPayload) {
		tb.record(eventbus.EventSnapshotPublished, p)
	})
	bus.SubscribeToastExpired(func(p eventbus.ToastExpiredPayload) {
		tb.record(eventbus.EventToastExpired, p)
	})

	go bus.Start(ctx)

	t.Cleanup(cancel)

	return tb
}

func (tb *Bus) record(event eventbus.Event, payload any) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.events = append(tb.events, RecordedEvent{Event: event, Payload: payload})
}

// Events returns a copy of all recorded events.
func (tb *Bus) Events() []RecordedEvent {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	out := make([]RecordedEvent, len(tb.events))
	copy(out, tb.events)
	return out
}

// Reset clears all recorded events.
func (tb *Bus) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.events = nil
}

// WaitFor blocks until an event of the given type is recorded or the
// timeout expires. Returns true if the event was found.
func (tb *Bus) WaitFor(event eventbus.Event, timeout time.Duration) bool {
	return tb.WaitUntil(func(e RecordedEvent) bool { return e.Event == event }, timeout)
}

// WaitUntil blocks until a recorded event satisfies match or the timeout
// expires.
func (tb *Bus) WaitUntil(match func(RecordedEvent) bool, timeout time.Duration) bool {
	deadline := time.After(timeout)
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		if tb.any(match) {
			return true
		}
		select {
		case <-deadline:
			return tb.any(match)
		case <-ticker.C:
		}
	}
}

func (tb *Bus) any(match func(RecordedEvent) bool) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	for _, e := range tb.events {
		if match(e) {
			return true
		}
	}
	return false
}

// AssertPublished asserts that an event of the given type was recorded.
func (tb *Bus) AssertPublished(t *testing.T, event eventbus.Event) {
	t.Helper()
	if !tb.WaitFor(event, time.Second) {
		t.Errorf("expected event %q to be published, but it was not", event)
	}
}

// AssertNotPublished asserts that an event of the given type was NOT
// recorded within the given wait period.
func (tb *Bus) AssertNotPublished(t *testing.T, event eventbus.Event, wait time.Duration) {
	t.Helper()
	time.Sleep(wait)
	if tb.WaitFor(event, 0) {
		t.Errorf("expected event %q to NOT be published, but it was", event)
	}
}

// FindPayload returns the payload of the most recent event of the given
// type, failing the test if none was recorded.
func FindPayload[T any](tb *Bus, t *testing.T, event eventbus.Event) T {
	t.Helper()
	tb.AssertPublished(t, event)

	var (
		out   T
		found bool
	)
	for _, e := range tb.Events() {
		if e.Event != event {
			continue
		}
		if p, ok := e.Payload.(T); ok {
			out = p
			found = true
		}
	}
	if !found {
		t.Fatalf("no %q payload of type %T recorded", event, out)
	}
	return out
}
