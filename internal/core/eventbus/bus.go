package eventbus

import (
	"context"
	"sync"
)

type envelope struct {
	event   Event
	payload any
}

// EventBus delivers published events to subscribers on a single dispatch
// goroutine. Publishing never blocks; events are dropped when the buffer
// is full.
type EventBus struct {
	ch    chan envelope
	hooks hooks

	mu   sync.RWMutex
	subs map[Event][]func(any)
}

// New creates a bus with the given buffer size.
func New(buffer int) *EventBus {
	if buffer < 1 {
		buffer = 1
	}
	return &EventBus{
		ch:   make(chan envelope, buffer),
		subs: make(map[Event][]func(any)),
	}
}

// Start dispatches events until ctx is cancelled, then delivers whatever is
// still buffered and returns.
func (bus *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			bus.drain()
			return
		case env := <-bus.ch:
			bus.dispatch(env)
		}
	}
}

func (bus *EventBus) drain() {
	for {
		select {
		case env := <-bus.ch:
			bus.dispatch(env)
		default:
			return
		}
	}
}

func (bus *EventBus) subscribe(event Event, fn func(any)) {
	bus.mu.Lock()
	bus.subs[event] = append(bus.subs[event], fn)
	bus.mu.Unlock()
}

func (bus *EventBus) dispatch(env envelope) {
	bus.mu.RLock()
	subs := make([]func(any), len(bus.subs[env.event]))
	copy(subs, bus.subs[env.event])
	bus.mu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					bus.reportPanic(env.event, env.payload, r)
				}
			}()
			fn(env.payload)
		}()
	}
}

func (bus *EventBus) PublishChangeDropped(p ChangeDroppedPayload) {
	bus.send(EventChangeDropped, p)
}

func (bus *EventBus) SubscribeChangeDropped(fn func(ChangeDroppedPayload)) {
	bus.subscribe(EventChangeDropped, func(v any) { fn(v.(ChangeDroppedPayload)) })
}

func (bus *EventBus) PublishConnectionChanged(p ConnectionChangedPayload) {
	bus.send(EventConnectionChanged, p)
}

func (bus *EventBus) SubscribeConnectionChanged(fn func(ConnectionChangedPayload)) {
	bus.subscribe(EventConnectionChanged, func(v any) { fn(v.(ConnectionChangedPayload)) })
}

func (bus *EventBus) PublishNotificationAppended(p NotificationAppendedPayload) {
	bus.send(EventNotificationAppended, p)
}

func (bus *EventBus) SubscribeNotificationAppended(fn func(NotificationAppendedPayload)) {
	bus.subscribe(EventNotificationAppended, func(v any) { fn(v.(NotificationAppendedPayload)) })
}

func (bus *EventBus) PublishNotificationRead(p NotificationReadPayload) {
	bus.send(EventNotificationRead, p)
}

func (bus *EventBus) SubscribeNotificationRead(fn func(NotificationReadPayload)) {
	bus.subscribe(EventNotificationRead, func(v any) { fn(v.(NotificationReadPayload)) })
}

func (bus *EventBus) PublishNotificationsCleared(p NotificationsClearedPayload) {
	bus.send(EventNotificationsCleared, p)
}

func (bus *EventBus) SubscribeNotificationsCleared(fn func(NotificationsClearedPayload)) {
	bus.subscribe(EventNotificationsCleared, func(v any) { fn(v.(NotificationsClearedPayload)) })
}

func (bus *EventBus) PublishPersistFailed(p PersistFailedPayload) {
	bus.send(EventPersistFailed, p)
}

func (bus *EventBus) SubscribePersistFailed(fn func(PersistFailedPayload)) {
	bus.subscribe(EventPersistFailed, func(v any) { fn(v.(PersistFailedPayload)) })
}

func (bus *EventBus) PublishSnapshotPublished(p SnapshotPublishedPayload) {
	bus.send(EventSnapshotPublished, p)
}

// SubscribeSnapshot is the render-surface entry point: fn receives every
// snapshot the engine publishes.
func (bus *EventBus) SubscribeSnapshot(fn func(SnapshotPublishedPayload)) {
	bus.subscribe(EventSnapshotPublished, func(v any) { fn(v.(SnapshotPublishedPayload)) })
}

func (bus *EventBus) PublishToastExpired(p ToastExpiredPayload) {
	bus.send(EventToastExpired, p)
}

func (bus *EventBus) SubscribeToastExpired(fn func(ToastExpiredPayload)) {
	bus.subscribe(EventToastExpired, func(v any) { fn(v.(ToastExpiredPayload)) })
}
