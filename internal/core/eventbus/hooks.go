package eventbus

import "sync"

// hookList is a copy-on-read list of callbacks registered on the bus.
type hookList[F any] struct {
	mu  sync.RWMutex
	fns []F
}

func (h *hookList[F]) add(fn F) {
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}

func (h *hookList[F]) list() []F {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]F, len(h.fns))
	copy(out, h.fns)
	return out
}

type hooks struct {
	publish hookList[func(Event, any)]
	drop    hookList[func(Event, any)]
	panic   hookList[func(Event, any, any)]
}

// OnPublish registers fn to run on the publisher's goroutine after an event
// is buffered.
func (bus *EventBus) OnPublish(fn func(Event, any)) { bus.hooks.publish.add(fn) }

// OnDrop registers fn to run when an event is discarded because the buffer
// is full. Render surfaces use it to fall back to the engine's latest
// snapshot.
func (bus *EventBus) OnDrop(fn func(Event, any)) { bus.hooks.drop.add(fn) }

// OnPanic registers fn to run when a subscriber panics during dispatch.
func (bus *EventBus) OnPanic(fn func(Event, any, any)) { bus.hooks.panic.add(fn) }

// send buffers an event without blocking.
func (bus *EventBus) send(event Event, payload any) {
	select {
	case bus.ch <- envelope{event: event, payload: payload}:
		for _, fn := range bus.hooks.publish.list() {
			fn(event, payload)
		}
	default:
		for _, fn := range bus.hooks.drop.list() {
			fn(event, payload)
		}
	}
}

// reportPanic runs the panic hooks; a hook that itself panics is ignored.
func (bus *EventBus) reportPanic(event Event, payload any, recovered any) {
	for _, fn := range bus.hooks.panic.list() {
		func() {
			defer func() { _ = recover() }()
			fn(event, payload, recovered)
		}()
	}
}
