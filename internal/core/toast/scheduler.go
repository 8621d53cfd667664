// Package toast schedules the transient display of new notifications.
package toast

import (
	"time"

	"github.com/hay-kot/orderbell/internal/core/notify"
	"github.com/hay-kot/orderbell/pkg/clock"
)

// DefaultTTL is how long a toast stays active.
const DefaultTTL = 6500 * time.Millisecond

// Toast is an active toast.
type Toast struct {
	Notification notify.Notification `json:"notification"`
	ShownAt      time.Time           `json:"shownAt"`
	ExpiresAt    time.Time           `json:"expiresAt"`
}

// Expiry identifies one scheduled expiry. The token ties it to a specific
// Enqueue so a timer from a replaced or cleared toast is ignored.
type Expiry struct {
	ID    string
	token uint64
}

type entry struct {
	toast Toast
	token uint64
	timer clock.Timer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTTL sets the toast lifetime. Non-positive values are ignored.
func WithTTL(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithMaxActive caps the number of active toasts, evicting the oldest.
// Zero means unlimited.
func WithMaxActive(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.maxActive = n
		}
	}
}

// WithClock sets the clock timers are scheduled on.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// Scheduler keeps the active toast set and one timer per toast. It is owned
// by a single goroutine; fire is called from timer goroutines and must hand
// the Expiry back to the owner, which then calls Expire.
type Scheduler struct {
	ttl       time.Duration
	maxActive int
	clock     clock.Clock
	fire      func(Expiry)

	entries map[string]*entry
	order   []string
	seq     uint64
}

// New returns a scheduler that reports due toasts to fire.
func New(fire func(Expiry), opts ...Option) *Scheduler {
	s := &Scheduler{
		ttl:     DefaultTTL,
		clock:   clock.Real{},
		fire:    fire,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the toast lifetime.
func (s *Scheduler) TTL() time.Duration { return s.ttl }

// Enqueue activates a toast for n. Enqueueing an id that is already active
// restarts its timer. It returns the number of toasts evicted by the cap.
func (s *Scheduler) Enqueue(n notify.Notification) int {
	if old, ok := s.entries[n.ID]; ok {
		old.timer.Stop()
		s.removeOrder(n.ID)
	}

	s.seq++
	token := s.seq
	id := n.ID
	now := s.clock.Now()

	e := &entry{
		toast: Toast{Notification: n.Clone(), ShownAt: now, ExpiresAt: now.Add(s.ttl)},
		token: token,
	}
	s.entries[id] = e
	s.order = append(s.order, id)
	e.timer = s.clock.AfterFunc(s.ttl, func() {
		s.fire(Expiry{ID: id, token: token})
	})

	evicted := 0
	for s.maxActive > 0 && len(s.order) > s.maxActive {
		s.remove(s.order[0])
		evicted++
	}
	return evicted
}

// Expire removes the toast named by e if e belongs to its live timer. It
// reports whether a toast was removed.
func (s *Scheduler) Expire(e Expiry) bool {
	cur, ok := s.entries[e.ID]
	if !ok || cur.token != e.token {
		return false
	}
	delete(s.entries, e.ID)
	s.removeOrder(e.ID)
	return true
}

// Dismiss removes the toast with id before its timer fires.
func (s *Scheduler) Dismiss(id string) bool {
	if _, ok := s.entries[id]; !ok {
		return false
	}
	s.remove(id)
	return true
}

// Clear cancels every timer and empties the active set. It returns the
// number of toasts removed.
func (s *Scheduler) Clear() int {
	n := len(s.entries)
	for _, e := range s.entries {
		e.timer.Stop()
	}
	clear(s.entries)
	s.order = s.order[:0]
	return n
}

// Active returns the active toasts, oldest first.
func (s *Scheduler) Active() []Toast {
	out := make([]Toast, 0, len(s.order))
	for _, id := range s.order {
		t := s.entries[id].toast
		t.Notification = t.Notification.Clone()
		out = append(out, t)
	}
	return out
}

// Len returns the number of active toasts.
func (s *Scheduler) Len() int { return len(s.order) }

func (s *Scheduler) remove(id string) {
	if e, ok := s.entries[id]; ok {
		e.timer.Stop()
		delete(s.entries, id)
	}
	s.removeOrder(id)
}

func (s *Scheduler) removeOrder(id string) {
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
