// Package feedtest provides an in-memory change feed for tests.
package feedtest

import (
	"context"
	"sync"
	"time"

	"github.com/hay-kot/orderbell/internal/core/feed"
)

// Source is a feed.Source whose handles are driven by the test.
type Source struct {
	mu      sync.Mutex
	handles []*Handle
	err     error
	filters []feed.Filter
}

var _ feed.Source = (*Source)(nil)

// New returns an empty fake source.
func New() *Source { return &Source{} }

// FailWith makes subsequent Subscribe calls return err.
func (s *Source) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Source) Subscribe(_ context.Context, filter feed.Filter) (feed.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	h := &Handle{
		changes: make(chan feed.Change, 64),
		signals: make(chan feed.Signal, 64),
	}
	s.handles = append(s.handles, h)
	s.filters = append(s.filters, filter)
	return h, nil
}

// Last returns the most recent handle, or nil if none was opened.
func (s *Source) Last() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.handles) == 0 {
		return nil
	}
	return s.handles[len(s.handles)-1]
}

// WaitHandle blocks until a handle has been opened or timeout elapses.
func (s *Source) WaitHandle(timeout time.Duration) *Handle {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if h := s.Last(); h != nil {
			return h
		}
		time.Sleep(2 * time.Millisecond)
	}
	return nil
}

// Filters returns the filters passed to Subscribe.
func (s *Source) Filters() []feed.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]feed.Filter, len(s.filters))
	copy(out, s.filters)
	return out
}

// Handle is a fake subscription.
type Handle struct {
	changes chan feed.Change
	signals chan feed.Signal

	mu   sync.Mutex
	done bool
}

var _ feed.Handle = (*Handle)(nil)

func (h *Handle) Changes() <-chan feed.Change { return h.changes }
func (h *Handle) Signals() <-chan feed.Signal { return h.signals }

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return nil
	}
	h.done = true
	close(h.changes)
	close(h.signals)
	return nil
}

// Closed reports whether Close was called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// Push delivers c. It is a no-op after Close.
func (h *Handle) Push(c feed.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return
	}
	h.changes <- c
}

// Signal delivers s. It is a no-op after Close.
func (h *Handle) Signal(s feed.Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return
	}
	h.signals <- s
}

// Insert builds an INSERT change on the orders table.
func Insert(id, code, status string) feed.Change {
	return feed.Change{
		Kind:  feed.KindInsert,
		Table: "orders",
		New:   feed.Row{ID: feed.Text(id), OrderCode: feed.Text(code), Status: feed.Text(status)},
	}
}

// Update builds an UPDATE change on the orders table with an old row image.
func Update(id, code, oldStatus, newStatus string) feed.Change {
	return feed.Change{
		Kind:  feed.KindUpdate,
		Table: "orders",
		New:   feed.Row{ID: feed.Text(id), OrderCode: feed.Text(code), Status: feed.Text(newStatus)},
		Old:   &feed.Row{ID: feed.Text(id), OrderCode: feed.Text(code), Status: feed.Text(oldStatus)},
	}
}
