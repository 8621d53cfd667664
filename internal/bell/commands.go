package bell

import (
	"context"

	"github.com/hay-kot/orderbell/internal/core/eventbus"
	"github.com/hay-kot/orderbell/internal/core/feed"
	"github.com/hay-kot/orderbell/internal/core/notify"
	"github.com/hay-kot/orderbell/internal/core/subscriber"
	"github.com/hay-kot/orderbell/internal/core/toast"
	"github.com/hay-kot/orderbell/internal/core/view"
)

// do runs fn on the engine goroutine and waits for it to finish. ctx only
// bounds the wait for Run to accept the command; once accepted, fn runs to
// completion and do reports success even if ctx is cancelled meanwhile.
func (e *Engine) do(ctx context.Context, fn func(ctx context.Context)) error {
	cmd := command{fn: fn, done: make(chan struct{})}

	select {
	case e.inbox <- cmd:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// inbox is unbuffered, so Run is already executing fn
	<-cmd.done
	return nil
}

// MarkRead marks one notification read. It reports whether the
// notification existed and was unread.
func (e *Engine) MarkRead(ctx context.Context, id string) (bool, error) {
	var changed bool
	err := e.do(ctx, func(ctx context.Context) {
		changed = e.log.MarkRead(ctx, id)
		if !changed {
			return
		}
		if e.bus != nil {
			e.bus.PublishNotificationRead(eventbus.NotificationReadPayload{IDs: []string{id}})
		}
		e.publish()
	})
	return changed, err
}

// MarkAllRead marks every notification read and returns how many changed.
func (e *Engine) MarkAllRead(ctx context.Context) (int, error) {
	var changed int
	err := e.do(ctx, func(ctx context.Context) {
		var ids []string
		for _, n := range e.log.List() {
			if !n.Read {
				ids = append(ids, n.ID)
			}
		}
		changed = e.log.MarkAllRead(ctx)
		if changed == 0 {
			return
		}
		if e.bus != nil {
			e.bus.PublishNotificationRead(eventbus.NotificationReadPayload{IDs: ids})
		}
		e.publish()
	})
	return changed, err
}

// Clear empties the log and dismisses every toast.
func (e *Engine) Clear(ctx context.Context) error {
	return e.do(ctx, func(ctx context.Context) {
		count := e.log.Len()
		e.log.Clear(ctx)
		e.toasts.Clear()
		if e.bus != nil {
			e.bus.PublishNotificationsCleared(eventbus.NotificationsClearedPayload{Count: count})
		}
		e.publish()
	})
}

// DismissToast removes an active toast before it expires. The
// notification's read state is untouched.
func (e *Engine) DismissToast(ctx context.Context, id string) (bool, error) {
	var dismissed bool
	err := e.do(ctx, func(context.Context) {
		dismissed = e.toasts.Dismiss(id)
		if !dismissed {
			return
		}
		if e.bus != nil {
			e.bus.PublishToastExpired(eventbus.ToastExpiredPayload{ID: id})
		}
		e.publish()
	})
	return dismissed, err
}

// Ingest processes c as if it arrived on the feed and returns the
// resulting notification, if any.
func (e *Engine) Ingest(ctx context.Context, c feed.Change) (notify.Notification, bool, error) {
	var (
		n  notify.Notification
		ok bool
	)
	err := e.do(ctx, func(ctx context.Context) {
		n, ok = e.ingest(ctx, c)
	})
	return n, ok, err
}

// Snapshot returns the latest published snapshot. Callers must not modify
// it.
func (e *Engine) Snapshot() *view.Snapshot { return e.snap.Load() }

// List returns a copy of the notification log, newest first.
func (e *Engine) List() []notify.Notification {
	src := e.snap.Load().Notifications
	out := make([]notify.Notification, len(src))
	for i, n := range src {
		out[i] = n.Clone()
	}
	return out
}

// UnreadCount returns the number of unread notifications.
func (e *Engine) UnreadCount() int { return e.snap.Load().Unread }

// ConnectionState returns the feed connection status.
func (e *Engine) ConnectionState() subscriber.Status { return e.snap.Load().Connection }

// Toasts returns the active toasts, oldest first.
func (e *Engine) Toasts() []toast.Toast {
	src := e.snap.Load().Toasts
	out := make([]toast.Toast, len(src))
	for i, t := range src {
		t.Notification = t.Notification.Clone()
		out[i] = t
	}
	return out
}
