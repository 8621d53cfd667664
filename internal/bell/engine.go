// Package bell runs the notification engine: a single goroutine that owns
// the notification log, the toast scheduler and the feed subscription, and
// publishes a fresh snapshot after every change.
package bell

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/orderbell/internal/core/eventbus"
	"github.com/hay-kot/orderbell/internal/core/feed"
	"github.com/hay-kot/orderbell/internal/core/kv"
	"github.com/hay-kot/orderbell/internal/core/logging"
	"github.com/hay-kot/orderbell/internal/core/notify"
	"github.com/hay-kot/orderbell/internal/core/subscriber"
	"github.com/hay-kot/orderbell/internal/core/toast"
	"github.com/hay-kot/orderbell/internal/core/view"
	"github.com/hay-kot/orderbell/pkg/clock"
)

var (
	// ErrStopped is returned by commands sent after Run has returned.
	ErrStopped = errors.New("engine stopped")
	// ErrRunning is returned by a second call to Run.
	ErrRunning = errors.New("engine already running")
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	MaxLogSize int
	ToastTTL   time.Duration
	MaxToasts  int
	PersistKey string
	Filter     feed.Filter
	Clock      clock.Clock
	Logger     zerolog.Logger
	Bus        *eventbus.EventBus
}

type command struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

// Engine serializes every mutation of the notification state onto the
// goroutine running Run. Reads are served from the last published snapshot
// and never block that goroutine.
type Engine struct {
	log    *notify.Log
	toasts *toast.Scheduler
	sub    *subscriber.Subscriber
	bus    *eventbus.EventBus
	clock  clock.Clock
	logger zerolog.Logger
	source feed.Source

	inbox    chan command
	expiries chan toast.Expiry

	snap    atomic.Pointer[view.Snapshot]
	version uint64

	running atomic.Bool
	stopped chan struct{}
}

// New builds an engine persisting to store and reading changes from source.
// A nil store keeps the log in memory; a nil source runs without a feed.
func New(store kv.KV, source feed.Source, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Filter == (feed.Filter{}) {
		opts.Filter = feed.DefaultFilter
	}

	e := &Engine{
		bus:      opts.Bus,
		clock:    opts.Clock,
		logger:   opts.Logger,
		source:   source,
		inbox:    make(chan command),
		expiries: make(chan toast.Expiry, 64),
		stopped:  make(chan struct{}),
	}

	e.log = notify.NewLog(store,
		notify.WithMaxSize(opts.MaxLogSize),
		notify.WithKey(opts.PersistKey),
		notify.WithLogger(opts.Logger),
		notify.WithPersistErrorHook(func(err error) {
			if e.bus != nil {
				e.bus.PublishPersistFailed(eventbus.PersistFailedPayload{Err: err})
			}
		}),
	)

	e.toasts = toast.New(e.postExpiry,
		toast.WithTTL(opts.ToastTTL),
		toast.WithMaxActive(opts.MaxToasts),
		toast.WithClock(opts.Clock),
	)

	e.sub = subscriber.New(source,
		subscriber.WithFilter(opts.Filter),
		subscriber.WithLogger(opts.Logger),
		subscriber.WithNow(opts.Clock.Now),
		subscriber.WithDropHook(func(reason string) {
			if e.bus != nil {
				e.bus.PublishChangeDropped(eventbus.ChangeDroppedPayload{Reason: reason})
			}
		}),
	)

	e.snap.Store(view.Empty())
	return e
}

// postExpiry runs on timer goroutines and hands the expiry to the loop.
func (e *Engine) postExpiry(x toast.Expiry) {
	select {
	case e.expiries <- x:
	case <-e.stopped:
	}
}

// Run hydrates the log, opens the feed subscription, and processes changes
// and commands until ctx is cancelled. On return the subscription is
// closed and every toast timer is stopped.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(e.stopped)

	loaded := e.log.Hydrate(ctx)
	e.logger.Info().Int("count", loaded).Str("key", e.log.Key()).Msg("notification log loaded")

	if e.source != nil {
		prev := e.sub.Status()
		if err := e.sub.Start(ctx); err != nil {
			e.logger.Error().Err(err).Msg("failed to subscribe to change feed")
		}
		e.connectionChanged(prev)
	}
	e.publish()

	changes := e.sub.Changes()
	signals := e.sub.Signals()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil

		case c, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			e.ingest(ctx, c)

		case s, ok := <-signals:
			if !ok {
				signals = nil
				s = feed.Signal{Kind: feed.SignalClosed, At: e.clock.Now()}
			}
			e.applySignal(s)

		case x := <-e.expiries:
			if e.toasts.Expire(x) {
				if e.bus != nil {
					e.bus.PublishToastExpired(eventbus.ToastExpiredPayload{ID: x.ID})
				}
				e.publish()
			}

		case cmd := <-e.inbox:
			cmd.fn(ctx)
			close(cmd.done)
		}
	}
}

// Done is closed once Run has returned.
func (e *Engine) Done() <-chan struct{} { return e.stopped }

func (e *Engine) shutdown() {
	if err := e.sub.Close(); err != nil {
		e.logger.Warn().Err(err).Msg("closing change feed")
	}
	cleared := e.toasts.Clear()
	e.publish()
	e.logger.Info().Int("toasts_cleared", cleared).Msg("engine stopped")
}

func (e *Engine) ingest(ctx context.Context, c feed.Change) (notify.Notification, bool) {
	n, ok := e.sub.Normalize(c, e.clock.Now())
	if !ok {
		return notify.Notification{}, false
	}

	evicted := e.log.Append(ctx, n)
	e.toasts.Enqueue(n)

	e.logger.Debug().
		Ctx(logging.WithNotification(ctx, n.OrderID, n.ID)).
		Str("type", string(n.Type)).
		Str("status", n.Status).
		Int("evicted", evicted).
		Msg("notification appended")

	if e.bus != nil {
		e.bus.PublishNotificationAppended(eventbus.NotificationAppendedPayload{Notification: n.Clone(), Evicted: evicted})
	}
	e.publish()
	return n, true
}

func (e *Engine) applySignal(s feed.Signal) {
	prev := e.sub.Status()
	if !e.sub.Apply(s) {
		return
	}
	e.connectionChanged(prev)
	e.publish()
}

func (e *Engine) connectionChanged(prev subscriber.Status) {
	cur := e.sub.Status()
	if cur == prev || e.bus == nil {
		return
	}
	e.bus.PublishConnectionChanged(eventbus.ConnectionChangedPayload{Previous: prev, Current: cur})
}

func (e *Engine) publish() {
	e.version++
	s := &view.Snapshot{
		Notifications: e.log.List(),
		Unread:        e.log.UnreadCount(),
		Toasts:        e.toasts.Active(),
		Connection:    e.sub.Status(),
		Version:       e.version,
		At:            e.clock.Now(),
	}
	e.snap.Store(s)
	if e.bus != nil {
		e.bus.PublishSnapshotPublished(eventbus.SnapshotPublishedPayload{Snapshot: s})
	}
}
