package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hay-kot/orderbell/internal/bell"
	"github.com/hay-kot/orderbell/internal/core/config"
	"github.com/hay-kot/orderbell/internal/core/eventbus"
	"github.com/hay-kot/orderbell/internal/core/kv"
	"github.com/hay-kot/orderbell/internal/core/logging"
	"github.com/hay-kot/orderbell/internal/core/notify"
	"github.com/hay-kot/orderbell/internal/data/stores"
	"github.com/hay-kot/orderbell/internal/integration/feeds"
	"github.com/hay-kot/orderbell/internal/metrics"
)

const (
	heartbeatInterval = 5 * time.Second
	sweepInterval     = 5 * time.Minute
	busBuffer         = 256
)

// runtime is the engine with everything it needs, before any goroutine has
// started.
type runtime struct {
	cfg     *config.Config
	store   *stores.Backend
	bus     *eventbus.EventBus
	engine  *bell.Engine
	metrics *metrics.Metrics
}

// newRuntime opens storage and the configured feed and builds the engine.
func newRuntime(ctx context.Context, cfg *config.Config, withMetrics bool) (*runtime, error) {
	store, err := stores.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	source, err := feeds.Open(cfg, logging.Component(logging.CmpFeed))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open feed: %w", err)
	}

	bus := eventbus.New(busBuffer)
	if log.Logger.GetLevel() <= zerolog.DebugLevel {
		eventbus.RegisterDebugLogger(bus, logging.Component(logging.CmpBus))
	}

	rt := &runtime{cfg: cfg, store: store, bus: bus}
	if withMetrics {
		rt.metrics = metrics.New()
		eventbus.NewRecorderRouter(bus, rt.metrics).Register()
	}

	rt.engine = bell.New(store, source, bell.Options{
		MaxLogSize: cfg.Engine.MaxLogSize,
		ToastTTL:   cfg.Engine.ToastTTL,
		MaxToasts:  cfg.Engine.MaxToasts,
		PersistKey: cfg.Engine.PersistKey,
		Filter:     cfg.Filter(),
		Logger:     logging.Component(logging.CmpEngine),
		Bus:        bus,
	})

	log.Debug().
		Str("storage", store.Name).
		Str("feed", cfg.Feed.Source).
		Msg("runtime ready")

	return rt, nil
}

// background returns the goroutines every engine host runs: the bus, the
// engine loop and the store sweep.
func (rt *runtime) background() []func(ctx context.Context) error {
	fns := []func(ctx context.Context) error{
		func(ctx context.Context) error {
			rt.bus.Start(ctx)
			return nil
		},
		rt.engine.Run,
	}
	if sw, ok := rt.store.Sweeper(); ok {
		fns = append(fns, func(ctx context.Context) error {
			stores.Sweep(ctx, sw, sweepInterval)
			return nil
		})
	}
	return fns
}

func (rt *runtime) Close() error {
	return rt.store.Close()
}

// runningServer reports the live server sharing store, if any.
func runningServer(ctx context.Context, store kv.KV) (bell.Heartbeat, bool) {
	hb, ok, err := bell.ReadHeartbeat(ctx, store, time.Now(), 3*heartbeatInterval)
	if err != nil {
		log.Debug().Err(err).Msg("read heartbeat")
		return bell.Heartbeat{}, false
	}
	return hb, ok
}

// openLog hydrates the persisted log for offline edits.
func openLog(ctx context.Context, cfg *config.Config, store kv.KV, onPersistErr func(error)) *notify.Log {
	l := notify.NewLog(store,
		notify.WithMaxSize(cfg.Engine.MaxLogSize),
		notify.WithKey(cfg.Engine.PersistKey),
		notify.WithLogger(logging.Component(logging.CmpStore)),
		notify.WithPersistErrorHook(onPersistErr),
	)
	l.Hydrate(ctx)
	return l
}
