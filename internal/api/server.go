// Package api serves the notification engine over HTTP: JSON endpoints for
// the render layer and a WebSocket stream of snapshots.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/hay-kot/orderbell/internal/core/eventbus"
	"github.com/hay-kot/orderbell/internal/core/feed"
	"github.com/hay-kot/orderbell/internal/core/notify"
	"github.com/hay-kot/orderbell/internal/core/view"
	"github.com/hay-kot/orderbell/internal/metrics"
)

// Engine is the part of bell.Engine the API drives.
type Engine interface {
	Snapshot() *view.Snapshot
	MarkRead(ctx context.Context, id string) (bool, error)
	MarkAllRead(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	DismissToast(ctx context.Context, id string) (bool, error)
	Ingest(ctx context.Context, c feed.Change) (notify.Notification, bool, error)
}

// Options configures a Server.
type Options struct {
	Addr string
	// Metrics, when set, instruments requests and serves /metrics.
	Metrics *metrics.Metrics
	// AllowIngest enables POST /api/changes.
	AllowIngest     bool
	ShutdownTimeout time.Duration
	Logger          zerolog.Logger
}

// Server is the HTTP front of the engine.
type Server struct {
	engine Engine
	hub    *Hub
	router *gin.Engine
	opts   Options
}

// New builds the router. When bus is non-nil every published snapshot is
// pushed to stream clients.
func New(engine Engine, bus *eventbus.EventBus, opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		engine: engine,
		hub:    NewHub(opts.Logger),
		opts:   opts,
	}

	if bus != nil {
		bus.SubscribeSnapshot(func(p eventbus.SnapshotPublishedPayload) {
			s.hub.Broadcast(p.Snapshot)
		})
	}

	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the stream hub.
func (s *Server) Hub() *Hub { return s.hub }

// Run serves until ctx is cancelled, then shuts down gracefully and closes
// stream clients.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info().Str("addr", ln.Addr().String()).Msg("api listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.opts.Logger.Info().Msg("api stopped")
	return nil
}
