package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/hay-kot/orderbell/internal/api"
	"github.com/hay-kot/orderbell/internal/bell"
	"github.com/hay-kot/orderbell/internal/core/logging"
	"github.com/hay-kot/orderbell/pkg/profiler"
)

type ServeCmd struct {
	flags *Flags

	// flags
	addr         string
	noIngest     bool
	profilerPort int
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the notification engine and its HTTP API",
		UsageText: "orderbell serve [--addr host:port]",
		Description: `Subscribes to the configured change feed, keeps the notification log and
serves it over HTTP. Render layers connect to /api/stream for live snapshots.

While serve runs, 'orderbell log' and 'orderbell tui' go through its API.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (overrides server.addr)",
				Sources:     cli.EnvVars("ORDERBELL_ADDR"),
				Destination: &cmd.addr,
			},
			&cli.BoolFlag{
				Name:        "no-ingest",
				Usage:       "disable POST /api/changes",
				Destination: &cmd.noIngest,
			},
			&cli.IntFlag{
				Name:        "profiler-port",
				Usage:       "enable pprof HTTP endpoint on specified port (e.g., 6060)",
				Sources:     cli.EnvVars("ORDERBELL_PROFILER_PORT"),
				Destination: &cmd.profilerPort,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, _ *cli.Command) error {
	cfg := cmd.flags.Config
	addr := cfg.Server.Addr
	if cmd.addr != "" {
		addr = cmd.addr
	}

	rt, err := newRuntime(ctx, cfg, cfg.Server.Metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close storage")
		}
	}()

	if hb, running := runningServer(ctx, rt.store.KV); running {
		return fmt.Errorf("a server is already running at %s (pid %d)", hb.Addr, hb.PID)
	}

	server := api.New(rt.engine, rt.bus, api.Options{
		Addr:            addr,
		Metrics:         rt.metrics,
		AllowIngest:     !cmd.noIngest,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logging.Component(logging.CmpAPI),
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range rt.background() {
		g.Go(func() error { return fn(gctx) })
	}
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error {
		bell.Beat(gctx, rt.store.KV, addr, heartbeatInterval, func(err error) {
			log.Warn().Err(err).Msg("heartbeat write failed")
		})
		return nil
	})
	if cmd.profilerPort > 0 {
		g.Go(func() error { return profiler.New(cmd.profilerPort).Run(gctx) })
	}

	log.Info().
		Str("addr", addr).
		Str("storage", rt.store.Name).
		Str("feed", cfg.Feed.Source).
		Msg("orderbell serving")

	return g.Wait()
}
