package commands

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/hay-kot/orderbell/internal/api"
	"github.com/hay-kot/orderbell/internal/core/eventbus"
	"github.com/hay-kot/orderbell/internal/core/view"
	"github.com/hay-kot/orderbell/internal/data/stores"
	"github.com/hay-kot/orderbell/internal/tui"
	"github.com/hay-kot/orderbell/pkg/logutils"
)

// log lines kept while the tui owns the terminal
const deferredLogLimit = 1 << 20

type TuiCmd struct {
	flags *Flags

	// flags
	server   string
	embedded bool
}

// NewTuiCmd creates a new tui command
func NewTuiCmd(flags *Flags) *TuiCmd {
	return &TuiCmd{flags: flags}
}

// Flags returns the TUI-specific flags for registration on the root command
func (cmd *TuiCmd) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "server",
			Usage:       "API to attach to (e.g. http://127.0.0.1:7420); defaults to tui.server or a running server",
			Sources:     cli.EnvVars("ORDERBELL_SERVER"),
			Destination: &cmd.server,
		},
		&cli.BoolFlag{
			Name:        "embedded",
			Usage:       "run the engine in-process even when a server is running",
			Destination: &cmd.embedded,
		},
	}
}

// Register adds the tui command to the application
func (cmd *TuiCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "tui",
		Usage:     "Open the live notification view",
		UsageText: "orderbell tui [--server url] [--embedded]",
		Description: `Shows the notification log, active toasts and the feed connection state.

Attaches to a running 'orderbell serve' when one is found through the
storage heartbeat or given with --server; otherwise the engine runs in-process.`,
		Flags:  cmd.Flags(),
		Action: cmd.run,
	})
	return app
}

// Run executes the TUI. Exported for use as default command.
func (cmd *TuiCmd) Run(ctx context.Context, c *cli.Command) error {
	return cmd.run(ctx, c)
}

func (cmd *TuiCmd) run(ctx context.Context, _ *cli.Command) error {
	restore := cmd.deferLogs()
	defer restore()

	server, err := cmd.resolveServer(ctx)
	if err != nil {
		return err
	}
	if server != "" {
		return cmd.runAttached(ctx, server)
	}
	return cmd.runEmbedded(ctx)
}

// resolveServer picks the API to attach to, or "" for an embedded engine.
func (cmd *TuiCmd) resolveServer(ctx context.Context) (string, error) {
	if cmd.embedded {
		return "", nil
	}
	if cmd.server != "" {
		return cmd.server, nil
	}
	if cmd.flags.Config.TUI.Server != "" {
		return cmd.flags.Config.TUI.Server, nil
	}

	store, err := stores.Open(ctx, cmd.flags.Config)
	if err != nil {
		return "", fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	if hb, ok := runningServer(ctx, store.KV); ok {
		log.Info().Str("addr", hb.Addr).Msg("attaching to running server")
		return "http://" + hb.Addr, nil
	}
	return "", nil
}

func (cmd *TuiCmd) runAttached(ctx context.Context, server string) error {
	client, err := api.NewClient(server)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	snaps, err := client.Stream(ctx)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", server, err)
	}
	return tui.Run(ctx, client, snaps, tui.Options{Source: server})
}

func (cmd *TuiCmd) runEmbedded(ctx context.Context) error {
	rt, err := newRuntime(ctx, cmd.flags.Config, false)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	snaps := snapshotChannel(rt.bus, rt.engine.Snapshot)

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	for _, fn := range rt.background() {
		g.Go(func() error { return fn(gctx) })
	}
	g.Go(func() error {
		defer cancel()
		return tui.Run(gctx, rt.engine, snaps, tui.Options{Source: "embedded · " + rt.store.Name})
	})
	return g.Wait()
}

// snapshotChannel forwards published snapshots, keeping only the newest
// unread one. When the bus drops a snapshot event the engine's current
// snapshot is forwarded instead, so the last mutation always reaches the
// screen. Versions never go backwards.
func snapshotChannel(bus *eventbus.EventBus, latest func() *view.Snapshot) <-chan *view.Snapshot {
	f := &snapshotFeed{ch: make(chan *view.Snapshot, 1)}
	bus.SubscribeSnapshot(func(p eventbus.SnapshotPublishedPayload) {
		f.offer(p.Snapshot)
	})
	bus.OnDrop(func(event eventbus.Event, _ any) {
		if event == eventbus.EventSnapshotPublished {
			f.offer(latest())
		}
	})
	f.offer(latest())
	return f.ch
}

type snapshotFeed struct {
	mu      sync.Mutex
	ch      chan *view.Snapshot
	sent    bool
	version uint64
}

func (f *snapshotFeed) offer(s *view.Snapshot) {
	if s == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent && s.Version <= f.version {
		return
	}
	f.sent, f.version = true, s.Version

	for {
		select {
		case f.ch <- s:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

// deferLogs holds stderr logging while the alternate screen is active.
func (cmd *TuiCmd) deferLogs() func() {
	if cmd.flags.LogFile != "" {
		return func() {}
	}

	prev := log.Logger
	buf := logutils.NewDeferredWriter(deferredLogLimit)
	log.Logger = log.Logger.Output(buf)

	return func() {
		log.Logger = prev
		if n := buf.Dropped(); n > 0 {
			log.Warn().Int("lines", n).Msg("log output dropped while the tui was open")
		}
		_ = buf.Flush(os.Stderr)
	}
}
