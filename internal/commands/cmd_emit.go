package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/orderbell/internal/api"
	"github.com/hay-kot/orderbell/internal/core/config"
	"github.com/hay-kot/orderbell/internal/core/feed"
	"github.com/hay-kot/orderbell/internal/core/validate"
	"github.com/hay-kot/orderbell/internal/data/stores"
	"github.com/hay-kot/orderbell/internal/integration/feeds/pgnotify"
	"github.com/hay-kot/orderbell/internal/integration/feeds/redisfeed"
	"github.com/hay-kot/orderbell/internal/integration/feeds/spool"
	"github.com/hay-kot/orderbell/pkg/iojson"
)

// Emit targets.
const (
	emitSpool    = "spool"
	emitRedis    = "redis"
	emitPostgres = "postgres"
	emitAPI      = "api"
)

type EmitCmd struct {
	flags *Flags
	input iojson.FileReader[feed.Payload]

	// flags
	to        string
	server    string
	kind      string
	id        string
	code      string
	status    string
	oldStatus string
	storeID   string
	amount    float64
}

// NewEmitCmd creates a new emit command
func NewEmitCmd(flags *Flags) *EmitCmd {
	return &EmitCmd{flags: flags}
}

// Register adds the emit command to the application
func (cmd *EmitCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "emit",
		Usage:     "Publish a test order change",
		UsageText: "orderbell emit [--to target] --status NEW [--old-status ...] | -f change.json",
		Description: `Builds one change on the orders table and sends it where a feed or the
server will pick it up:

  spool     write a file into the spool directory
  redis     PUBLISH on feed.redis.channel
  postgres  pg_notify on feed.postgres.channel
  api       POST to a running server's /api/changes

The target defaults to the configured feed source, or api when the source
has no publish side. A payload in the feed JSON format can be given with -f
instead of the flags (-f /dev/stdin reads a pipe).`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "to",
				Usage:       "target: spool, redis, postgres or api",
				Destination: &cmd.to,
			},
			&cli.StringFlag{
				Name:        "server",
				Usage:       "API url for --to api (defaults to the running server)",
				Sources:     cli.EnvVars("ORDERBELL_SERVER"),
				Destination: &cmd.server,
			},
			&cli.StringFlag{
				Name:        "type",
				Usage:       "INSERT or UPDATE (UPDATE when --old-status is set)",
				Destination: &cmd.kind,
			},
			&cli.StringFlag{
				Name:        "id",
				Usage:       "order id (random when empty)",
				Destination: &cmd.id,
			},
			&cli.StringFlag{
				Name:        "code",
				Usage:       "order code",
				Destination: &cmd.code,
			},
			&cli.StringFlag{
				Name:        "status",
				Usage:       "order status",
				Value:       "NEW",
				Destination: &cmd.status,
			},
			&cli.StringFlag{
				Name:        "old-status",
				Usage:       "previous status; makes the change an UPDATE",
				Destination: &cmd.oldStatus,
			},
			&cli.StringFlag{
				Name:        "store",
				Usage:       "store id",
				Destination: &cmd.storeID,
			},
			&cli.FloatFlag{
				Name:        "amount",
				Usage:       "order total",
				Destination: &cmd.amount,
			},
			cmd.input.Flag(),
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *EmitCmd) run(ctx context.Context, c *cli.Command) error {
	change, err := cmd.change(c)
	if err != nil {
		return err
	}

	cfg := cmd.flags.Config
	target := cmd.to
	if target == "" {
		target = defaultEmitTarget(cfg.Feed.Source)
	}

	out := c.Root().Writer
	switch target {
	case emitSpool:
		path, err := spool.Write(cfg.SpoolDir(), change)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "wrote %s\n", path)

	case emitRedis:
		if cfg.Feed.Redis.URL == "" {
			return errors.New("feed.redis.url is not configured")
		}
		client, err := stores.NewRedisClient(ctx, stores.RedisOptions{URL: cfg.Feed.Redis.URL})
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		if err := redisfeed.Publish(ctx, client, cfg.Feed.Redis.Channel, change); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "published on %s\n", cfg.Feed.Redis.Channel)

	case emitPostgres:
		if cfg.Feed.Postgres.DSN == "" {
			return errors.New("feed.postgres.dsn is not configured")
		}
		conn, err := pgx.Connect(ctx, cfg.Feed.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer func() { _ = conn.Close(context.WithoutCancel(ctx)) }()
		if err := pgnotify.Notify(ctx, conn, cfg.Feed.Postgres.Channel, change); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "notified %s\n", cfg.Feed.Postgres.Channel)

	case emitAPI:
		server, err := cmd.apiURL(ctx)
		if err != nil {
			return err
		}
		client, err := api.NewClient(server)
		if err != nil {
			return err
		}
		n, ok, err := client.Ingest(ctx, change)
		if err != nil {
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(out, "change accepted but produced no notification")
			return nil
		}
		_, _ = fmt.Fprintf(out, "%s: %s\n", n.Title, n.Message)

	default:
		return fmt.Errorf("unknown target %q (expected spool, redis, postgres or api)", target)
	}
	return nil
}

// change builds the change from the input file or from flags.
func (cmd *EmitCmd) change(c *cli.Command) (feed.Change, error) {
	if c.IsSet("file") {
		raw, err := cmd.input.Raw()
		if err != nil {
			return feed.Change{}, err
		}
		change, err := feed.DecodePayload(raw)
		if err != nil {
			return feed.Change{}, err
		}
		return change, validate.Change(change)
	}

	filter := cmd.flags.Config.Filter()
	id := cmd.id
	if id == "" {
		id = uuid.NewString()
	}

	row := feed.Row{
		ID:        feed.Text(id),
		OrderCode: feed.Text(cmd.code),
		Status:    feed.Text(strings.ToUpper(cmd.status)),
		StoreID:   feed.Text(cmd.storeID),
	}
	if c.IsSet("amount") {
		a := feed.Amount(cmd.amount)
		row.TotalAmount = &a
	}

	kind := feed.ParseKind(cmd.kind)
	if kind == "" {
		kind = feed.KindInsert
		if cmd.oldStatus != "" {
			kind = feed.KindUpdate
		}
	}

	change := feed.Change{Kind: kind, Schema: filter.Schema, Table: filter.Table, New: row}
	if cmd.oldStatus != "" {
		old := row
		old.Status = feed.Text(strings.ToUpper(cmd.oldStatus))
		change.Old = &old
	}

	switch change.Kind {
	case feed.KindInsert, feed.KindUpdate:
	default:
		return feed.Change{}, fmt.Errorf("unsupported type %q (expected INSERT or UPDATE)", cmd.kind)
	}
	if change.Kind == feed.KindUpdate && change.Old == nil {
		return feed.Change{}, errors.New("UPDATE needs --old-status")
	}
	return change, nil
}

func (cmd *EmitCmd) apiURL(ctx context.Context) (string, error) {
	if cmd.server != "" {
		return cmd.server, nil
	}
	cfg := cmd.flags.Config
	if cfg.TUI.Server != "" {
		return cfg.TUI.Server, nil
	}

	store, err := stores.Open(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	if hb, ok := runningServer(ctx, store.KV); ok {
		return "http://" + hb.Addr, nil
	}
	return "http://" + cfg.Server.Addr, nil
}

func defaultEmitTarget(source string) string {
	switch source {
	case config.SourceSpool:
		return emitSpool
	case config.SourceRedis:
		return emitRedis
	case config.SourcePostgres:
		return emitPostgres
	default:
		return emitAPI
	}
}
