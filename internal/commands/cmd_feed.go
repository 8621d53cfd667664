package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/orderbell/internal/integration/feeds/pgnotify"
)

type FeedCmd struct {
	flags *Flags

	// flags
	printOnly bool
	dsn       string
}

// NewFeedCmd creates a new feed command
func NewFeedCmd(flags *Flags) *FeedCmd {
	return &FeedCmd{flags: flags}
}

// Register adds the feed command to the application
func (cmd *FeedCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "feed",
		Usage: "Change feed setup",
		Commands: []*cli.Command{
			{
				Name:      "install-trigger",
				Usage:     "Install the Postgres trigger that feeds LISTEN/NOTIFY",
				UsageText: "orderbell feed install-trigger [--dsn url] [--print]",
				Description: `Creates (or replaces) a trigger function on the configured orders table
that sends every INSERT and UPDATE to feed.postgres.channel.

Use --print to review or apply the SQL yourself.`,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "print",
						Usage:       "print the SQL instead of executing it",
						Destination: &cmd.printOnly,
					},
					&cli.StringFlag{
						Name:        "dsn",
						Usage:       "postgres url (overrides feed.postgres.dsn)",
						Sources:     cli.EnvVars("ORDERBELL_POSTGRES_DSN"),
						Destination: &cmd.dsn,
					},
				},
				Action: cmd.runInstallTrigger,
			},
		},
	})
	return app
}

func (cmd *FeedCmd) runInstallTrigger(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	channel := cfg.Feed.Postgres.Channel
	filter := cfg.Filter()

	if cmd.printOnly {
		_, err := fmt.Fprintln(c.Root().Writer, pgnotify.TriggerSQL(channel, filter))
		return err
	}

	dsn := cmd.dsn
	if dsn == "" {
		dsn = cfg.Feed.Postgres.DSN
	}
	if dsn == "" {
		return errors.New("no postgres dsn: set feed.postgres.dsn or pass --dsn")
	}

	if err := pgnotify.InstallTrigger(ctx, dsn, channel, filter); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "trigger installed on %s.%s, notifying %q\n", filter.Schema, filter.Table, channel)
	return nil
}
