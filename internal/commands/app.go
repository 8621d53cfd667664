package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// NewApp builds the root command with every subcommand registered. The
// caller owns the Before and After hooks that populate flags.Config.
func NewApp(flags *Flags, version string) *cli.Command {
	app := &cli.Command{
		Name:      "orderbell",
		Usage:     "Real-time order notifications for the terminal",
		UsageText: "orderbell [global options] command [command options]",
		Description: `orderbell subscribes to order row changes, keeps a bounded notification
log with read state, and raises short-lived toasts for new events.

Run 'orderbell' with no arguments to open the live notification view.
Run 'orderbell serve' to run the engine behind an HTTP API.`,
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("ORDERBELL_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to stderr)",
				Sources:     cli.EnvVars("ORDERBELL_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("ORDERBELL_CONFIG"),
				Value:       DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("ORDERBELL_DATA_DIR"),
				Value:       DefaultDataDir(),
				Destination: &flags.DataDir,
			},
		},
	}

	tuiCmd := NewTuiCmd(flags)

	app = NewServeCmd(flags).Register(app)
	app = tuiCmd.Register(app)
	app = NewLogCmd(flags).Register(app)
	app = NewStatusesCmd(flags).Register(app)
	app = NewEmitCmd(flags).Register(app)
	app = NewFeedCmd(flags).Register(app)
	app = NewConfigValidateCmd(flags).Register(app)

	// Register TUI flags on root command
	app.Flags = append(app.Flags, tuiCmd.Flags()...)

	// Set TUI as default action when no subcommand is provided
	app.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 {
			return fmt.Errorf("unknown command %q. Run 'orderbell --help' for usage", c.Args().First())
		}
		return tuiCmd.Run(ctx, c)
	}

	return app
}
