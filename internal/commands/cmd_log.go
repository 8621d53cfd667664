package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/orderbell/internal/api"
	"github.com/hay-kot/orderbell/internal/core/notify"
	"github.com/hay-kot/orderbell/internal/core/status"
	"github.com/hay-kot/orderbell/internal/data/stores"
	"github.com/hay-kot/orderbell/pkg/iojson"
)

// logTarget edits the log either through a running server or directly in
// storage when no server owns it.
type logTarget interface {
	List(ctx context.Context) ([]notify.Notification, error)
	MarkRead(ctx context.Context, id string) (bool, error)
	MarkAllRead(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

type LogCmd struct {
	flags *Flags

	// flags
	jsonOutput bool
	unreadOnly bool
	limit      int
	yes        bool
}

// NewLogCmd creates a new log command
func NewLogCmd(flags *Flags) *LogCmd {
	return &LogCmd{flags: flags}
}

// Register adds the log command to the application
func (cmd *LogCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "log",
		Usage: "Inspect and edit the notification log",
		Description: `Reads the persisted notification log. When 'orderbell serve' is running the
commands go through its API so the live engine stays authoritative.`,
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List notifications, newest first",
				UsageText: "orderbell log ls [--unread] [--json] [--limit n]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "output as JSON lines",
						Destination: &cmd.jsonOutput,
					},
					&cli.BoolFlag{
						Name:        "unread",
						Aliases:     []string{"u"},
						Usage:       "only unread notifications",
						Destination: &cmd.unreadOnly,
					},
					&cli.IntFlag{
						Name:        "limit",
						Aliases:     []string{"n"},
						Usage:       "show at most n notifications (0 = all)",
						Destination: &cmd.limit,
					},
				},
				Action: cmd.runList,
			},
			{
				Name:          "read",
				Usage:         "Mark notifications read",
				UsageText:     "orderbell log read <id|prefix>...",
				ShellComplete: NotificationIDCompleter(cmd.flags),
				Action:        cmd.runRead,
			},
			{
				Name:      "read-all",
				Usage:     "Mark every notification read",
				UsageText: "orderbell log read-all",
				Action:    cmd.runReadAll,
			},
			{
				Name:      "clear",
				Usage:     "Delete every notification",
				UsageText: "orderbell log clear [--yes]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "yes",
						Aliases:     []string{"y"},
						Usage:       "skip the confirmation prompt",
						Destination: &cmd.yes,
					},
				},
				Action: cmd.runClear,
			},
		},
	})

	return app
}

func (cmd *LogCmd) runList(ctx context.Context, c *cli.Command) error {
	target, err := openLogTarget(ctx, cmd.flags)
	if err != nil {
		return err
	}
	defer func() { _ = target.Close() }()

	list, err := target.List(ctx)
	if err != nil {
		return err
	}
	list = filterLog(list, cmd.unreadOnly, cmd.limit)

	out := c.Root().Writer
	if cmd.jsonOutput {
		for _, n := range list {
			if err := iojson.WriteLine(out, n); err != nil {
				return fmt.Errorf("encode notification: %w", err)
			}
		}
		return nil
	}

	if len(list) == 0 {
		fmt.Fprintln(os.Stderr, "No notifications")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tORDER\tSTATUS\tTITLE\tWHEN\tREAD")
	for _, n := range list {
		read := ""
		if n.Read {
			read = "✓"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(n.ID), n.OrderCode, status.Resolve(n.Status).Label, n.Title,
			humanize.RelTime(n.CreatedAt, now, "ago", "from now"), read)
	}
	return w.Flush()
}

func (cmd *LogCmd) runRead(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() == 0 {
		return fmt.Errorf("at least one notification id is required")
	}

	target, err := openLogTarget(ctx, cmd.flags)
	if err != nil {
		return err
	}
	defer func() { _ = target.Close() }()

	list, err := target.List(ctx)
	if err != nil {
		return err
	}

	out := c.Root().Writer
	for _, arg := range c.Args().Slice() {
		id, err := resolveID(list, arg)
		if err != nil {
			return err
		}
		changed, err := target.MarkRead(ctx, id)
		if err != nil {
			return fmt.Errorf("mark %s read: %w", shortID(id), err)
		}
		if changed {
			_, _ = fmt.Fprintf(out, "marked %s read\n", shortID(id))
		} else {
			_, _ = fmt.Fprintf(out, "%s was already read\n", shortID(id))
		}
	}
	return nil
}

func (cmd *LogCmd) runReadAll(ctx context.Context, c *cli.Command) error {
	target, err := openLogTarget(ctx, cmd.flags)
	if err != nil {
		return err
	}
	defer func() { _ = target.Close() }()

	n, err := target.MarkAllRead(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "marked %d notification(s) read\n", n)
	return nil
}

func (cmd *LogCmd) runClear(ctx context.Context, c *cli.Command) error {
	target, err := openLogTarget(ctx, cmd.flags)
	if err != nil {
		return err
	}
	defer func() { _ = target.Close() }()

	list, err := target.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		_, _ = fmt.Fprintln(c.Root().Writer, "log is already empty")
		return nil
	}

	if !cmd.yes {
		confirmed := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Delete all %d notifications?", len(list))).
			Description("This cannot be undone.").
			Affirmative("Delete").
			Negative("Cancel").
			Value(&confirmed).
			Run()
		if errors.Is(err, huh.ErrUserAborted) || (err == nil && !confirmed) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("confirm: %w", err)
		}
	}

	if err := target.Clear(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "cleared %d notification(s)\n", len(list))
	return nil
}

// NotificationIDCompleter suggests ids of unread notifications as
// positional completions.
func NotificationIDCompleter(flags *Flags) cli.ShellCompleteFunc {
	return func(ctx context.Context, cmd *cli.Command) {
		// Delegate to default flag completion when typing a flag
		if args := cmd.Args(); args.Present() {
			last := args.Slice()[args.Len()-1]
			if len(last) > 0 && last[0] == '-' {
				cli.DefaultCompleteWithFlags(ctx, cmd)
				return
			}
		}
		if flags.Config == nil {
			return
		}

		target, err := openLogTarget(ctx, flags)
		if err != nil {
			return
		}
		defer func() { _ = target.Close() }()

		list, err := target.List(ctx)
		if err != nil {
			return
		}
		w := cmd.Root().Writer
		for _, n := range filterLog(list, true, 0) {
			_, _ = fmt.Fprintln(w, n.ID)
		}
	}
}

func filterLog(list []notify.Notification, unreadOnly bool, limit int) []notify.Notification {
	out := list
	if unreadOnly {
		out = make([]notify.Notification, 0, len(list))
		for _, n := range list {
			if !n.Read {
				out = append(out, n)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// resolveID expands a unique id prefix or suffix. ls prints the suffix.
func resolveID(list []notify.Notification, arg string) (string, error) {
	var matches []string
	for _, n := range list {
		if n.ID == arg {
			return n.ID, nil
		}
		if strings.HasPrefix(n.ID, arg) || strings.HasSuffix(n.ID, arg) {
			matches = append(matches, n.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no notification matches %q", arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q is ambiguous (%d matches)", arg, len(matches))
	}
}

// shortID trims a UUID to its distinguishing tail.
func shortID(id string) string {
	if i := strings.LastIndexByte(id, '-'); i >= 0 && len(id)-i > 1 {
		return id[i+1:]
	}
	return id
}

func openLogTarget(ctx context.Context, flags *Flags) (logTarget, error) {
	store, err := stores.Open(ctx, flags.Config)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	if hb, ok := runningServer(ctx, store.KV); ok {
		_ = store.Close()
		client, err := api.NewClient("http://" + hb.Addr)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("addr", hb.Addr).Msg("editing log through running server")
		return remoteLog{client}, nil
	}

	local := &localLog{store: store}
	local.log = openLog(ctx, flags.Config, store, func(err error) { local.err = err })
	return local, nil
}

// localLog surfaces persistence failures that the engine would only log.
type localLog struct {
	store *stores.Backend
	log   *notify.Log
	err   error
}

func (l *localLog) persisted() error {
	err := l.err
	l.err = nil
	if err != nil {
		return fmt.Errorf("save log: %w", err)
	}
	return nil
}

func (l *localLog) List(context.Context) ([]notify.Notification, error) { return l.log.List(), nil }

func (l *localLog) MarkRead(ctx context.Context, id string) (bool, error) {
	changed := l.log.MarkRead(ctx, id)
	return changed, l.persisted()
}

func (l *localLog) MarkAllRead(ctx context.Context) (int, error) {
	n := l.log.MarkAllRead(ctx)
	return n, l.persisted()
}

func (l *localLog) Clear(ctx context.Context) error {
	l.log.Clear(ctx)
	return l.persisted()
}

func (l *localLog) Close() error { return l.store.Close() }

type remoteLog struct{ *api.Client }

func (r remoteLog) List(ctx context.Context) ([]notify.Notification, error) {
	list, _, err := r.Notifications(ctx)
	return list, err
}

func (remoteLog) Close() error { return nil }
