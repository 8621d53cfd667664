package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/orderbell/internal/core/status"
	"github.com/hay-kot/orderbell/pkg/iojson"
)

type StatusesCmd struct {
	flags *Flags

	// flags
	jsonOutput bool
	plain      bool
}

// NewStatusesCmd creates a new statuses command
func NewStatusesCmd(flags *Flags) *StatusesCmd {
	return &StatusesCmd{flags: flags}
}

// Register adds the statuses command to the application
func (cmd *StatusesCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "statuses",
		Usage:     "Show the order status registry",
		UsageText: "orderbell statuses [--json | --plain]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON",
				Destination: &cmd.jsonOutput,
			},
			&cli.BoolFlag{
				Name:        "plain",
				Usage:       "print the markdown source without rendering",
				Destination: &cmd.plain,
			},
		},
		Action: cmd.run,
	})
	return app
}

type statusRow struct {
	Code string `json:"code"`
	status.Meta
}

func (cmd *StatusesCmd) run(_ context.Context, c *cli.Command) error {
	out := c.Root().Writer
	codes := status.Codes()

	if cmd.jsonOutput {
		rows := make([]statusRow, len(codes))
		for i, code := range codes {
			rows[i] = statusRow{Code: string(code), Meta: status.Resolve(string(code))}
		}
		return iojson.Write(out, rows)
	}

	md := statusMarkdown(codes)
	if cmd.plain {
		_, err := fmt.Fprint(out, md)
		return err
	}

	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}
	rendered, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render statuses: %w", err)
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}

func statusMarkdown(codes []status.Code) string {
	var b strings.Builder
	b.WriteString("# Order statuses\n\n")
	b.WriteString("| Code | Label | Tone | Description |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, code := range codes {
		m := status.Resolve(string(code))
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", code, m.Label, m.Tone, m.Description)
	}
	b.WriteString("\nUnknown codes are shown as-is with the info tone.\n")
	return b.String()
}
