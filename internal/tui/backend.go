package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hay-kot/orderbell/internal/core/view"
)

// Backend is the command surface the TUI drives. Both the in-process engine
// and the API client implement it.
type Backend interface {
	MarkRead(ctx context.Context, id string) (bool, error)
	MarkAllRead(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	DismissToast(ctx context.Context, id string) (bool, error)
}

type snapshotMsg struct{ snap *view.Snapshot }

type streamClosedMsg struct{}

type commandDoneMsg struct {
	action string
	err    error
}

// waitForSnapshot blocks on the next snapshot. It is re-armed after every
// delivery so the program always has exactly one reader on the channel.
func waitForSnapshot(ch <-chan *view.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return snapshotMsg{snap: s}
	}
}

func runCommand(ctx context.Context, action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg{action: action, err: fn(ctx)}
	}
}
