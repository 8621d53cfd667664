// Package tui is the terminal render layer: a live notification log with a
// toast stack and the feed connection state, driven by engine snapshots.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hay-kot/orderbell/internal/core/view"
)

// Options configures the TUI.
type Options struct {
	// Source names the backend in the header, such as "embedded" or a URL.
	Source string
	Now    func() time.Time
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(toastTickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model is the Bubble Tea model for the notification TUI.
type Model struct {
	ctx     context.Context
	backend Backend
	snaps   <-chan *view.Snapshot
	opts    Options

	snap    *view.Snapshot
	cursor  int
	offset  int
	width   int
	height  int
	now     time.Time
	keys    keyMap
	help    help.Model
	spinner spinner.Model

	confirmingClear bool
	streamClosed    bool
	lastErr         error
}

// New returns a model that renders snapshots received on snaps and sends
// commands to backend.
func New(ctx context.Context, backend Backend, snaps <-chan *view.Snapshot, opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	return Model{
		ctx:     ctx,
		backend: backend,
		snaps:   snaps,
		opts:    opts,
		snap:    view.Empty(),
		now:     opts.Now(),
		keys:    defaultKeys(),
		help:    help.New(),
		spinner: sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.snaps), tick(), m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.clampCursor()
		return m, nil

	case snapshotMsg:
		// snapshots can arrive out of order across reconnects
		if msg.snap != nil && (msg.snap.Version >= m.snap.Version || msg.snap.Version == 0) {
			m.snap = msg.snap
			m.clampCursor()
		}
		return m, waitForSnapshot(m.snaps)

	case streamClosedMsg:
		m.streamClosed = true
		return m, nil

	case commandDoneMsg:
		m.lastErr = msg.err
		return m, nil

	case tickMsg:
		m.now = m.opts.Now()
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirmingClear {
		switch {
		case key.Matches(msg, m.keys.Confirm):
			m.confirmingClear = false
			return m, runCommand(m.ctx, "clear", m.backend.Clear)
		case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.Quit):
			m.confirmingClear = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		m.clampCursor()

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.snap.Notifications)-1 {
			m.cursor++
		}
		m.clampCursor()

	case key.Matches(msg, m.keys.Read):
		n, ok := m.selected()
		if !ok || n.Read {
			return m, nil
		}
		id := n.ID
		return m, runCommand(m.ctx, "read", func(ctx context.Context) error {
			_, err := m.backend.MarkRead(ctx, id)
			return err
		})

	case key.Matches(msg, m.keys.ReadAll):
		if m.snap.Unread == 0 {
			return m, nil
		}
		return m, runCommand(m.ctx, "read-all", func(ctx context.Context) error {
			_, err := m.backend.MarkAllRead(ctx)
			return err
		})

	case key.Matches(msg, m.keys.DismissToast):
		toasts := m.snap.Toasts
		if len(toasts) == 0 {
			return m, nil
		}
		id := toasts[len(toasts)-1].Notification.ID
		return m, runCommand(m.ctx, "dismiss", func(ctx context.Context) error {
			_, err := m.backend.DismissToast(ctx, id)
			return err
		})

	case key.Matches(msg, m.keys.Clear):
		if len(m.snap.Notifications) > 0 {
			m.confirmingClear = true
		}

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}

	return m, nil
}

func (m *Model) clampCursor() {
	n := len(m.snap.Notifications)
	if m.cursor >= n {
		m.cursor = max(n-1, 0)
	}

	rows := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if rows > 0 && m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
}

// Run starts the program and blocks until the user quits or ctx ends.
func Run(ctx context.Context, backend Backend, snaps <-chan *view.Snapshot, opts Options) error {
	p := tea.NewProgram(New(ctx, backend, snaps, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
