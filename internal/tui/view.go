package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hay-kot/orderbell/internal/core/notify"
	"github.com/hay-kot/orderbell/internal/core/styles"
	"github.com/hay-kot/orderbell/internal/core/subscriber"
)

// rows taken by the header, the blank line under it and the help footer
const chromeHeight = 4

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderList())

	footer := styles.HelpStyle.Render(m.help.View(m.keys))
	switch {
	case m.confirmingClear:
		footer = styles.HelpStyle.Render(lipgloss.NewStyle().Foreground(styles.CurrentPalette.Warning).
			Render(fmt.Sprintf("clear all %d notifications? (y/n)", len(m.snap.Notifications))))
	case m.lastErr != nil:
		footer = styles.HelpStyle.Render(lipgloss.NewStyle().Foreground(styles.CurrentPalette.Error).
			Render("error: "+m.lastErr.Error())) + "\n" + footer
	}
	b.WriteString("\n")
	b.WriteString(footer)

	return overlayToasts(b.String(), renderToasts(m.snap.Toasts, m.now), m.width)
}

func (m Model) renderHeader() string {
	title := styles.HeaderStyle.Render("orderbell")
	unread := styles.UnreadStyle.Render(fmt.Sprintf("%d unread", m.snap.Unread))

	parts := []string{title, unread, m.renderConnection()}
	if m.opts.Source != "" {
		parts = append(parts, styles.MutedStyle.Render(m.opts.Source))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderConnection() string {
	if m.streamClosed {
		return lipgloss.NewStyle().Foreground(styles.CurrentPalette.Error).Render("● stream closed")
	}

	c := m.snap.Connection
	var (
		color lipgloss.Color
		label = string(c.State)
	)
	switch c.State {
	case subscriber.StateReady:
		color = styles.CurrentPalette.Success
	case subscriber.StateConnecting:
		color = styles.CurrentPalette.Warning
		if c.Reconnecting() {
			label = fmt.Sprintf("RECONNECTING #%d", c.Attempt)
		}
		return lipgloss.NewStyle().Foreground(color).Render(m.spinner.View() + " " + label)
	case subscriber.StateError:
		color = styles.CurrentPalette.Error
		if c.Error != "" {
			label += ": " + c.Error
		}
	default:
		color = styles.CurrentPalette.Muted
	}
	return lipgloss.NewStyle().Foreground(color).Render("● " + label)
}

func (m Model) renderList() string {
	list := m.snap.Notifications
	if len(list) == 0 {
		return styles.MutedStyle.Render("no notifications yet")
	}

	rows := m.listHeight()
	end := len(list)
	if rows > 0 {
		end = min(m.offset+rows, len(list))
	}

	lines := make([]string, 0, end-m.offset)
	for i := m.offset; i < end; i++ {
		lines = append(lines, m.renderRow(list[i], i == m.cursor))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRow(n notify.Notification, selected bool) string {
	marker := " "
	if !n.Read {
		marker = lipgloss.NewStyle().Foreground(styles.CurrentPalette.Primary).Render("●")
	}

	text := n.Title + "  " + n.Message
	if !n.Read {
		text = styles.UnreadStyle.Render(text)
	}

	row := strings.Join([]string{
		marker,
		lipgloss.NewStyle().Width(10).Render(n.OrderCode),
		styles.Badge(n.Status),
		text,
		styles.MutedStyle.Render(humanize.RelTime(n.CreatedAt, m.now, "ago", "from now")),
	}, " ")

	if selected {
		return styles.SelectedStyle.Render(row)
	}
	return row
}

func (m Model) listHeight() int {
	if m.height == 0 {
		return 0
	}
	used := chromeHeight
	if toasts := renderToasts(m.snap.Toasts, m.now); toasts != "" {
		used += lipgloss.Height(toasts)
	}
	return max(m.height-used, 1)
}

func (m Model) selected() (notify.Notification, bool) {
	list := m.snap.Notifications
	if m.cursor < 0 || m.cursor >= len(list) {
		return notify.Notification{}, false
	}
	return list[m.cursor], true
}
