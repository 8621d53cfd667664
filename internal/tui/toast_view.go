package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/orderbell/internal/core/status"
	"github.com/hay-kot/orderbell/internal/core/styles"
	"github.com/hay-kot/orderbell/internal/core/toast"
)

const (
	toastTickInterval = 250 * time.Millisecond
	toastWidth        = 44
)

// renderToasts stacks the active toasts vertically, oldest at top.
func renderToasts(toasts []toast.Toast, now time.Time) string {
	if len(toasts) == 0 {
		return ""
	}

	rendered := make([]string, 0, len(toasts))
	for _, t := range toasts {
		rendered = append(rendered, renderToast(t, now))
	}
	return strings.Join(rendered, "\n")
}

func renderToast(t toast.Toast, now time.Time) string {
	n := t.Notification
	meta := status.Resolve(n.Status)

	left := max(t.ExpiresAt.Sub(now).Round(time.Second), 0)
	title := lipgloss.JoinHorizontal(lipgloss.Top,
		styles.HeaderStyle.Render(n.Title),
		" ",
		styles.MutedStyle.Render(left.String()),
	)

	body := n.Message
	if n.OrderCode != "" {
		body = n.OrderCode + "  " + body
	}

	return styles.ToastStyle(meta.Tone).
		Width(toastWidth).
		Render(title + "\n" + body)
}

// overlayToasts places the toast stack under body, aligned right.
func overlayToasts(body, toasts string, width int) string {
	if toasts == "" {
		return body
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		body,
		lipgloss.PlaceHorizontal(width, lipgloss.Right, toasts),
	)
}
