package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/orderbell/internal/core/notify"
	"github.com/hay-kot/orderbell/internal/core/subscriber"
	"github.com/hay-kot/orderbell/internal/core/toast"
	"github.com/hay-kot/orderbell/internal/core/view"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) MarkRead(_ context.Context, id string) (bool, error) {
	f.record("read:" + id)
	return true, nil
}

func (f *fakeBackend) MarkAllRead(context.Context) (int, error) {
	f.record("read-all")
	return 1, nil
}

func (f *fakeBackend) Clear(context.Context) error {
	f.record("clear")
	return nil
}

func (f *fakeBackend) DismissToast(_ context.Context, id string) (bool, error) {
	f.record("dismiss:" + id)
	return true, nil
}

func snapshot(version uint64, ns ...notify.Notification) *view.Snapshot {
	s := view.Empty()
	s.Version = version
	s.Notifications = ns
	for _, n := range ns {
		if !n.Read {
			s.Unread++
		}
	}
	s.Connection = subscriber.Status{State: subscriber.StateReady}
	return s
}

func notification(id, code, st string, read bool) notify.Notification {
	return notify.Notification{
		ID:        id,
		Type:      notify.TypeOrderCreated,
		OrderCode: code,
		Status:    st,
		Title:     notify.TitleOrderCreated,
		Message:   code + " created",
		CreatedAt: epoch.Add(-2 * time.Minute),
		Read:      read,
	}
}

func newModel(t *testing.T) (Model, *fakeBackend) {
	t.Helper()
	b := &fakeBackend{}
	m := New(context.Background(), b, make(chan *view.Snapshot), Options{Now: func() time.Time { return epoch }})
	return m, b
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func press(t *testing.T, m Model, keys string) (Model, tea.Cmd) {
	t.Helper()
	return update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)})
}

// exec runs cmd and feeds the result back into the model.
func exec(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	return m
}

func TestModel_applies_newer_snapshots_only(t *testing.T) {
	m, _ := newModel(t)

	m, cmd := update(t, m, snapshotMsg{snap: snapshot(3, notification("a", "A1", "NEW", false))})
	assert.NotNil(t, cmd, "stream reader is re-armed")
	assert.Equal(t, uint64(3), m.snap.Version)

	m, _ = update(t, m, snapshotMsg{snap: snapshot(2)})
	assert.Equal(t, uint64(3), m.snap.Version, "stale snapshot ignored")
	assert.Len(t, m.snap.Notifications, 1)
}

func TestModel_navigation_and_mark_read(t *testing.T) {
	m, b := newModel(t)
	m, _ = update(t, m, snapshotMsg{snap: snapshot(1,
		notification("a", "A1", "NEW", false),
		notification("b", "A2", "SHIPPED", false),
	)})

	m, _ = press(t, m, "j")
	assert.Equal(t, 1, m.cursor)
	m, _ = press(t, m, "j")
	assert.Equal(t, 1, m.cursor, "cursor stops at the last row")

	m, cmd := press(t, m, "r")
	m = exec(t, m, cmd)
	assert.NoError(t, m.lastErr)
	assert.Equal(t, []string{"read:b"}, b.calls)

	m, _ = press(t, m, "k")
	assert.Equal(t, 0, m.cursor)
}

func TestModel_mark_read_skips_read_rows(t *testing.T) {
	m, b := newModel(t)
	m, _ = update(t, m, snapshotMsg{snap: snapshot(1, notification("a", "A1", "NEW", true))})

	_, cmd := press(t, m, "r")
	assert.Nil(t, cmd)
	assert.Empty(t, b.calls)
}

func TestModel_mark_all_read(t *testing.T) {
	m, b := newModel(t)
	m, _ = update(t, m, snapshotMsg{snap: snapshot(1, notification("a", "A1", "NEW", false))})

	_, cmd := press(t, m, "R")
	exec(t, m, cmd)
	assert.Equal(t, []string{"read-all"}, b.calls)
}

func TestModel_clear_needs_confirmation(t *testing.T) {
	m, b := newModel(t)
	m, _ = update(t, m, snapshotMsg{snap: snapshot(1, notification("a", "A1", "NEW", false))})

	m, cmd := press(t, m, "C")
	assert.Nil(t, cmd)
	assert.True(t, m.confirmingClear)
	assert.Contains(t, m.View(), "clear all 1 notifications?")

	m, _ = press(t, m, "n")
	assert.False(t, m.confirmingClear)
	assert.Empty(t, b.calls)

	m, _ = press(t, m, "C")
	m, cmd = press(t, m, "y")
	exec(t, m, cmd)
	assert.Equal(t, []string{"clear"}, b.calls)
}

func TestModel_dismiss_newest_toast(t *testing.T) {
	m, b := newModel(t)
	s := snapshot(1, notification("b", "A2", "NEW", false), notification("a", "A1", "NEW", false))
	s.Toasts = []toast.Toast{
		{Notification: s.Notifications[1], ShownAt: epoch, ExpiresAt: epoch.Add(5 * time.Second)},
		{Notification: s.Notifications[0], ShownAt: epoch, ExpiresAt: epoch.Add(5 * time.Second)},
	}
	m, _ = update(t, m, snapshotMsg{snap: s})

	_, cmd := press(t, m, "x")
	exec(t, m, cmd)
	assert.Equal(t, []string{"dismiss:b"}, b.calls)
}

func TestModel_stream_closed(t *testing.T) {
	m, _ := newModel(t)
	m, _ = update(t, m, streamClosedMsg{})
	assert.Contains(t, m.View(), "stream closed")
}

func TestModel_quit(t *testing.T) {
	m, _ := newModel(t)
	_, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestView_renders_rows_and_toasts(t *testing.T) {
	m, _ := newModel(t)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})
	s := snapshot(1, notification("a", "A100", "SHIPPED", false))
	s.Toasts = []toast.Toast{{Notification: s.Notifications[0], ShownAt: epoch, ExpiresAt: epoch.Add(4 * time.Second)}}
	m, _ = update(t, m, snapshotMsg{snap: s})

	out := m.View()
	assert.Contains(t, out, "1 unread")
	assert.Contains(t, out, "READY")
	assert.Contains(t, out, "A100")
	assert.Contains(t, out, "배송중")
	assert.Contains(t, out, "2 minutes ago")
	assert.Contains(t, out, "4s")
}

func TestView_reconnecting(t *testing.T) {
	m, _ := newModel(t)
	s := snapshot(1)
	s.Connection = subscriber.Status{State: subscriber.StateConnecting, Attempt: 3}
	m, _ = update(t, m, snapshotMsg{snap: s})

	assert.Contains(t, m.View(), "RECONNECTING #3")
}

func TestView_empty(t *testing.T) {
	m, _ := newModel(t)
	assert.Contains(t, m.View(), "no notifications yet")
}

func TestClampCursor_scrolls(t *testing.T) {
	m, _ := newModel(t)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: chromeHeight + 3})

	var ns []notify.Notification
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		ns = append(ns, notification(id, id, "NEW", true))
	}
	m, _ = update(t, m, snapshotMsg{snap: snapshot(1, ns...)})

	for range 5 {
		m, _ = press(t, m, "j")
	}
	assert.Equal(t, 5, m.cursor)
	assert.Equal(t, 5-m.listHeight()+1, m.offset)

	m, _ = update(t, m, snapshotMsg{snap: snapshot(2, ns[:2]...)})
	assert.Equal(t, 1, m.cursor, "cursor clamped to the shorter list")
}
