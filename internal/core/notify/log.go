package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hay-kot/orderbell/internal/core/kv"
)

const (
	// DefaultMaxSize is the number of notifications kept in the log.
	DefaultMaxSize = 150
	// DefaultKey is the KV key the log is persisted under.
	DefaultKey = "notifications:log"

	persistVersion = 1
)

// envelope is the persisted layout of the log.
type envelope struct {
	Version       int            `json:"version"`
	Notifications []Notification `json:"notifications"`
}

// Log is the authoritative notification log: newest first, capped, and
// persisted on every mutation. A Log is owned by a single goroutine; it
// performs no locking of its own.
type Log struct {
	store   kv.KV
	key     string
	maxSize int
	items   []Notification
	logger  zerolog.Logger

	onPersistError func(error)
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithMaxSize sets the log capacity. Values below 1 are ignored.
func WithMaxSize(n int) LogOption {
	return func(l *Log) {
		if n > 0 {
			l.maxSize = n
		}
	}
}

// WithKey sets the KV key the log is persisted under.
func WithKey(key string) LogOption {
	return func(l *Log) {
		if key != "" {
			l.key = key
		}
	}
}

// WithLogger sets the logger used for persistence diagnostics.
func WithLogger(logger zerolog.Logger) LogOption {
	return func(l *Log) { l.logger = logger }
}

// WithPersistErrorHook registers fn to be called on every failed write.
func WithPersistErrorHook(fn func(error)) LogOption {
	return func(l *Log) { l.onPersistError = fn }
}

// NewLog creates an empty log persisted to store. A nil store keeps the log
// in memory only.
func NewLog(store kv.KV, opts ...LogOption) *Log {
	l := &Log{
		store:   store,
		key:     DefaultKey,
		maxSize: DefaultMaxSize,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MaxSize returns the log capacity.
func (l *Log) MaxSize() int { return l.maxSize }

// Key returns the KV key the log is persisted under.
func (l *Log) Key() string { return l.key }

// Hydrate replaces the in-memory log with the persisted one. Missing or
// malformed data leaves the log empty; the error is logged, not returned.
// It returns the number of notifications loaded.
func (l *Log) Hydrate(ctx context.Context) int {
	l.items = nil
	if l.store == nil {
		return 0
	}

	var raw json.RawMessage
	if err := l.store.Get(ctx, l.key, &raw); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			l.logger.Debug().Str("key", l.key).Msg("no persisted notification log")
		} else {
			l.logger.Warn().Err(err).Str("key", l.key).Msg("failed to read notification log, starting empty")
		}
		return 0
	}

	items, err := Decode(raw)
	if err != nil {
		l.logger.Warn().Err(err).Str("key", l.key).Msg("persisted notification log is malformed, starting empty")
		return 0
	}

	if len(items) > l.maxSize {
		items = items[:l.maxSize]
	}
	l.items = items
	return len(items)
}

// Append prepends n and trims the tail down to the capacity. It returns the
// number of evicted notifications. No deduplication is performed.
func (l *Log) Append(ctx context.Context, n Notification) int {
	items := make([]Notification, 0, min(len(l.items)+1, l.maxSize))
	items = append(items, n.Clone())
	items = append(items, l.items...)

	evicted := 0
	if len(items) > l.maxSize {
		evicted = len(items) - l.maxSize
		items = items[:l.maxSize]
	}
	l.items = items

	l.persist(ctx)
	return evicted
}

// MarkRead marks the notification with id as read. Unknown or already-read
// ids are a no-op. It reports whether anything changed.
func (l *Log) MarkRead(ctx context.Context, id string) bool {
	for i := range l.items {
		if l.items[i].ID != id {
			continue
		}
		if l.items[i].Read {
			return false
		}
		l.items[i].Read = true
		l.persist(ctx)
		return true
	}
	return false
}

// MarkAllRead marks every notification as read and returns how many changed.
func (l *Log) MarkAllRead(ctx context.Context) int {
	changed := 0
	for i := range l.items {
		if !l.items[i].Read {
			l.items[i].Read = true
			changed++
		}
	}
	if changed > 0 {
		l.persist(ctx)
	}
	return changed
}

// Clear empties the log.
func (l *Log) Clear(ctx context.Context) {
	l.items = nil
	l.persist(ctx)
}

// UnreadCount scans the log for unread notifications.
func (l *Log) UnreadCount() int {
	n := 0
	for _, item := range l.items {
		if !item.Read {
			n++
		}
	}
	return n
}

// Len returns the number of notifications in the log.
func (l *Log) Len() int { return len(l.items) }

// List returns a copy of the log, newest first.
func (l *Log) List() []Notification {
	out := make([]Notification, len(l.items))
	for i, item := range l.items {
		out[i] = item.Clone()
	}
	return out
}

func (l *Log) persist(ctx context.Context) {
	if l.store == nil {
		return
	}

	items := l.items
	if items == nil {
		items = []Notification{}
	}

	err := l.store.Set(ctx, l.key, envelope{Version: persistVersion, Notifications: items})
	if err == nil {
		return
	}

	l.logger.Warn().Err(err).Str("key", l.key).Int("count", len(items)).Msg("failed to persist notification log")
	if l.onPersistError != nil {
		l.onPersistError(err)
	}
}

// Encode serializes notifications into the persisted layout.
func Encode(items []Notification) ([]byte, error) {
	if items == nil {
		items = []Notification{}
	}
	return json.Marshal(envelope{Version: persistVersion, Notifications: items})
}

// Decode parses a persisted log. It accepts the versioned envelope and the
// bare array layout written by earlier releases.
func Decode(raw []byte) ([]Notification, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var items []Notification
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode notification array: %w", err)
		}
		return items, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode notification log: %w", err)
	}
	if env.Version > persistVersion {
		return nil, fmt.Errorf("unsupported notification log version %d", env.Version)
	}
	return env.Notifications, nil
}
