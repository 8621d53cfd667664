// Package feed defines the change-feed port: row-level change events for a
// table, the connection signals a feed emits, and the Source/Handle
// contract concrete feeds implement.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the kind of row change.
type Kind string

const (
	KindInsert Kind = "INSERT"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
)

// ParseKind normalizes s to a Kind. Unknown values are returned upper-cased
// as-is so callers can decide to drop them.
func ParseKind(s string) Kind {
	return Kind(strings.ToUpper(strings.TrimSpace(s)))
}

// Text is a string that also decodes from a JSON number. Upstream row ids
// arrive as either depending on the column type.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("text: expected string or number, got %s", b)
	}
	*t = Text(n.String())
	return nil
}

func (t Text) String() string { return string(t) }

// Amount is a decimal amount that decodes from a JSON number or a numeric
// string (Postgres numeric columns serialize as strings).
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		*a = Amount(f)
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = Amount(f)
	return nil
}

// Row is the subset of an orders row the engine reads.
type Row struct {
	ID          Text    `json:"id"`
	OrderCode   Text    `json:"order_code"`
	Status      Text    `json:"status"`
	StoreID     Text    `json:"store_id"`
	TotalAmount *Amount `json:"total_amount"`
}

// Amount returns the total amount as a *float64, or nil when absent.
func (r Row) Amount() *float64 {
	if r.TotalAmount == nil {
		return nil
	}
	v := float64(*r.TotalAmount)
	return &v
}

// Change is one row change delivered by a feed. Old is set for updates
// when the feed provides the previous row image.
type Change struct {
	Kind       Kind      `json:"kind"`
	Schema     string    `json:"schema,omitempty"`
	Table      string    `json:"table"`
	New        Row       `json:"new"`
	Old        *Row      `json:"old,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Filter selects the changes a subscription receives.
type Filter struct {
	Schema string
	Table  string
}

// DefaultFilter subscribes to the public.orders table.
var DefaultFilter = Filter{Schema: "public", Table: "orders"}

// Matches reports whether c passes the filter. Empty filter fields match
// anything, and an empty schema on the change is treated as a match.
func (f Filter) Matches(c Change) bool {
	if f.Table != "" && !strings.EqualFold(f.Table, c.Table) {
		return false
	}
	if f.Schema != "" && c.Schema != "" && !strings.EqualFold(f.Schema, c.Schema) {
		return false
	}
	return true
}

// SignalKind is a connection lifecycle event.
type SignalKind string

const (
	// SignalConnecting is sent before each connection attempt.
	SignalConnecting SignalKind = "CONNECTING"
	// SignalSubscribed is sent once the subscription is live.
	SignalSubscribed SignalKind = "SUBSCRIBED"
	// SignalDisconnected is sent when a live subscription drops.
	SignalDisconnected SignalKind = "DISCONNECTED"
	// SignalFailed is sent when an attempt fails before becoming live.
	SignalFailed SignalKind = "FAILED"
	// SignalClosed is sent once, after the handle is closed.
	SignalClosed SignalKind = "CLOSED"
)

// Signal reports a connection lifecycle event. Attempt counts consecutive
// attempts since the last successful subscription, starting at 0.
type Signal struct {
	Kind    SignalKind
	Attempt int
	Err     error
	At      time.Time
}

// Source opens subscriptions to a change feed.
type Source interface {
	Subscribe(ctx context.Context, filter Filter) (Handle, error)
}

// Handle is a live subscription. Both channels are closed after Close
// returns. Close is idempotent and cancels any pending reconnect.
type Handle interface {
	Changes() <-chan Change
	Signals() <-chan Signal
	Close() error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, filter Filter) (Handle, error)

func (f SourceFunc) Subscribe(ctx context.Context, filter Filter) (Handle, error) {
	return f(ctx, filter)
}
