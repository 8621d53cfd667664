package kafkafeed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hay-kot/orderbell/internal/core/feed"
)

// Debezium operation codes.
const (
	OpCreate   = "c"
	OpUpdate   = "u"
	OpRead     = "r"
	OpDelete   = "d"
	OpTruncate = "t"
)

// ErrSkip marks a message that is well formed but carries nothing the
// engine consumes: tombstones, snapshot reads, deletes.
var ErrSkip = errors.New("skip")

type debeziumEvent struct {
	Op     string    `json:"op"`
	Before *feed.Row `json:"before"`
	After  *feed.Row `json:"after"`
	Source struct {
		Schema string `json:"schema"`
		Table  string `json:"table"`
	} `json:"source"`
	TsMs int64 `json:"ts_ms"`
}

// Decode parses a Debezium change event, with or without the outer
// {"schema":..,"payload":..} envelope produced by the JSON converter.
func Decode(value []byte) (feed.Change, error) {
	value = bytes.TrimSpace(value)
	if len(value) == 0 || bytes.Equal(value, []byte("null")) {
		return feed.Change{}, ErrSkip
	}

	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(value, &envelope); err != nil {
		return feed.Change{}, fmt.Errorf("decode debezium event: %w", err)
	}
	if len(envelope.Payload) > 0 && !bytes.Equal(envelope.Payload, []byte("null")) {
		value = envelope.Payload
	}

	var ev debeziumEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return feed.Change{}, fmt.Errorf("decode debezium event: %w", err)
	}

	var kind feed.Kind
	switch ev.Op {
	case OpCreate:
		kind = feed.KindInsert
	case OpUpdate:
		kind = feed.KindUpdate
	case OpRead, OpDelete, OpTruncate:
		return feed.Change{}, ErrSkip
	default:
		return feed.Change{}, fmt.Errorf("decode debezium event: unknown op %q", ev.Op)
	}

	if ev.After == nil {
		return feed.Change{}, errors.New("decode debezium event: missing after image")
	}

	c := feed.Change{
		Kind:   kind,
		Schema: ev.Source.Schema,
		Table:  ev.Source.Table,
		New:    *ev.After,
		Old:    ev.Before,
	}
	if ev.TsMs > 0 {
		c.ReceivedAt = time.UnixMilli(ev.TsMs).UTC()
	}
	return c, nil
}
