package feed

import (
	"encoding/json"
	"fmt"
)

// Payload is the JSON message format shared by the trigger-based feeds
// (Postgres NOTIFY, Redis pub/sub, spool files).
type Payload struct {
	Type      string `json:"type"`
	Schema    string `json:"schema,omitempty"`
	Table     string `json:"table"`
	Record    *Row   `json:"record"`
	OldRecord *Row   `json:"old_record,omitempty"`
}

// DecodePayload parses a Payload into a Change. A missing record is an
// error; a missing old_record is left for the subscriber to judge.
func DecodePayload(b []byte) (Change, error) {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Change{}, fmt.Errorf("decode change payload: %w", err)
	}
	if p.Record == nil {
		return Change{}, fmt.Errorf("decode change payload: missing record")
	}
	return Change{
		Kind:   ParseKind(p.Type),
		Schema: p.Schema,
		Table:  p.Table,
		New:    *p.Record,
		Old:    p.OldRecord,
	}, nil
}

// EncodePayload renders c in the Payload format.
func EncodePayload(c Change) ([]byte, error) {
	rec := c.New
	return json.Marshal(Payload{
		Type:      string(c.Kind),
		Schema:    c.Schema,
		Table:     c.Table,
		Record:    &rec,
		OldRecord: c.Old,
	})
}
