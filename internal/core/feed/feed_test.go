package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		raw  string
		want Text
	}{
		{raw: `"ord-1"`, want: "ord-1"},
		{raw: `42`, want: "42"},
		{raw: `9007199254740993`, want: "9007199254740993"},
		{raw: `null`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var got Text
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &got))
			assert.Equal(t, tt.want, got)
		})
	}

	var bad Text
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &bad))
}

func TestAmount_UnmarshalJSON(t *testing.T) {
	var row Row
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"total_amount":"12500.50"}`), &row))
	require.NotNil(t, row.Amount())
	assert.InDelta(t, 12500.50, *row.Amount(), 0.001)

	row = Row{}
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"total_amount":3000}`), &row))
	assert.InDelta(t, 3000.0, *row.Amount(), 0.001)

	row = Row{}
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"total_amount":null}`), &row))
	assert.Nil(t, row.Amount())

	assert.Error(t, json.Unmarshal([]byte(`{"total_amount":"abc"}`), &row))
}

func TestFilter_Matches(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		change Change
		want   bool
	}{
		{name: "same table", filter: DefaultFilter, change: Change{Table: "orders"}, want: true},
		{name: "table case", filter: DefaultFilter, change: Change{Table: "ORDERS"}, want: true},
		{name: "other table", filter: DefaultFilter, change: Change{Table: "products"}, want: false},
		{name: "other schema", filter: DefaultFilter, change: Change{Schema: "audit", Table: "orders"}, want: false},
		{name: "empty change schema", filter: DefaultFilter, change: Change{Table: "orders"}, want: true},
		{name: "empty filter", filter: Filter{}, change: Change{Schema: "x", Table: "y"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.change))
		})
	}
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindInsert, ParseKind(" insert "))
	assert.Equal(t, KindUpdate, ParseKind("UPDATE"))
	assert.Equal(t, Kind("TRUNCATE"), ParseKind("truncate"))
}

func TestDecodePayload(t *testing.T) {
	c, err := DecodePayload([]byte(`{
		"type": "UPDATE",
		"schema": "public",
		"table": "orders",
		"record": {"id": 7, "order_code": "ORD-7", "status": "SHIPPED", "store_id": "s1", "total_amount": "9900"},
		"old_record": {"id": 7, "order_code": "ORD-7", "status": "PROCESSING"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, KindUpdate, c.Kind)
	assert.Equal(t, "orders", c.Table)
	assert.Equal(t, Text("7"), c.New.ID)
	assert.Equal(t, Text("SHIPPED"), c.New.Status)
	require.NotNil(t, c.Old)
	assert.Equal(t, Text("PROCESSING"), c.Old.Status)
	assert.InDelta(t, 9900.0, *c.New.Amount(), 0.001)
}

func TestDecodePayload_errors(t *testing.T) {
	_, err := DecodePayload([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodePayload([]byte(`{"type":"INSERT","table":"orders"}`))
	assert.ErrorContains(t, err, "missing record")
}

func TestEncodePayload_decodes_back(t *testing.T) {
	amount := Amount(1500)
	in := Change{
		Kind:  KindInsert,
		Table: "orders",
		New:   Row{ID: "1", OrderCode: "ORD-1", Status: "NEW", TotalAmount: &amount},
	}

	b, err := EncodePayload(in)
	require.NoError(t, err)

	out, err := DecodePayload(b)
	require.NoError(t, err)
	assert.Equal(t, in.Kind, out.Kind)
	assert.Equal(t, in.New.ID, out.New.ID)
	assert.Nil(t, out.Old)
	assert.InDelta(t, 1500.0, *out.New.Amount(), 0.001)
}
