// Package status maps order status codes to their presentation metadata.
// It is the single source of truth for status wording so the notification
// messages and the render surfaces never disagree.
package status

// Code is an order status code as stored in the orders table.
type Code string

const (
	New        Code = "NEW"
	Processing Code = "PROCESSING"
	Shipped    Code = "SHIPPED"
	Delivered  Code = "DELIVERED"
	Cancelled  Code = "CANCELLED"
)

// Tone is a coarse severity used for badge and toast styling.
type Tone string

const (
	ToneWarning Tone = "warning"
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneError   Tone = "error"
)

// Valid reports whether t is one of the known tones.
func (t Tone) Valid() bool {
	switch t {
	case ToneWarning, ToneInfo, ToneSuccess, ToneError:
		return true
	}
	return false
}

// Meta is the display metadata for a status code.
type Meta struct {
	Label       string `json:"label"`
	Tone        Tone   `json:"tone"`
	Description string `json:"description"`
}

var registry = map[Code]Meta{
	New:        {Label: "입금대기", Tone: ToneWarning, Description: "입금 확인을 기다리는 주문"},
	Processing: {Label: "주문확인", Tone: ToneInfo, Description: "주문이 확인되어 준비 중"},
	Shipped:    {Label: "배송중", Tone: ToneInfo, Description: "상품이 출고되어 배송 중"},
	Delivered:  {Label: "배송완료", Tone: ToneSuccess, Description: "고객에게 배송 완료"},
	Cancelled:  {Label: "주문취소", Tone: ToneError, Description: "취소된 주문"},
}

// order is the lifecycle order used when listing codes.
var order = []Code{New, Processing, Shipped, Delivered, Cancelled}

// Resolve returns the metadata for code. Unknown codes resolve to the raw
// code as label with an info tone, never an error.
func Resolve(code string) Meta {
	if m, ok := registry[Code(code)]; ok {
		return m
	}
	return Meta{Label: code, Tone: ToneInfo}
}

// Known reports whether code is part of the closed status set.
func Known(code string) bool {
	_, ok := registry[Code(code)]
	return ok
}

// Codes returns every known status code in lifecycle order.
func Codes() []Code {
	out := make([]Code, len(order))
	copy(out, order)
	return out
}
