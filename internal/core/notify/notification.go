// Package notify holds the order notification model and the capped,
// persisted notification log.
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hay-kot/orderbell/internal/core/status"
)

// Type identifies what happened to an order.
type Type string

const (
	TypeOrderCreated       Type = "ORDER_CREATED"
	TypeOrderStatusChanged Type = "ORDER_STATUS_CHANGED"
)

const (
	TitleOrderCreated       = "새 주문 접수"
	TitleOrderStatusChanged = "주문 상태 변경"
)

// Notification is one order-created or order-status-changed occurrence.
// Once constructed only Read changes.
type Notification struct {
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	OrderID        string    `json:"orderId"`
	OrderCode      string    `json:"orderCode"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	StoreID        string    `json:"storeId,omitempty"`
	TotalAmount    *float64  `json:"totalAmount,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	Read           bool      `json:"read"`
}

// Order is the slice of an order row a notification is built from.
type Order struct {
	ID          string
	Code        string
	Status      string
	StoreID     string
	TotalAmount *float64
}

// DisplayCode returns the order code, falling back to the order id.
func (o Order) DisplayCode() string {
	if o.Code != "" {
		return o.Code
	}
	return o.ID
}

// NewID returns a notification id. UUIDv7 values are time ordered and
// monotonic within the process, so ids never collide within a millisecond.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewOrderCreated builds an ORDER_CREATED notification.
func NewOrderCreated(o Order, at time.Time) Notification {
	code := o.DisplayCode()
	return Notification{
		ID:          NewID(),
		Type:        TypeOrderCreated,
		OrderID:     o.ID,
		OrderCode:   code,
		Status:      o.Status,
		Title:       TitleOrderCreated,
		Message:     fmt.Sprintf("주문 %s이(가) 접수되었습니다 (%s)", code, status.Resolve(o.Status).Label),
		StoreID:     o.StoreID,
		TotalAmount: copyAmount(o.TotalAmount),
		CreatedAt:   at,
	}
}

// NewOrderStatusChanged builds an ORDER_STATUS_CHANGED notification. The
// message uses the label of the new status.
func NewOrderStatusChanged(o Order, previous string, at time.Time) Notification {
	code := o.DisplayCode()
	return Notification{
		ID:             NewID(),
		Type:           TypeOrderStatusChanged,
		OrderID:        o.ID,
		OrderCode:      code,
		Status:         o.Status,
		PreviousStatus: previous,
		Title:          TitleOrderStatusChanged,
		Message:        fmt.Sprintf("주문 %s의 상태가 %s(으)로 변경되었습니다", code, status.Resolve(o.Status).Label),
		StoreID:        o.StoreID,
		TotalAmount:    copyAmount(o.TotalAmount),
		CreatedAt:      at,
	}
}

// Clone returns a deep copy of n.
func (n Notification) Clone() Notification {
	n.TotalAmount = copyAmount(n.TotalAmount)
	return n
}

func copyAmount(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
