package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// ContextHook copies order_id and notification_id from the event context.
type ContextHook struct{}

// Run adds contextual fields to the zerolog event.
func (h ContextHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == context.Background() || ctx == nil {
		return
	}

	if orderID := GetOrderID(ctx); orderID != "" {
		e.Str("order_id", orderID)
	}

	if notificationID := GetNotificationID(ctx); notificationID != "" {
		e.Str("notification_id", notificationID)
	}
}
