package logging

import "context"

type contextKey string

const (
	orderIDKey        contextKey = "order_id"
	notificationIDKey contextKey = "notification_id"
)

// WithOrderID tags ctx with the order a log line concerns.
func WithOrderID(ctx context.Context, orderID string) context.Context {
	return context.WithValue(ctx, orderIDKey, orderID)
}

// WithNotificationID tags ctx with the notification a log line concerns.
func WithNotificationID(ctx context.Context, notificationID string) context.Context {
	return context.WithValue(ctx, notificationIDKey, notificationID)
}

// WithNotification tags ctx with both ids of a notification. Empty ids are
// skipped.
func WithNotification(ctx context.Context, orderID, notificationID string) context.Context {
	if orderID != "" {
		ctx = WithOrderID(ctx, orderID)
	}
	if notificationID != "" {
		ctx = WithNotificationID(ctx, notificationID)
	}
	return ctx
}

// GetOrderID returns the order id on ctx, or "".
func GetOrderID(ctx context.Context) string {
	id, _ := ctx.Value(orderIDKey).(string)
	return id
}

// GetNotificationID returns the notification id on ctx, or "".
func GetNotificationID(ctx context.Context) string {
	id, _ := ctx.Value(notificationIDKey).(string)
	return id
}
