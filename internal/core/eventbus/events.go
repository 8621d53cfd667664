// Package eventbus provides a typed publish/subscribe event bus used to fan
// engine state out to render surfaces and observers.
package eventbus

import (
	"github.com/hay-kot/orderbell/internal/core/notify"
	"github.com/hay-kot/orderbell/internal/core/subscriber"
	"github.com/hay-kot/orderbell/internal/core/view"
)

// Event names a bus topic.
type Event string

const (
	// Keep list sorted A-Z
	EventChangeDropped        Event = "change.dropped"
	EventConnectionChanged    Event = "connection.changed"
	EventNotificationAppended Event = "notification.appended"
	EventNotificationRead     Event = "notification.read"
	EventNotificationsCleared Event = "notifications.cleared"
	EventPersistFailed        Event = "persist.failed"
	EventSnapshotPublished    Event = "snapshot.published"
	EventToastExpired         Event = "toast.expired"
)

// Events lists every topic.
var Events = []Event{
	EventChangeDropped,
	EventConnectionChanged,
	EventNotificationAppended,
	EventNotificationRead,
	EventNotificationsCleared,
	EventPersistFailed,
	EventSnapshotPublished,
	EventToastExpired,
}

// ChangeDroppedPayload is emitted when a feed change is discarded.
type ChangeDroppedPayload struct {
	Reason string
}

// ConnectionChangedPayload is emitted when the feed connection status
// changes.
type ConnectionChangedPayload struct {
	Previous subscriber.Status
	Current  subscriber.Status
}

// NotificationAppendedPayload is emitted after a notification is added to
// the log.
type NotificationAppendedPayload struct {
	Notification notify.Notification
	Evicted      int
}

// NotificationReadPayload is emitted when notifications are marked read.
type NotificationReadPayload struct {
	IDs []string
}

// NotificationsClearedPayload is emitted when the log is cleared.
type NotificationsClearedPayload struct {
	Count int
}

// PersistFailedPayload is emitted when the log could not be written.
type PersistFailedPayload struct {
	Err error
}

// SnapshotPublishedPayload carries the engine state after a mutation.
type SnapshotPublishedPayload struct {
	Snapshot *view.Snapshot
}

// ToastExpiredPayload is emitted when a toast leaves the active set.
type ToastExpiredPayload struct {
	ID string
}
