package eventbus

import (
	"fmt"

	"github.com/rs/zerolog"
)

// RegisterDebugLogger traces bus traffic on logger. Published events log at
// debug with their payload's identifying fields, drops log at warn so a
// saturated bus is visible without debug enabled.
func RegisterDebugLogger(bus *EventBus, logger zerolog.Logger) {
	bus.OnPublish(func(event Event, payload any) {
		payloadFields(logger.Debug(), event, payload).Msg("event published")
	})

	bus.OnDrop(func(event Event, payload any) {
		payloadFields(logger.Warn(), event, payload).Msg("event dropped: bus buffer full")
	})

	bus.OnPanic(func(event Event, payload any, recovered any) {
		payloadFields(logger.Error(), event, payload).
			Str("panic", fmt.Sprint(recovered)).
			Msg("subscriber panicked")
	})
}

func payloadFields(e *zerolog.Event, event Event, payload any) *zerolog.Event {
	e = e.Str("event", string(event))

	switch p := payload.(type) {
	case NotificationAppendedPayload:
		e = e.Str("notification_id", p.Notification.ID).
			Str("order_id", p.Notification.OrderID).
			Str("type", string(p.Notification.Type)).
			Str("status", p.Notification.Status)
		if p.Evicted > 0 {
			e = e.Int("evicted", p.Evicted)
		}
	case NotificationReadPayload:
		e = e.Int("count", len(p.IDs))
		if len(p.IDs) == 1 {
			e = e.Str("notification_id", p.IDs[0])
		}
	case NotificationsClearedPayload:
		e = e.Int("count", p.Count)
	case ToastExpiredPayload:
		e = e.Str("notification_id", p.ID)
	case ChangeDroppedPayload:
		e = e.Str("reason", p.Reason)
	case ConnectionChangedPayload:
		e = e.Str("from", string(p.Previous.State)).
			Str("to", string(p.Current.State)).
			Int("attempt", p.Current.Attempt)
	case PersistFailedPayload:
		e = e.AnErr("cause", p.Err)
	case SnapshotPublishedPayload:
		if p.Snapshot != nil {
			e = e.Uint64("version", p.Snapshot.Version).Int("unread", p.Snapshot.Unread)
		}
	}
	return e
}
