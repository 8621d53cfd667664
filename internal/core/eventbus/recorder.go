package eventbus

// Recorder receives engine activity for instrumentation.
type Recorder interface {
	NotificationAppended(kind string, evicted int)
	ChangeDropped(reason string)
	PersistFailed()
	SnapshotPublished(unread, activeToasts int, connection string)
}

// RecorderRouter maps bus events onto a Recorder.
type RecorderRouter struct {
	bus *EventBus
	rec Recorder
}

// NewRecorderRouter constructs a router that forwards events to rec.
func NewRecorderRouter(bus *EventBus, rec Recorder) *RecorderRouter {
	return &RecorderRouter{bus: bus, rec: rec}
}

// Register subscribes all supported event mappings.
func (r *RecorderRouter) Register() {
	if r == nil || r.bus == nil || r.rec == nil {
		return
	}

	r.bus.SubscribeNotificationAppended(func(p NotificationAppendedPayload) {
		r.rec.NotificationAppended(string(p.Notification.Type), p.Evicted)
	})

	r.bus.SubscribeChangeDropped(func(p ChangeDroppedPayload) {
		r.rec.ChangeDropped(p.Reason)
	})

	r.bus.SubscribePersistFailed(func(PersistFailedPayload) {
		r.rec.PersistFailed()
	})

	r.bus.SubscribeSnapshot(func(p SnapshotPublishedPayload) {
		if p.Snapshot == nil {
			return
		}
		r.rec.SnapshotPublished(p.Snapshot.Unread, len(p.Snapshot.Toasts), string(p.Snapshot.Connection.State))
	})
}
