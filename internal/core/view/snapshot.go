// Package view holds the read model render surfaces consume.
package view

import (
	"time"

	"github.com/hay-kot/orderbell/internal/core/notify"
	"github.com/hay-kot/orderbell/internal/core/subscriber"
	"github.com/hay-kot/orderbell/internal/core/toast"
)

// Snapshot is an immutable view of the engine state. Version increases by
// one with every published snapshot.
type Snapshot struct {
	Notifications []notify.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
	Toasts        []toast.Toast         `json:"toasts"`
	Connection    subscriber.Status     `json:"connection"`
	Version       uint64                `json:"version"`
	At            time.Time             `json:"at"`
}

// Empty returns the snapshot published before the engine has run.
func Empty() *Snapshot {
	return &Snapshot{
		Notifications: []notify.Notification{},
		Toasts:        []toast.Toast{},
		Connection:    subscriber.Status{State: subscriber.StateIdle},
	}
}

// Find returns the notification with id.
func (s *Snapshot) Find(id string) (notify.Notification, bool) {
	for _, n := range s.Notifications {
		if n.ID == id {
			return n, true
		}
	}
	return notify.Notification{}, false
}
