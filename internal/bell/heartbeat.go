package bell

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/hay-kot/orderbell/internal/core/kv"
)

// HeartbeatKey is where a running server advertises itself.
const HeartbeatKey = "server:heartbeat"

// Heartbeat records a running server so CLI commands that edit the log
// directly can refuse while the server owns it.
type Heartbeat struct {
	Addr string    `json:"addr"`
	PID  int       `json:"pid"`
	At   time.Time `json:"at"`
}

// Fresh reports whether the heartbeat was written within ttl of now.
func (h Heartbeat) Fresh(now time.Time, ttl time.Duration) bool {
	return !h.At.IsZero() && now.Sub(h.At) < ttl
}

// WriteHeartbeat stores a heartbeat for addr. Backends that support expiry
// drop it on their own after ttl.
func WriteHeartbeat(ctx context.Context, store kv.KV, addr string, now time.Time, ttl time.Duration) error {
	hb := Heartbeat{Addr: addr, PID: os.Getpid(), At: now}
	if ex, ok := store.(kv.Expirer); ok {
		return ex.SetTTL(ctx, HeartbeatKey, hb, ttl)
	}
	return store.Set(ctx, HeartbeatKey, hb)
}

// ReadHeartbeat returns the stored heartbeat and whether it is fresh.
func ReadHeartbeat(ctx context.Context, store kv.KV, now time.Time, ttl time.Duration) (Heartbeat, bool, error) {
	var hb Heartbeat
	err := store.Get(ctx, HeartbeatKey, &hb)
	if errors.Is(err, kv.ErrNotFound) {
		return Heartbeat{}, false, nil
	}
	if err != nil {
		return Heartbeat{}, false, err
	}
	return hb, hb.Fresh(now, ttl), nil
}

// ClearHeartbeat removes the heartbeat on shutdown.
func ClearHeartbeat(ctx context.Context, store kv.KV) error {
	return store.Delete(ctx, HeartbeatKey)
}

// Beat writes a heartbeat every interval until ctx is cancelled, then
// clears it. Write failures are reported to onErr.
func Beat(ctx context.Context, store kv.KV, addr string, interval time.Duration, onErr func(error)) {
	ttl := 3 * interval
	write := func() {
		if err := WriteHeartbeat(ctx, store, addr, time.Now(), ttl); err != nil && onErr != nil {
			onErr(err)
		}
	}

	write()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ClearHeartbeat(context.WithoutCancel(ctx), store); err != nil && onErr != nil {
				onErr(err)
			}
			return
		case <-ticker.C:
			write()
		}
	}
}
