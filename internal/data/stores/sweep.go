package stores

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper is implemented by backends that keep expired rows until swept.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Sweep periodically removes expired keys from store. It blocks until the
// context is cancelled.
func Sweep(ctx context.Context, store Sweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.SweepExpired(ctx)
			if err != nil {
				log.Debug().Err(err).Msg("kv sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("kv sweep")
			}
		}
	}
}
