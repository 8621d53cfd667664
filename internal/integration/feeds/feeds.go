// Package feeds builds the configured upstream change feed.
package feeds

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hay-kot/orderbell/internal/core/config"
	"github.com/hay-kot/orderbell/internal/core/feed"
	"github.com/hay-kot/orderbell/internal/integration/feeds/kafkafeed"
	"github.com/hay-kot/orderbell/internal/integration/feeds/pgnotify"
	"github.com/hay-kot/orderbell/internal/integration/feeds/redisfeed"
	"github.com/hay-kot/orderbell/internal/integration/feeds/spool"
	"github.com/hay-kot/orderbell/internal/integration/feeds/wsfeed"
)

// Open returns the feed.Source selected by cfg.Feed.Source, or nil when the
// source is "none".
func Open(cfg *config.Config, logger zerolog.Logger) (feed.Source, error) {
	fc := cfg.Feed
	pump := []feed.PumpOption{
		feed.WithBackoff(fc.Backoff.Initial, fc.Backoff.Max),
		feed.WithMaxAttempts(fc.Backoff.MaxAttempts),
		feed.WithPumpLogger(logger),
	}

	switch fc.Source {
	case config.SourceNone, "":
		return nil, nil
	case config.SourcePostgres:
		return pgnotify.New(pgnotify.Options{
			DSN:     fc.Postgres.DSN,
			Channel: fc.Postgres.Channel,
			Logger:  logger,
			Pump:    pump,
		}), nil
	case config.SourceKafka:
		return kafkafeed.New(kafkafeed.Options{
			Brokers: fc.Kafka.Brokers,
			Topic:   fc.Kafka.Topic,
			GroupID: fc.Kafka.GroupID,
			Logger:  logger,
			Pump:    pump,
		}), nil
	case config.SourceWebSocket:
		return wsfeed.New(wsfeed.Options{
			URL:    fc.WebSocket.URL,
			APIKey: fc.WebSocket.APIKey,
			Logger: logger,
			Pump:   pump,
		}), nil
	case config.SourceRedis:
		src, err := redisfeed.New(redisfeed.Options{
			URL:     fc.Redis.URL,
			Channel: fc.Redis.Channel,
			Logger:  logger,
			Pump:    pump,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.SourceSpool:
		return spool.New(spool.Options{
			Dir:     cfg.SpoolDir(),
			Pattern: fc.Spool.Pattern,
			Logger:  logger,
			Pump:    pump,
		}), nil
	default:
		return nil, fmt.Errorf("unknown feed source %q", fc.Source)
	}
}
