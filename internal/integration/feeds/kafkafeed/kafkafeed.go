// Package kafkafeed reads order changes from a Debezium topic on Kafka.
package kafkafeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/hay-kot/orderbell/internal/core/feed"
)

// Options configures a Source.
type Options struct {
	Brokers []string
	Topic   string
	GroupID string
	Logger  zerolog.Logger
	Pump    []feed.PumpOption
}

// Source is a feed.Source backed by a consumer group reader.
type Source struct {
	opts Options
}

var _ feed.Source = (*Source)(nil)

// New returns a Source for opts.
func New(opts Options) *Source {
	if opts.GroupID == "" {
		opts.GroupID = "orderbell"
	}
	return &Source{opts: opts}
}

// Subscribe starts consuming the topic.
func (s *Source) Subscribe(ctx context.Context, filter feed.Filter) (feed.Handle, error) {
	if len(s.opts.Brokers) == 0 || s.opts.Topic == "" {
		return nil, errors.New("kafkafeed: brokers and topic are required")
	}
	return feed.StartPump(ctx, filter, s.session, s.opts.Pump...), nil
}

func (s *Source) session(ctx context.Context, sink *feed.Sink) error {
	if err := s.probe(ctx); err != nil {
		return err
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.opts.Brokers,
		Topic:    s.opts.Topic,
		GroupID:  s.opts.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	defer func() { _ = r.Close() }()
	sink.Ready()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}

		c, err := Decode(m.Value)
		switch {
		case errors.Is(err, ErrSkip):
		case err != nil:
			s.opts.Logger.Warn().Err(err).Int64("offset", m.Offset).Int("partition", m.Partition).Msg("skipping malformed change event")
		default:
			if c.ReceivedAt.IsZero() {
				c.ReceivedAt = m.Time
			}
			if !sink.Emit(c) {
				return nil
			}
		}

		if err := r.CommitMessages(ctx, m); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
}

// probe dials the brokers so an unreachable cluster reports a failed
// attempt instead of a reader that silently retries.
func (s *Source) probe(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var lastErr error
	for _, broker := range s.opts.Brokers {
		conn, err := kafka.DialContext(dialCtx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = conn.ReadPartitions(s.opts.Topic)
		_ = conn.Close()
		if err != nil {
			return fmt.Errorf("read partitions for %s: %w", s.opts.Topic, err)
		}
		return nil
	}
	return fmt.Errorf("dial brokers: %w", lastErr)
}
