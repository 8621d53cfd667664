// Package redisfeed reads order changes published on a Redis pub/sub
// channel. Messages use the feed.Payload format.
package redisfeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hay-kot/orderbell/internal/core/feed"
)

// DefaultChannel is the channel used when none is configured.
const DefaultChannel = "orderbell:changes"

// Options configures a Source.
type Options struct {
	URL     string
	Channel string
	Logger  zerolog.Logger
	Pump    []feed.PumpOption
}

// Source is a feed.Source backed by a Redis subscription.
type Source struct {
	opts  Options
	redis *redis.Options
}

var _ feed.Source = (*Source)(nil)

// New parses opts.URL and returns a Source.
func New(opts Options) (*Source, error) {
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	ro.DialTimeout = 5 * time.Second
	return &Source{opts: opts, redis: ro}, nil
}

// Subscribe starts the subscription loop.
func (s *Source) Subscribe(ctx context.Context, filter feed.Filter) (feed.Handle, error) {
	return feed.StartPump(ctx, filter, s.session, s.opts.Pump...), nil
}

func (s *Source) session(ctx context.Context, sink *feed.Sink) error {
	client := redis.NewClient(s.redis)
	defer func() { _ = client.Close() }()

	ps := client.Subscribe(ctx, s.opts.Channel)
	defer func() { _ = ps.Close() }()

	// Receive blocks until the subscription is confirmed or fails
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.opts.Channel, err)
	}
	sink.Ready()

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		c, err := feed.DecodePayload([]byte(msg.Payload))
		if err != nil {
			s.opts.Logger.Warn().Err(err).Str("channel", msg.Channel).Msg("skipping malformed message")
			continue
		}
		if !sink.Emit(c) {
			return nil
		}
	}
}

// Publish sends c on channel in the feed.Payload format.
func Publish(ctx context.Context, client redis.UniversalClient, channel string, c feed.Change) error {
	payload, err := feed.EncodePayload(c)
	if err != nil {
		return err
	}
	if err := client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
