// Package wsfeed reads order changes from a realtime WebSocket endpoint.
//
// The client sends a subscribe frame for the table, waits for the server to
// acknowledge it, then receives one change frame per row change:
//
//	-> {"type":"subscribe","schema":"public","table":"orders"}
//	<- {"type":"subscribed"}
//	<- {"type":"change","event":"UPDATE","table":"orders","new":{...},"old":{...}}
package wsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hay-kot/orderbell/internal/core/feed"
)

const (
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 1 << 20
)

// Frame types.
const (
	TypeSubscribe  = "subscribe"
	TypeSubscribed = "subscribed"
	TypeChange     = "change"
	TypeError      = "error"
	TypeHeartbeat  = "heartbeat"
)

// Message is a single protocol frame.
type Message struct {
	Type    string    `json:"type"`
	Event   string    `json:"event,omitempty"`
	Schema  string    `json:"schema,omitempty"`
	Table   string    `json:"table,omitempty"`
	New     *feed.Row `json:"new,omitempty"`
	Old     *feed.Row `json:"old,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Options configures a Source.
type Options struct {
	URL    string
	APIKey string
	// PongWait overrides how long the connection may stay silent.
	PongWait time.Duration
	Dialer   *websocket.Dialer
	Logger   zerolog.Logger
	Pump     []feed.PumpOption
}

// Source is a feed.Source over a WebSocket connection.
type Source struct {
	opts Options
}

var _ feed.Source = (*Source)(nil)

// New returns a Source for opts.
func New(opts Options) *Source {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.PongWait <= 0 {
		opts.PongWait = PongWait
	}
	return &Source{opts: opts}
}

// Subscribe starts the connection loop.
func (s *Source) Subscribe(ctx context.Context, filter feed.Filter) (feed.Handle, error) {
	if s.opts.URL == "" {
		return nil, errors.New("wsfeed: url is required")
	}
	return feed.StartPump(ctx, filter, s.session, s.opts.Pump...), nil
}

func (s *Source) session(ctx context.Context, sink *feed.Sink) error {
	header := http.Header{}
	if s.opts.APIKey != "" {
		header.Set("apikey", s.opts.APIKey)
		header.Set("Authorization", "Bearer "+s.opts.APIKey)
	}

	conn, _, err := s.opts.Dialer.DialContext(ctx, s.opts.URL, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(MaxMessageSize)
	pongWait := s.opts.PongWait
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// writes come from this goroutine and the pinger
	var writeMu sync.Mutex
	filter := sink.Filter()

	writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(WriteWait))
	err = conn.WriteJSON(Message{Type: TypeSubscribe, Schema: filter.Schema, Table: filter.Table})
	writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pongWait * 9 / 10)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				// unblocks ReadMessage
				_ = conn.Close()
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(WriteWait))
				writeMu.Unlock()
				if err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		// a bad frame is dropped; only transport errors end the session
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.opts.Logger.Warn().Err(err).Int("bytes", len(data)).Msg("dropping undecodable frame")
			continue
		}

		switch msg.Type {
		case TypeSubscribed:
			sink.Ready()
		case TypeError:
			return fmt.Errorf("server error: %s", msg.Message)
		case TypeHeartbeat:
		case TypeChange:
			if msg.New == nil {
				s.opts.Logger.Warn().Str("event", msg.Event).Msg("skipping change frame without new row")
				continue
			}
			c := feed.Change{
				Kind:   feed.ParseKind(msg.Event),
				Schema: msg.Schema,
				Table:  msg.Table,
				New:    *msg.New,
				Old:    msg.Old,
			}
			if !sink.Emit(c) {
				return nil
			}
		default:
			s.opts.Logger.Debug().Str("type", msg.Type).Msg("ignoring unknown frame")
		}
	}
}
