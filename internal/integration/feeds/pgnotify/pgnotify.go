// Package pgnotify reads order changes from Postgres LISTEN/NOTIFY. The
// notifications are produced by the trigger in TriggerSQL.
package pgnotify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/hay-kot/orderbell/internal/core/feed"
)

// DefaultChannel is the NOTIFY channel used when none is configured.
const DefaultChannel = "orderbell_changes"

// Options configures a Source.
type Options struct {
	DSN     string
	Channel string
	Logger  zerolog.Logger
	Pump    []feed.PumpOption
}

// Source is a feed.Source backed by a dedicated LISTEN connection.
type Source struct {
	opts Options
}

var _ feed.Source = (*Source)(nil)

// New returns a Source for opts.
func New(opts Options) *Source {
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	return &Source{opts: opts}
}

// Subscribe starts listening. Connection failures are reported through the
// handle's signals, never returned here.
func (s *Source) Subscribe(ctx context.Context, filter feed.Filter) (feed.Handle, error) {
	if s.opts.DSN == "" {
		return nil, errors.New("pgnotify: dsn is required")
	}
	return feed.StartPump(ctx, filter, s.session, s.opts.Pump...), nil
}

func (s *Source) session(ctx context.Context, sink *feed.Sink) error {
	conn, err := pgx.Connect(ctx, s.opts.DSN)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.opts.Channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Channel, err)
	}
	sink.Ready()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		c, err := feed.DecodePayload([]byte(n.Payload))
		if err != nil {
			s.opts.Logger.Warn().Err(err).Str("channel", n.Channel).Msg("skipping malformed notification")
			continue
		}
		if !sink.Emit(c) {
			return nil
		}
	}
}

// Notify publishes c on channel through an existing connection. It is the
// client side of the trigger and is used by `orderbell emit`.
func Notify(ctx context.Context, conn *pgx.Conn, channel string, c feed.Change) error {
	payload, err := feed.EncodePayload(c)
	if err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, "SELECT pg_notify($1, $2)", channel, string(payload)); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

// TriggerSQL returns the DDL that makes filter's table publish INSERT and
// UPDATE rows on channel in the feed.Payload format.
func TriggerSQL(channel string, filter feed.Filter) string {
	schema := filter.Schema
	if schema == "" {
		schema = feed.DefaultFilter.Schema
	}
	table := pgx.Identifier{schema, filter.Table}.Sanitize()
	fn := pgx.Identifier{schema, "orderbell_notify_" + filter.Table}.Sanitize()
	trigger := pgx.Identifier{"orderbell_notify_" + filter.Table}.Sanitize()

	return fmt.Sprintf(`CREATE OR REPLACE FUNCTION %[1]s() RETURNS trigger AS $$
BEGIN
  PERFORM pg_notify(%[2]s, json_build_object(
    'type', TG_OP,
    'schema', TG_TABLE_SCHEMA,
    'table', TG_TABLE_NAME,
    'record', row_to_json(NEW),
    'old_record', CASE WHEN TG_OP = 'UPDATE' THEN row_to_json(OLD) END
  )::text);
  RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS %[3]s ON %[4]s;
CREATE TRIGGER %[3]s
  AFTER INSERT OR UPDATE ON %[4]s
  FOR EACH ROW EXECUTE FUNCTION %[1]s();
`, fn, quoteLiteral(channel), trigger, table)
}

// InstallTrigger runs TriggerSQL against dsn.
func InstallTrigger(ctx context.Context, dsn, channel string, filter feed.Filter) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	if _, err := conn.Exec(ctx, TriggerSQL(channel, filter)); err != nil {
		return fmt.Errorf("install trigger: %w", err)
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
