package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/orderbell/internal/core/eventbus"
	"github.com/hay-kot/orderbell/internal/core/view"
)

func drainNewest(t *testing.T, ch <-chan *view.Snapshot) uint64 {
	t.Helper()
	var got uint64
	require.Eventually(t, func() bool {
		select {
		case s := <-ch:
			got = s.Version
		default:
		}
		return got != 0
	}, time.Second, 5*time.Millisecond)
	return got
}

func TestSnapshotChannel_keeps_newest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := eventbus.New(16)
	ch := snapshotChannel(bus, func() *view.Snapshot { return &view.Snapshot{} })
	for v := uint64(1); v <= 3; v++ {
		bus.PublishSnapshotPublished(eventbus.SnapshotPublishedPayload{Snapshot: &view.Snapshot{Version: v}})
	}
	go bus.Start(ctx)

	require.Eventually(t, func() bool {
		select {
		case s := <-ch:
			return s.Version == 3
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestSnapshotChannel_falls_back_to_latest_on_drop(t *testing.T) {
	// a bus that is never started fills after one event
	bus := eventbus.New(1)

	var current atomic.Pointer[view.Snapshot]
	current.Store(&view.Snapshot{})
	ch := snapshotChannel(bus, current.Load)

	for v := uint64(1); v <= 3; v++ {
		current.Store(&view.Snapshot{Version: v})
		bus.PublishSnapshotPublished(eventbus.SnapshotPublishedPayload{Snapshot: current.Load()})
	}

	assert.Equal(t, uint64(3), drainNewest(t, ch))
}

func TestSnapshotChannel_ignores_stale_versions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := eventbus.New(1)
	var current atomic.Pointer[view.Snapshot]
	current.Store(&view.Snapshot{})
	ch := snapshotChannel(bus, current.Load)

	// version 1 sits in the bus buffer; version 2 is dropped and forwarded directly
	current.Store(&view.Snapshot{Version: 1})
	bus.PublishSnapshotPublished(eventbus.SnapshotPublishedPayload{Snapshot: current.Load()})
	current.Store(&view.Snapshot{Version: 2})
	bus.PublishSnapshotPublished(eventbus.SnapshotPublishedPayload{Snapshot: current.Load()})
	require.Equal(t, uint64(2), drainNewest(t, ch))

	// delivering the buffered version 1 must not replace it
	bus.Start(cancelled(ctx))
	select {
	case s := <-ch:
		t.Fatalf("stale snapshot %d forwarded", s.Version)
	default:
	}
}

func cancelled(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	cancel()
	return ctx
}

func TestFeedCmd_print(t *testing.T) {
	flags := testFlags(t)
	flags.Config.Feed.Table = "purchase_orders"

	var buf bytes.Buffer
	app := &cli.Command{Name: "orderbell", Writer: &buf}
	NewFeedCmd(flags).Register(app)
	require.NoError(t, app.Run(context.Background(), []string{"orderbell", "feed", "install-trigger", "--print"}))

	out := buf.String()
	assert.Contains(t, out, `"public"."purchase_orders"`)
	assert.Contains(t, out, "'orderbell_changes'")
}

func TestFeedCmd_requires_dsn(t *testing.T) {
	flags := testFlags(t)
	t.Setenv("ORDERBELL_POSTGRES_DSN", "")

	app := &cli.Command{Name: "orderbell", Writer: &bytes.Buffer{}}
	NewFeedCmd(flags).Register(app)
	err := app.Run(context.Background(), []string{"orderbell", "feed", "install-trigger"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no postgres dsn")
}

func TestConfigValidateCmd(t *testing.T) {
	run := func(t *testing.T, flags *Flags) (map[string]any, error) {
		t.Helper()
		var buf bytes.Buffer
		app := &cli.Command{
			Name:   "orderbell",
			Writer: &buf,
			// keep cli.Exit from terminating the test binary
			ExitErrHandler: func(context.Context, *cli.Command, error) {},
		}
		NewConfigValidateCmd(flags).Register(app)
		err := app.Run(context.Background(), []string{"orderbell", "config", "validate", "--format", "json"})

		var out map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
		return out, err
	}

	t.Run("valid", func(t *testing.T) {
		out, err := run(t, testFlags(t))
		require.NoError(t, err)
		assert.Equal(t, true, out["valid"])
		assert.NotEmpty(t, out["warnings"], "no feed configured")
	})

	t.Run("config path is a directory", func(t *testing.T) {
		flags := testFlags(t)
		flags.ConfigPath = t.TempDir()

		out, err := run(t, flags)
		require.Error(t, err)
		assert.Equal(t, false, out["valid"])

		errs, ok := out["errors"].([]any)
		require.True(t, ok)
		require.Len(t, errs, 1)
		assert.Equal(t, "config_file", errs[0].(map[string]any)["field"])
	})

	t.Run("data dir is a file", func(t *testing.T) {
		flags := testFlags(t)
		file := filepath.Join(t.TempDir(), "not-a-dir")
		require.NoError(t, os.WriteFile(file, nil, 0o644))
		flags.Config.DataDir = file

		out, err := run(t, flags)
		require.Error(t, err)
		assert.Equal(t, false, out["valid"])
	})
}
