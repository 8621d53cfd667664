package spool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/orderbell/internal/core/feed"
	"github.com/hay-kot/orderbell/internal/core/feed/feedtest"
)

func subscribe(t *testing.T, dir string) feed.Handle {
	t.Helper()
	h, err := New(Options{Dir: dir}).Subscribe(context.Background(), feed.DefaultFilter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	select {
	case s := <-h.Signals():
		require.Equal(t, feed.SignalConnecting, s.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no connecting signal")
	}
	select {
	case s := <-h.Signals():
		require.Equal(t, feed.SignalSubscribed, s.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribed signal")
	}
	return h
}

func nextChange(t *testing.T, h feed.Handle) feed.Change {
	t.Helper()
	select {
	case c := <-h.Changes():
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("no change received")
		return feed.Change{}
	}
}

func TestSpool_delivers_existing_files_in_order(t *testing.T) {
	dir := t.TempDir()
	first, err := Write(dir, feedtest.Insert("o-1", "A100", "NEW"))
	require.NoError(t, err)
	_, err = Write(dir, feedtest.Update("o-1", "A100", "NEW", "PROCESSING"))
	require.NoError(t, err)

	h := subscribe(t, dir)

	assert.Equal(t, feed.KindInsert, nextChange(t, h).Kind)
	assert.Equal(t, feed.KindUpdate, nextChange(t, h).Kind)

	_, err = os.Stat(first)
	assert.True(t, os.IsNotExist(err), "consumed files are removed")
}

func TestSpool_picks_up_new_files(t *testing.T) {
	dir := t.TempDir()
	h := subscribe(t, dir)

	_, err := Write(dir, feedtest.Insert("o-2", "B200", "NEW"))
	require.NoError(t, err)

	c := nextChange(t, h)
	assert.Equal(t, "B200", c.New.OrderCode.String())
}

func TestSpool_watches_subdirectories(t *testing.T) {
	dir := t.TempDir()
	h := subscribe(t, dir)

	sub := filepath.Join(dir, "store-7")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// give the watcher a moment to register the new directory
	time.Sleep(100 * time.Millisecond)

	_, err := Write(sub, feedtest.Insert("o-3", "C300", "NEW"))
	require.NoError(t, err)

	assert.Equal(t, "C300", nextChange(t, h).New.OrderCode.String())
}

func TestSpool_rejects_malformed_files(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "0001-bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"type":"INSERT"}`), 0o644))
	_, err := Write(dir, feedtest.Insert("o-4", "D400", "NEW"))
	require.NoError(t, err)

	h := subscribe(t, dir)

	assert.Equal(t, "D400", nextChange(t, h).New.OrderCode.String())
	_, err = os.Stat(bad + rejectedSuffix)
	assert.NoError(t, err)
}

func TestSpool_ignores_non_matching_files(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("hello"), 0o644))

	h := subscribe(t, dir)
	_, err := Write(dir, feedtest.Insert("o-5", "E500", "NEW"))
	require.NoError(t, err)

	assert.Equal(t, "E500", nextChange(t, h).New.OrderCode.String())
	_, err = os.Stat(other)
	assert.NoError(t, err)
}

func TestSubscribe_validates_options(t *testing.T) {
	_, err := New(Options{}).Subscribe(context.Background(), feed.DefaultFilter)
	assert.Error(t, err)

	_, err = New(Options{Dir: t.TempDir(), Pattern: "[bad"}).Subscribe(context.Background(), feed.DefaultFilter)
	assert.Error(t, err)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "change", sanitize(""))
	assert.Equal(t, "o_1_2", sanitize("o/1 2"))
}
