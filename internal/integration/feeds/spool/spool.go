// Package spool reads order changes from files dropped into a directory.
// Each file holds one change in the feed.Payload format and is removed once
// read. Files that cannot be decoded are renamed with a .rejected suffix.
package spool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/hay-kot/orderbell/internal/core/feed"
)

const (
	DefaultPattern  = "**/*.json"
	debounceDelay   = 50 * time.Millisecond
	eventBufferSize = 100
	rejectedSuffix  = ".rejected"
)

// Options configures a Source.
type Options struct {
	Dir     string
	Pattern string
	Logger  zerolog.Logger
	Pump    []feed.PumpOption
}

// Source is a feed.Source over a spool directory.
type Source struct {
	opts Options
}

var _ feed.Source = (*Source)(nil)

// New returns a Source for opts.
func New(opts Options) *Source {
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	return &Source{opts: opts}
}

// Subscribe starts watching the directory. Files already present are
// delivered first, oldest name first.
func (s *Source) Subscribe(ctx context.Context, filter feed.Filter) (feed.Handle, error) {
	if s.opts.Dir == "" {
		return nil, errors.New("spool: dir is required")
	}
	if !doublestar.ValidatePattern(s.opts.Pattern) {
		return nil, fmt.Errorf("spool: invalid pattern %q", s.opts.Pattern)
	}
	return feed.StartPump(ctx, filter, s.session, s.opts.Pump...), nil
}

func (s *Source) session(ctx context.Context, sink *feed.Sink) error {
	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := addTree(watcher, s.opts.Dir); err != nil {
		return err
	}
	sink.Ready()

	existing, err := s.pending()
	if err != nil {
		return err
	}
	for _, path := range existing {
		if !s.consume(path, sink) {
			return nil
		}
	}

	var (
		mu       sync.Mutex
		debounce = make(map[string]*time.Timer)
		due      = make(chan string, eventBufferSize)
	)
	defer func() {
		mu.Lock()
		for _, t := range debounce {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(watcher, event.Name); err != nil {
						s.opts.Logger.Warn().Err(err).Str("dir", event.Name).Msg("failed to watch new directory")
					}
					continue
				}
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			path := event.Name
			mu.Lock()
			if t, ok := debounce[path]; ok {
				t.Stop()
			}
			debounce[path] = time.AfterFunc(debounceDelay, func() {
				mu.Lock()
				delete(debounce, path)
				mu.Unlock()
				select {
				case due <- path:
				case <-ctx.Done():
				}
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			return fmt.Errorf("watch: %w", err)

		case path := <-due:
			if !s.consume(path, sink) {
				return nil
			}
		}
	}
}

// pending lists files already in the spool that match the pattern.
func (s *Source) pending() ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(s.opts.Dir), s.opts.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("scan spool: %w", err)
	}
	sort.Strings(matches)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = filepath.Join(s.opts.Dir, filepath.FromSlash(m))
	}
	return out, nil
}

// consume reads, removes and emits one spool file. It returns false once
// the pump is closing.
func (s *Source) consume(path string, sink *feed.Sink) bool {
	rel, err := filepath.Rel(s.opts.Dir, path)
	if err != nil {
		return true
	}
	if ok, _ := doublestar.Match(s.opts.Pattern, filepath.ToSlash(rel)); !ok {
		return true
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	if err != nil {
		s.opts.Logger.Warn().Err(err).Str("file", rel).Msg("failed to read spool file")
		return true
	}

	c, err := feed.DecodePayload(data)
	if err != nil {
		s.opts.Logger.Warn().Err(err).Str("file", rel).Msg("rejecting malformed spool file")
		if rerr := os.Rename(path, path+rejectedSuffix); rerr != nil {
			_ = os.Remove(path)
		}
		return true
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.opts.Logger.Warn().Err(err).Str("file", rel).Msg("failed to remove spool file")
	}
	return sink.Emit(c)
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Write drops c into dir as a new spool file and returns its path. The file
// appears atomically so a watcher never reads a partial payload.
func Write(dir string, c feed.Change) (string, error) {
	payload, err := feed.EncodePayload(c)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create spool dir: %w", err)
	}

	name := fmt.Sprintf("%d-%s.json", time.Now().UnixNano(), sanitize(c.New.ID.String()))
	tmp, err := os.CreateTemp(dir, ".spool-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create spool file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write spool file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write spool file: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("publish spool file: %w", err)
	}
	return path, nil
}

func sanitize(id string) string {
	if id == "" {
		return "change"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
