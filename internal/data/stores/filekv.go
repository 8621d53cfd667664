package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hay-kot/orderbell/internal/core/kv"
)

// errCorruptDocument marks a store file that exists but does not decode.
var errCorruptDocument = errors.New("corrupt store document")

// FileKV implements kv.KV on a single JSON document on disk. Every write
// rewrites the file atomically through a temp file and rename.
type FileKV struct {
	path string
	mu   sync.RWMutex
}

var (
	_ kv.KV     = (*FileKV)(nil)
	_ kv.Lister = (*FileKV)(nil)
)

// NewFileKV returns a store persisted at path. The file is created on the
// first write.
func NewFileKV(path string) *FileKV {
	return &FileKV{path: path}
}

// Path returns the backing file path.
func (s *FileKV) Path() string { return s.path }

func (s *FileKV) Get(_ context.Context, key string, dest any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.load()
	if err != nil {
		return fmt.Errorf("kv get %q: %w", key, err)
	}
	raw, ok := doc[key]
	if !ok {
		return fmt.Errorf("kv get %q: %w", key, kv.ErrNotFound)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("kv get %q unmarshal: %w", key, err)
	}
	return nil
}

func (s *FileKV) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv set %q marshal: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadForWrite()
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	doc[key] = data
	if err := s.save(doc); err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

func (s *FileKV) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadForWrite()
	if err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	if err := s.save(doc); err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

func (s *FileKV) Has(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.load()
	if err != nil {
		return false, fmt.Errorf("kv has %q: %w", key, err)
	}
	_, ok := doc[key]
	return ok, nil
}

func (s *FileKV) ListKeys(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("kv list keys: %w", err)
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// load reads the document. A missing or empty file is an empty document.
func (s *FileKV) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", errCorruptDocument, s.path, err)
	}
	return doc, nil
}

// loadForWrite is load for callers about to rewrite the file. A corrupt
// document is moved aside to <path>.corrupt.<timestamp> and replaced by an
// empty one, the same recovery the sqlite backend applies.
func (s *FileKV) loadForWrite() (map[string]json.RawMessage, error) {
	doc, err := s.load()
	if !errors.Is(err, errCorruptDocument) {
		return doc, err
	}

	backup := fmt.Sprintf("%s.corrupt.%s", s.path, time.Now().Format("20060102-150405.000"))
	if rerr := os.Rename(s.path, backup); rerr != nil && !os.IsNotExist(rerr) {
		return nil, fmt.Errorf("move corrupt store aside: %w", rerr)
	}
	log.Warn().Err(err).Str("backup", backup).Msg("store file corrupted, starting fresh")
	return map[string]json.RawMessage{}, nil
}

func (s *FileKV) save(doc map[string]json.RawMessage) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
