package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"anchorwatch/internal/logger"
	"anchorwatch/internal/watcher"
)

// Store persists the full entry set. Implementations must make Save
// atomic: a crash mid-write may lose the newest state but never corrupt
// the previous one.
type Store interface {
	Load() ([]watcher.Entry, error)
	Save(entries []watcher.Entry) error
}

type registryDocument struct {
	SavedAt time.Time         `json:"saved_at"`
	Entries []json.RawMessage `json:"entries"`
}

// FileStore keeps the registry as one JSON document, rewritten atomically
// (temp file + rename) on every save.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store: path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("file store: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Save(entries []watcher.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Symbol < entries[j].Symbol })
	doc := registryDocument{SavedAt: time.Now().UTC()}
	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("file store: marshal %s: %w", e.Symbol, err)
		}
		doc.Entries = append(doc.Entries, raw)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: marshal document: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("file store: write temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("file store: rename: %w", err)
	}
	return nil
}

// Load reads the registry document. A missing file is an empty registry;
// individual entries that fail to decode are skipped with a warning rather
// than failing the whole load.
func (s *FileStore) Load() ([]watcher.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("file store: read: %w", err)
	}
	var doc registryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("file store: decode document: %w", err)
	}
	var out []watcher.Entry
	for i, raw := range doc.Entries {
		var e watcher.Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			logger.Warnf("file store: skipping corrupt entry %d: %v", i, err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// MemoryStore is the in-memory fake used by tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries []watcher.Entry
	saves   int
	failSav error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailSaves makes subsequent Save calls return err (nil restores normal
// behavior).
func (s *MemoryStore) FailSaves(err error) {
	s.mu.Lock()
	s.failSav = err
	s.mu.Unlock()
}

func (s *MemoryStore) Save(entries []watcher.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSav != nil {
		return s.failSav
	}
	s.entries = append([]watcher.Entry(nil), entries...)
	s.saves++
	return nil
}

func (s *MemoryStore) Load() ([]watcher.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]watcher.Entry(nil), s.entries...), nil
}

// Saves reports how many successful saves happened.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Seed replaces the stored entries.
func (s *MemoryStore) Seed(entries []watcher.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]watcher.Entry(nil), entries...)
}
