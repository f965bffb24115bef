package config

import (
	"fmt"
	"sync"
)

// Store is the shared, mutable view of the config file. Indexers write
// their resolved cookies back through it. It holds the file contents only:
// build it before ApplyEnv so overrides never end up on disk.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  Config
}

// NewStore wraps cfg, which was loaded from path.
func NewStore(path string, cfg Config) *Store {
	if path == "" {
		path = ConfigPath()
	}
	return &Store{path: path, cfg: cfg.Clone()}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns a deep copy of the current config.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Indexer returns one indexer entry.
func (s *Store) Indexer(id string) (IndexerConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Indexer(id)
}

// Replace swaps in a freshly loaded config without saving it.
func (s *Store) Replace(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.Clone()
	s.mu.Unlock()
}

// UpdateIndexerCookie records header for id and saves the file when it
// differs from what is stored. It reports whether a save happened.
func (s *Store) UpdateIndexerCookie(id, header string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cfg.Indexers {
		if s.cfg.Indexers[i].ID != id {
			continue
		}
		if s.cfg.Indexers[i].Cookie == header {
			return false, nil
		}
		s.cfg.Indexers[i].Cookie = header
		if err := Save(s.path, s.cfg); err != nil {
			return false, fmt.Errorf("save cookie for %s: %w", id, err)
		}
		return true, nil
	}
	return false, fmt.Errorf("indexer %q not configured", id)
}

// UpdateIndexer replaces (or adds) one entry and saves.
func (s *Store) UpdateIndexer(ic IndexerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Clone()
	stored, _ := s.cfg.Indexer(ic.ID)
	next.Merge([]IndexerConfig{StripEnv(ic, stored)})
	if err := next.Validate(); err != nil {
		return err
	}
	if err := Save(s.path, next); err != nil {
		return err
	}
	s.cfg = next
	return nil
}
