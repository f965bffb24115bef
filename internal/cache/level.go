package cache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const entryPrefix = "e:"

// LevelStore persists entries in a goleveldb database so results survive a
// restart. Entries are gob encoded.
type LevelStore struct {
	mu     sync.Mutex
	db     *leveldb.DB
	closed bool
}

// OpenLevelStore opens (or creates) the database at path and drops entries
// older than maxAge.
func OpenLevelStore(path string, maxAge time.Duration) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	s := &LevelStore{db: db}
	if maxAge > 0 {
		if _, err := s.Prune(time.Now().Add(-maxAge)); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *LevelStore) Get(key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Entry{}, false, ErrClosed
	}

	b, err := s.db.Get([]byte(entryPrefix+key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var e Entry
	if err := decodeGob(b, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode %q: %w", key, err)
	}
	return e, true, nil
}

func (s *LevelStore) Put(key string, e Entry) error {
	b, err := encodeGob(e)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Put([]byte(entryPrefix+key), b, nil)
}

// DeletePrefix removes every entry whose key starts with prefix.
func (s *LevelStore) DeletePrefix(prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	it := s.db.NewIterator(util.BytesPrefix([]byte(entryPrefix+prefix)), nil)
	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(bytes.Clone(it.Key()))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return 0, err
	}
	return batch.Len(), s.db.Write(batch, nil)
}

// Prune removes entries stored before cutoff.
func (s *LevelStore) Prune(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	it := s.db.NewIterator(util.BytesPrefix([]byte(entryPrefix)), nil)
	batch := new(leveldb.Batch)
	for it.Next() {
		var e Entry
		if err := decodeGob(it.Value(), &e); err != nil || e.StoredAt.Before(cutoff) {
			batch.Delete(bytes.Clone(it.Key()))
		}
	}
	it.Release()
	if err := it.Error(); err != nil {
		return 0, err
	}
	return batch.Len(), s.db.Write(batch, nil)
}

func (s *LevelStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
