package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrNotFound = errors.New("record not found")

// ErrorRecord is one error event as seen by the journal.
type ErrorRecord struct {
	ID      string    `json:"id"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Store keeps error records. Recent returns newest first; limit <= 0 means
// no limit.
type Store interface {
	Append(rec ErrorRecord) error
	Get(id string) (ErrorRecord, error)
	Recent(limit int) ([]ErrorRecord, error)
	Close() error
}

// InMemory keeps the last N records; older ones are evicted.
type InMemory struct {
	mu    sync.Mutex
	cache *lru.Cache[string, ErrorRecord]
}

func NewInMemory(size int) (*InMemory, error) {
	if size <= 0 {
		size = 1000
	}
	cache, err := lru.New[string, ErrorRecord](size)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &InMemory{cache: cache}, nil
}

func (s *InMemory) Append(rec ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(rec.ID, rec)
	return nil
}

func (s *InMemory) Get(id string) (ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.cache.Peek(id)
	if !ok {
		return ErrorRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemory) Recent(limit int) ([]ErrorRecord, error) {
	s.mu.Lock()
	vals := s.cache.Values() // oldest first
	s.mu.Unlock()

	out := make([]ErrorRecord, 0, len(vals))
	for i := len(vals) - 1; i >= 0; i-- {
		out = append(out, vals[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemory) Close() error { return nil }
