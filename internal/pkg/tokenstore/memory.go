package tokenstore

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	subject   uint
	expiresAt time.Time
}

// MemoryStore is a process-local Store for tests and cache-less dev runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Issue(_ context.Context, purpose Purpose, subject uint, ttl time.Duration) (string, error) {
	if err := checkIssue(purpose, subject, ttl); err != nil {
		return "", err
	}
	token := newToken()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key(purpose, token)] = memoryEntry{subject: subject, expiresAt: s.now().Add(ttl)}
	return token, nil
}

func (s *MemoryStore) Peek(_ context.Context, purpose Purpose, token string) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key(purpose, token))
	if !ok {
		return 0, ErrNotFound
	}
	return e.subject, nil
}

func (s *MemoryStore) Redeem(_ context.Context, purpose Purpose, token string) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(purpose, token)
	e, ok := s.live(k)
	if !ok {
		return 0, ErrNotFound
	}
	delete(s.entries, k)
	return e.subject, nil
}

func (s *MemoryStore) Consume(_ context.Context, purpose Purpose, token string, subject uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(purpose, token)
	e, ok := s.live(k)
	if !ok || e.subject != subject {
		return ErrNotFound
	}
	delete(s.entries, k)
	return nil
}

// live must be called with mu held. Expired entries are dropped on read.
func (s *MemoryStore) live(k string) (memoryEntry, bool) {
	e, ok := s.entries[k]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, k)
		return memoryEntry{}, false
	}
	return e, true
}
