package consentcache

import (
	"context"
	"sync"
	"time"

	"github.com/wso2/bookstore-consent-api/internal/models"
)

type memoryEntry struct {
	decision  models.ConsentDecision
	storedAt  time.Time
	expiresAt time.Time
}

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a memory store. ttl <= 0 keeps entries until the
// decision itself expires or is invalidated.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[Key]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock sets the clock used for entry expiry
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Get(_ context.Context, key Key) (*models.ConsentDecision, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		if current, still := s.entries[key]; still && current.storedAt.Equal(entry.storedAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, nil
	}
	decision := entry.decision
	return &decision, nil
}

func (s *MemoryStore) Put(_ context.Context, key Key, decision *models.ConsentDecision) error {
	if decision == nil {
		return nil
	}
	now := s.now()
	entry := memoryEntry{decision: *decision, storedAt: now}
	if ttl := entryTTL(decision, s.ttl, now); ttl > 0 || decision.ExpiresAt != nil {
		entry.expiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Invalidate(_ context.Context, key Key) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
