package activity

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is the in-memory twin of the Postgres store for unit tests.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []*Entry

	// FailAppends makes the next N appends fail, for retry tests.
	FailAppends int
	failErr     error
}

// NewMemoryStore constructs an empty in-memory activity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// FailNext arranges for the next n Append calls to return err.
func (s *MemoryStore) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailAppends = n
	s.failErr = err
}

func (s *MemoryStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAppends > 0 {
		s.FailAppends--
		return s.failErr
	}

	stored := *entry
	stored.ID = s.nextID
	s.nextID++
	s.entries = append(s.entries, &stored)
	return nil
}

func (s *MemoryStore) ListByCase(_ context.Context, caseID string) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []*Entry
	for _, entry := range s.entries {
		if entry.CaseID == caseID {
			copied := *entry
			entries = append(entries, &copied)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}
