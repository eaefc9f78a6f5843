package store

import (
	"context"
	"sort"
	"sync"

	"casebook/internal/document/models"
	"casebook/pkg/platform/sentinel"
)

// Memory is the in-memory twin of the Postgres store, used by unit tests and
// local development. It enforces the same uniqueness rules the database
// indexes enforce.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	docs   map[int64]*models.Document
}

// NewMemory constructs an empty in-memory document store.
func NewMemory() *Memory {
	return &Memory{nextID: 1, docs: make(map[int64]*models.Document)}
}

// RunInTx serializes fn under the store lock-free path; the store's own
// per-call lock already makes each operation atomic, and tests drive
// conflicting interleavings explicitly.
func (s *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Memory) Insert(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.docs {
		if existing.Owner == doc.Owner &&
			existing.DocumentType == doc.DocumentType &&
			existing.Version == doc.Version {
			return sentinel.ErrConflict
		}
	}

	stored := *doc
	stored.ID = s.nextID
	s.nextID++
	s.docs[stored.ID] = &stored
	doc.ID = stored.ID
	return nil
}

func (s *Memory) FindByID(_ context.Context, id int64) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (s *Memory) ListByOwner(_ context.Context, owner models.Owner) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []*models.Document
	for _, doc := range s.docs {
		if doc.Owner == owner {
			copied := *doc
			copied.Content = nil
			docs = append(docs, &copied)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].DocumentType != docs[j].DocumentType {
			return docs[i].DocumentType < docs[j].DocumentType
		}
		return docs[i].Version > docs[j].Version
	})
	return docs, nil
}

func (s *Memory) ListVersions(_ context.Context, owner models.Owner, documentType string) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []*models.Document
	for _, doc := range s.docs {
		if doc.Owner == owner && doc.DocumentType == documentType {
			copied := *doc
			copied.Content = nil
			docs = append(docs, &copied)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Version > docs[j].Version })
	return docs, nil
}

func (s *Memory) CurrentVersion(_ context.Context, owner models.Owner, documentType string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range s.docs {
		if doc.Owner == owner && doc.DocumentType == documentType && doc.IsCurrent {
			copied := *doc
			copied.Content = nil
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *Memory) MaxVersion(_ context.Context, owner models.Owner, documentType string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	max := 0
	for _, doc := range s.docs {
		if doc.Owner == owner && doc.DocumentType == documentType && doc.Version > max {
			max = doc.Version
		}
	}
	return max, nil
}

func (s *Memory) ClearCurrent(_ context.Context, owner models.Owner, documentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range s.docs {
		if doc.Owner == owner && doc.DocumentType == documentType {
			doc.IsCurrent = false
		}
	}
	return nil
}

func (s *Memory) SetCurrent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	for _, other := range s.docs {
		if other.ID != id && other.Owner == doc.Owner &&
			other.DocumentType == doc.DocumentType && other.IsCurrent {
			return sentinel.ErrConflict
		}
	}
	doc.IsCurrent = true
	return nil
}

func (s *Memory) UpdateStatus(_ context.Context, updated *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[updated.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	doc.Status = updated.Status
	doc.VerifiedBy = updated.VerifiedBy
	doc.VerifiedAt = updated.VerifiedAt
	doc.RejectionReason = updated.RejectionReason
	return nil
}

func (s *Memory) StatusSummary(_ context.Context, owner models.Owner) (models.StatusSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summary models.StatusSummary
	for _, doc := range s.docs {
		if doc.Owner != owner {
			continue
		}
		summary.Total++
		switch doc.Status {
		case models.StatusVerified:
			summary.Verified++
		case models.StatusSubmitted:
			summary.Submitted++
		case models.StatusRejected:
			summary.Rejected++
		case models.StatusExpired:
			summary.Expired++
		}
	}
	return summary, nil
}
