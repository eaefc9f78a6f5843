package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"casebook/internal/party/models"
	"casebook/pkg/platform/sentinel"
)

// Memory is an in-memory Store for unit tests.
type Memory struct {
	mu      sync.RWMutex
	parties map[string]*models.Party
}

func NewMemory() *Memory {
	return &Memory{parties: make(map[string]*models.Party)}
}

func (m *Memory) Create(ctx context.Context, p *models.Party) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.parties[p.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *p
	m.parties[p.ID] = &cp
	return nil
}

func (m *Memory) FindByID(ctx context.Context, id string) (*models.Party, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.parties[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) Exists(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.parties[id]
	return ok, nil
}

func (m *Memory) List(ctx context.Context, filter SearchFilter) ([]*models.Party, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(filter.Query)
	var out []*models.Party
	for _, p := range m.parties {
		if filter.PartyType != "" && p.PartyType != filter.PartyType {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(p.FullName), q) &&
			!strings.Contains(strings.ToLower(p.Identification), q) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) Update(ctx context.Context, p *models.Party) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.parties[p.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *p
	m.parties[p.ID] = &cp
	return nil
}
