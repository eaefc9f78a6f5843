package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"casebook/internal/kyccase/models"
	"casebook/pkg/platform/sentinel"
)

// Memory is an in-memory Store for unit tests.
type Memory struct {
	mu           sync.RWMutex
	cases        map[string]*models.Case
	related      []*models.RelatedParty
	reports      map[int64]*models.CallReport
	nextReportID int64
}

func NewMemory() *Memory {
	return &Memory{
		cases:        make(map[string]*models.Case),
		reports:      make(map[int64]*models.CallReport),
		nextReportID: 1,
	}
}

// RunInTx runs fn directly. The memory store has no transactional isolation.
func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *Memory) Create(ctx context.Context, c *models.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[c.ID]; ok {
		return sentinel.ErrConflict
	}
	c.RowVersion = 1
	cp := *c
	m.cases[c.ID] = &cp
	return nil
}

func (m *Memory) FindByID(ctx context.Context, id string) (*models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) Exists(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.cases[id]
	return ok, nil
}

func (m *Memory) List(ctx context.Context, filter ListFilter) ([]*models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Case
	for _, c := range m.cases {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.RiskLevel != "" && c.RiskLevel != filter.RiskLevel {
			continue
		}
		if filter.AssignedTo != "" && c.AssignedTo != filter.AssignedTo {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
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

func (m *Memory) Update(ctx context.Context, c *models.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.cases[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if cur.RowVersion != c.RowVersion {
		return sentinel.ErrConflict
	}
	c.RowVersion++
	cp := *c
	m.cases[c.ID] = &cp
	return nil
}

func (m *Memory) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.cases {
		if !c.CreatedAt.Before(from) && c.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) AddRelatedParty(ctx context.Context, rp *models.RelatedParty) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.related {
		if e.CaseID == rp.CaseID && e.PartyID == rp.PartyID &&
			strings.EqualFold(e.RelationshipType, rp.RelationshipType) {
			return sentinel.ErrConflict
		}
	}
	cp := *rp
	m.related = append(m.related, &cp)
	return nil
}

func (m *Memory) RemoveRelatedParty(ctx context.Context, caseID, partyID, relationshipType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.related {
		if e.CaseID == caseID && e.PartyID == partyID &&
			strings.EqualFold(e.RelationshipType, relationshipType) {
			m.related = append(m.related[:i], m.related[i+1:]...)
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (m *Memory) RelatedParties(ctx context.Context, caseID string) ([]*models.RelatedParty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.RelatedParty
	for _, e := range m.related {
		if e.CaseID == caseID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) PartyIDsForCase(ctx context.Context, caseID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, e := range m.related {
		if e.CaseID == caseID && !seen[e.PartyID] {
			seen[e.PartyID] = true
			out = append(out, e.PartyID)
		}
	}
	return out, nil
}

func (m *Memory) IsPartyRelatedToCase(ctx context.Context, caseID, partyID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.related {
		if e.CaseID == caseID && e.PartyID == partyID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CasesForParty(ctx context.Context, partyID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, e := range m.related {
		if e.PartyID == partyID && !seen[e.CaseID] {
			seen[e.CaseID] = true
			out = append(out, e.CaseID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) AddCallReport(ctx context.Context, cr *models.CallReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cr.ID = m.nextReportID
	m.nextReportID++
	cp := *cr
	m.reports[cr.ID] = &cp
	return nil
}

func (m *Memory) UpdateCallReport(ctx context.Context, cr *models.CallReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.reports[cr.ID]
	if !ok || cur.CaseID != cr.CaseID || cur.Deleted {
		return sentinel.ErrNotFound
	}
	cp := *cr
	m.reports[cr.ID] = &cp
	return nil
}

func (m *Memory) DeleteCallReport(ctx context.Context, caseID string, reportID int64, deletedBy string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.reports[reportID]
	if !ok || cur.CaseID != caseID || cur.Deleted {
		return sentinel.ErrNotFound
	}
	cur.Deleted = true
	cur.DeletedBy = deletedBy
	t := at
	cur.DeletedAt = &t
	return nil
}

func (m *Memory) CallReports(ctx context.Context, caseID string) ([]*models.CallReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.CallReport
	for _, cr := range m.reports {
		if cr.CaseID == caseID && !cr.Deleted {
			cp := *cr
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReportDate.After(out[j].ReportDate) })
	return out, nil
}

func (m *Memory) FindCallReport(ctx context.Context, caseID string, reportID int64) (*models.CallReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cr, ok := m.reports[reportID]
	if !ok || cr.CaseID != caseID || cr.Deleted {
		return nil, sentinel.ErrNotFound
	}
	cp := *cr
	return &cp, nil
}
