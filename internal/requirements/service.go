package requirements

import (
	"context"
	"errors"
	"log/slog"

	docmodels "casebook/internal/document/models"
	casemodels "casebook/internal/kyccase/models"
	dErrors "casebook/pkg/domain-errors"
	"casebook/pkg/platform/sentinel"
)

// CaseSource resolves cases for checklist evaluation.
type CaseSource interface {
	Get(ctx context.Context, id string) (*casemodels.Case, error)
}

// DocumentSource lists the documents held directly by an owner.
type DocumentSource interface {
	ByOwner(ctx context.Context, owner docmodels.Owner) ([]*docmodels.Document, error)
}

// Service answers requirement template lookups and evaluates case checklists.
type Service struct {
	store  Store
	cases  CaseSource
	docs   DocumentSource
	logger *slog.Logger
}

func NewService(store Store, cases CaseSource, docs DocumentSource, logger *slog.Logger) *Service {
	return &Service{store: store, cases: cases, docs: docs, logger: logger}
}

// ForEntityType returns the requirement template for an entity type.
func (s *Service) ForEntityType(ctx context.Context, entityType string) (*Template, error) {
	if entityType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "entity type is required")
	}
	tmpl, err := s.store.ForEntityType(ctx, entityType)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no requirements configured for entity type "+entityType)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load requirements")
	}
	return tmpl, nil
}

// EntityTypes lists the entity types with a configured template.
func (s *Service) EntityTypes(ctx context.Context) ([]string, error) {
	types, err := s.store.EntityTypes(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not list entity types")
	}
	return types, nil
}

// ChecklistForCase joins the case's requirement template with the current
// version of each document the case holds. The checklist is complete when
// every required item has a Verified current version.
func (s *Service) ChecklistForCase(ctx context.Context, caseID string) (*Checklist, error) {
	c, err := s.cases.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	tmpl, err := s.ForEntityType(ctx, c.Entity.EntityType)
	if err != nil {
		return nil, err
	}
	docs, err := s.docs.ByOwner(ctx, docmodels.CaseOwner(caseID))
	if err != nil {
		return nil, err
	}

	current := make(map[string]*docmodels.Document)
	for _, d := range docs {
		if d.IsCurrent {
			current[d.DocumentType] = d
		}
	}

	checklist := &Checklist{
		CaseID:     caseID,
		EntityType: tmpl.EntityType,
		Items:      make([]ChecklistItem, 0, len(tmpl.Documents)),
		Complete:   true,
	}
	for _, req := range tmpl.Documents {
		item := ChecklistItem{TemplateDoc: req, Status: ItemMissing}
		if d, ok := current[req.Name]; ok {
			item.Status = statusFor(d.Status)
			item.CurrentVersion = d.Version
		}
		if req.Required && item.Status != ItemVerified {
			checklist.Complete = false
		}
		checklist.Items = append(checklist.Items, item)
	}
	return checklist, nil
}

func statusFor(s docmodels.Status) string {
	switch s {
	case docmodels.StatusVerified:
		return ItemVerified
	case docmodels.StatusRejected:
		return ItemRejected
	case docmodels.StatusExpired:
		return ItemExpired
	default:
		return ItemSubmitted
	}
}
