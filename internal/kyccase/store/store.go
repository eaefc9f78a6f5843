package store

import (
	"context"
	"time"

	"casebook/internal/kyccase/models"
)

// ListFilter narrows List results. Zero values mean no constraint.
type ListFilter struct {
	Status     models.Status
	RiskLevel  models.RiskLevel
	AssignedTo string
	Limit      int
	Offset     int
}

// TxRunner executes fn inside one database transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store is the persistence boundary for cases and their sub-records.
type Store interface {
	Create(ctx context.Context, c *models.Case) error
	FindByID(ctx context.Context, id string) (*models.Case, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]*models.Case, error)
	// Update persists the case guarded by its row version. It returns
	// sentinel.ErrConflict when the row changed underneath the caller.
	Update(ctx context.Context, c *models.Case) error
	// CountCreatedBetween counts cases created in [from, to), used to
	// allocate the next sequence number for generated case IDs.
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error)

	AddRelatedParty(ctx context.Context, rp *models.RelatedParty) error
	// RemoveRelatedParty deletes the exact (partyID, relationshipType) edge.
	// Other edges between the same pair are untouched.
	RemoveRelatedParty(ctx context.Context, caseID, partyID, relationshipType string) error
	RelatedParties(ctx context.Context, caseID string) ([]*models.RelatedParty, error)
	PartyIDsForCase(ctx context.Context, caseID string) ([]string, error)
	IsPartyRelatedToCase(ctx context.Context, caseID, partyID string) (bool, error)
	CasesForParty(ctx context.Context, partyID string) ([]string, error)

	AddCallReport(ctx context.Context, cr *models.CallReport) error
	UpdateCallReport(ctx context.Context, cr *models.CallReport) error
	// DeleteCallReport marks the report deleted without removing the row.
	DeleteCallReport(ctx context.Context, caseID string, reportID int64, deletedBy string, at time.Time) error
	CallReports(ctx context.Context, caseID string) ([]*models.CallReport, error)
	FindCallReport(ctx context.Context, caseID string, reportID int64) (*models.CallReport, error)
}
