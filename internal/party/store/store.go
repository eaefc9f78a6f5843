package store

import (
	"context"

	"casebook/internal/party/models"
)

// SearchFilter narrows List results. Query matches against name and
// identification, case-insensitively.
type SearchFilter struct {
	Query     string
	PartyType models.PartyType
	Limit     int
	Offset    int
}

// Store is the persistence boundary for parties.
type Store interface {
	Create(ctx context.Context, p *models.Party) error
	FindByID(ctx context.Context, id string) (*models.Party, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, filter SearchFilter) ([]*models.Party, error)
	Update(ctx context.Context, p *models.Party) error
}
