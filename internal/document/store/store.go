package store

import (
	"context"

	"casebook/internal/document/models"
)

// Store persists document versions. Version rows are append-only; updates
// touch only status, verification fields, and the current flag.
type Store interface {
	// Insert persists a new version and assigns its row ID. Returns
	// sentinel.ErrConflict when the (owner, type, version) tuple is
	// already taken by a concurrent upload.
	Insert(ctx context.Context, doc *models.Document) error

	FindByID(ctx context.Context, id int64) (*models.Document, error)

	// ListByOwner returns every version of every document type the owner
	// holds, content elided.
	ListByOwner(ctx context.Context, owner models.Owner) ([]*models.Document, error)

	// ListVersions returns all versions for one (owner, type) tuple,
	// descending by version, content elided.
	ListVersions(ctx context.Context, owner models.Owner, documentType string) ([]*models.Document, error)

	// CurrentVersion returns the version flagged current for the tuple,
	// or sentinel.ErrNotFound when none is flagged.
	CurrentVersion(ctx context.Context, owner models.Owner, documentType string) (*models.Document, error)

	// MaxVersion returns the highest version for the tuple, 0 if none.
	MaxVersion(ctx context.Context, owner models.Owner, documentType string) (int, error)

	// ClearCurrent drops the current flag from every version of the tuple.
	ClearCurrent(ctx context.Context, owner models.Owner, documentType string) error

	// SetCurrent flags one version current. Callers pair it with
	// ClearCurrent inside a transaction.
	SetCurrent(ctx context.Context, id int64) error

	// UpdateStatus persists status, verifier, verification timestamp, and
	// rejection reason for one version.
	UpdateStatus(ctx context.Context, doc *models.Document) error

	// StatusSummary counts the owner's documents per status.
	StatusSummary(ctx context.Context, owner models.Owner) (models.StatusSummary, error)
}

// TxRunner executes fn inside one transactional scope. Implementations carry
// the transaction through the context so every Store call inside fn joins it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
