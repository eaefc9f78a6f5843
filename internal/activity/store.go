package activity

import "context"

// Store persists activity entries. It is append-only.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	ListByCase(ctx context.Context, caseID string) ([]*Entry, error)
}
