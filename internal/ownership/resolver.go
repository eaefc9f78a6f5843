// Package ownership computes which documents apply to a case: the case's own
// documents plus those of every party linked to it. The closure is derived on
// every read, never cached as a persistent structure.
package ownership

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"casebook/internal/document/models"
	dErrors "casebook/pkg/domain-errors"
)

// CaseDirectory answers existence checks against the case registry.
type CaseDirectory interface {
	Exists(ctx context.Context, caseID string) (bool, error)
}

// PartyDirectory answers existence checks against the party registry.
type PartyDirectory interface {
	Exists(ctx context.Context, partyID string) (bool, error)
}

// RelationDirectory exposes the related-party edges between cases and parties.
type RelationDirectory interface {
	// PartyIDsForCase returns the distinct parties linked to a case,
	// regardless of how many relationship types link them.
	PartyIDsForCase(ctx context.Context, caseID string) ([]string, error)
	IsPartyRelatedToCase(ctx context.Context, caseID, partyID string) (bool, error)
}

// DocumentSource lists an owner's document versions.
type DocumentSource interface {
	ListByOwner(ctx context.Context, owner models.Owner) ([]*models.Document, error)
}

// Resolver resolves polymorphic document owners and derives per-case
// document closures.
type Resolver struct {
	cases     CaseDirectory
	parties   PartyDirectory
	relations RelationDirectory
	documents DocumentSource
}

// New constructs a Resolver over the registries.
func New(cases CaseDirectory, parties PartyDirectory, relations RelationDirectory, documents DocumentSource) *Resolver {
	return &Resolver{cases: cases, parties: parties, relations: relations, documents: documents}
}

// Resolve confirms the referenced owner exists.
func (r *Resolver) Resolve(ctx context.Context, owner models.Owner) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	var (
		exists bool
		err    error
	)
	switch owner.Type {
	case models.OwnerTypeCase:
		exists, err = r.cases.Exists(ctx, owner.ID)
	case models.OwnerTypeParty:
		exists, err = r.parties.Exists(ctx, owner.ID)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "resolve document owner")
	}
	if !exists {
		return dErrors.Newf(dErrors.CodeNotFound, "%s %s not found", ownerNoun(owner.Type), owner.ID)
	}
	return nil
}

// DocumentsForCase returns the case's document closure: its own documents
// plus the documents of every related party, each document exactly once even
// when a party is linked through several relationship types. Per-owner
// listings run concurrently since they touch disjoint index ranges.
func (r *Resolver) DocumentsForCase(ctx context.Context, caseID string) ([]*models.Document, error) {
	exists, err := r.cases.Exists(ctx, caseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve case")
	}
	if !exists {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "case %s not found", caseID)
	}

	partyIDs, err := r.relations.PartyIDsForCase(ctx, caseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list related parties")
	}

	owners := make([]models.Owner, 0, len(partyIDs)+1)
	owners = append(owners, models.CaseOwner(caseID))
	for _, partyID := range partyIDs {
		owners = append(owners, models.PartyOwner(partyID))
	}

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		docs []*models.Document
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, owner := range owners {
		g.Go(func() error {
			ownerDocs, err := r.documents.ListByOwner(gctx, owner)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, doc := range ownerDocs {
				if seen[doc.ID] {
					continue
				}
				seen[doc.ID] = true
				docs = append(docs, doc)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "gather case documents")
	}

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Owner != docs[j].Owner {
			if docs[i].Owner.Type != docs[j].Owner.Type {
				return docs[i].Owner.Type == models.OwnerTypeCase
			}
			return docs[i].Owner.ID < docs[j].Owner.ID
		}
		if docs[i].DocumentType != docs[j].DocumentType {
			return docs[i].DocumentType < docs[j].DocumentType
		}
		return docs[i].Version > docs[j].Version
	})
	return docs, nil
}

// IsPartyRelatedToCase reports whether any relationship edge links the party
// to the case. Used to authorize operations on party-owned documents.
func (r *Resolver) IsPartyRelatedToCase(ctx context.Context, caseID, partyID string) (bool, error) {
	related, err := r.relations.IsPartyRelatedToCase(ctx, caseID, partyID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "check party relation")
	}
	return related, nil
}

// DocumentBelongsToCase reports whether the document is directly owned by
// the case or owned by a party related to it.
func (r *Resolver) DocumentBelongsToCase(ctx context.Context, doc *models.Document, caseID string) (bool, error) {
	switch doc.Owner.Type {
	case models.OwnerTypeCase:
		return doc.Owner.ID == caseID, nil
	case models.OwnerTypeParty:
		return r.IsPartyRelatedToCase(ctx, caseID, doc.Owner.ID)
	default:
		return false, nil
	}
}

func ownerNoun(t models.OwnerType) string {
	if t == models.OwnerTypeParty {
		return "party"
	}
	return "case"
}
