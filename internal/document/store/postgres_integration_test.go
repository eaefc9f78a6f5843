//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"casebook/internal/document/models"
	"casebook/internal/document/store"
	"casebook/pkg/platform/sentinel"
	"casebook/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "documents")
	s.Require().NoError(err)
}

func newTestDocument(owner models.Owner, documentType string, version int) *models.Document {
	return &models.Document{
		Owner:        owner,
		DocumentType: documentType,
		Version:      version,
		Status:       models.StatusSubmitted,
		UploadedBy:   "analyst-1",
		Filename:     documentType + ".pdf",
		MimeType:     "application/pdf",
		SizeBytes:    4,
		Content:      []byte("data"),
		CreatedAt:    time.Now().UTC(),
	}
}

// TestConcurrentInsertSameVersion verifies that when many writers race to
// claim the same version slot, the unique index lets exactly one through.
func (s *PostgresStoreSuite) TestConcurrentInsertSameVersion() {
	ctx := context.Background()
	owner := models.CaseOwner("CASE-202609-0001")
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc := newTestDocument(owner, "Passport", 1)
			err := s.store.Insert(ctx, doc)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrConflict) {
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one insert should claim the version slot")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should get conflict")

	max, err := s.store.MaxVersion(ctx, owner, "Passport")
	s.Require().NoError(err)
	s.Equal(1, max)
}

// TestConcurrentUploadTransactions drives the full read-max-then-insert flow
// concurrently. Losers conflict rather than producing duplicate versions.
func (s *PostgresStoreSuite) TestConcurrentUploadTransactions() {
	ctx := context.Background()
	owner := models.CaseOwner("CASE-202609-0002")
	const goroutines = 10

	var wg sync.WaitGroup
	var versions sync.Map

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				var inserted *models.Document
				err := s.store.RunInTx(ctx, func(ctx context.Context) error {
					max, err := s.store.MaxVersion(ctx, owner, "Passport")
					if err != nil {
						return err
					}
					doc := newTestDocument(owner, "Passport", max+1)
					if err := s.store.Insert(ctx, doc); err != nil {
						return err
					}
					inserted = doc
					return nil
				})
				if err == nil {
					versions.Store(inserted.Version, true)
					return
				}
				if !errors.Is(err, sentinel.ErrConflict) {
					s.T().Errorf("unexpected upload error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	// Every slot 1..N claimed exactly once.
	for v := 1; v <= goroutines; v++ {
		_, ok := versions.Load(v)
		s.True(ok, "version %d should have been claimed", v)
	}

	docs, err := s.store.ListVersions(ctx, owner, "Passport")
	s.Require().NoError(err)
	s.Len(docs, goroutines)
	s.Equal(goroutines, docs[0].Version, "newest version listed first")
}

// TestSingleCurrentInvariant verifies the partial unique index refuses a
// second current version and the clear-then-set pair promotes atomically.
func (s *PostgresStoreSuite) TestSingleCurrentInvariant() {
	ctx := context.Background()
	owner := models.CaseOwner("CASE-202609-0003")

	first := newTestDocument(owner, "Passport", 1)
	second := newTestDocument(owner, "Passport", 2)
	s.Require().NoError(s.store.Insert(ctx, first))
	s.Require().NoError(s.store.Insert(ctx, second))

	s.Require().NoError(s.store.SetCurrent(ctx, first.ID))
	err := s.store.SetCurrent(ctx, second.ID)
	s.ErrorIs(err, sentinel.ErrConflict, "two current versions for one tuple must be impossible")

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.ClearCurrent(ctx, owner, "Passport"); err != nil {
			return err
		}
		return s.store.SetCurrent(ctx, second.ID)
	})
	s.Require().NoError(err)

	current, err := s.store.CurrentVersion(ctx, owner, "Passport")
	s.Require().NoError(err)
	s.Equal(second.ID, current.ID)
}

// TestListingsElideContent verifies list queries skip the file bytes while
// FindByID returns them.
func (s *PostgresStoreSuite) TestListingsElideContent() {
	ctx := context.Background()
	owner := models.PartyOwner("PARTY-AB12CD34")

	doc := newTestDocument(owner, "Passport", 1)
	s.Require().NoError(s.store.Insert(ctx, doc))

	docs, err := s.store.ListByOwner(ctx, owner)
	s.Require().NoError(err)
	s.Require().Len(docs, 1)
	s.Empty(docs[0].Content)

	found, err := s.store.FindByID(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal([]byte("data"), found.Content)
}

func (s *PostgresStoreSuite) TestUpdateStatusRoundTrip() {
	ctx := context.Background()
	owner := models.CaseOwner("CASE-202609-0004")

	doc := newTestDocument(owner, "Passport", 1)
	s.Require().NoError(s.store.Insert(ctx, doc))

	now := time.Now().UTC().Truncate(time.Microsecond)
	doc.Status = models.StatusVerified
	doc.VerifiedBy = "reviewer-9"
	doc.VerifiedAt = &now
	s.Require().NoError(s.store.UpdateStatus(ctx, doc))

	found, err := s.store.FindByID(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, found.Status)
	s.Equal("reviewer-9", found.VerifiedBy)
	s.Require().NotNil(found.VerifiedAt)
	s.WithinDuration(now, *found.VerifiedAt, time.Millisecond)
}

func (s *PostgresStoreSuite) TestNotFound() {
	ctx := context.Background()

	_, err := s.store.FindByID(ctx, 424242)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.CurrentVersion(ctx, models.CaseOwner("CASE-209901-0001"), "Passport")
	s.ErrorIs(err, sentinel.ErrNotFound)

	ghost := newTestDocument(models.CaseOwner("CASE-209901-0001"), "Passport", 1)
	ghost.ID = 424242
	s.ErrorIs(s.store.UpdateStatus(ctx, ghost), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestStatusSummary() {
	ctx := context.Background()
	owner := models.CaseOwner("CASE-202609-0005")

	passport := newTestDocument(owner, "Passport", 1)
	s.Require().NoError(s.store.Insert(ctx, passport))
	bill := newTestDocument(owner, "Utility Bill", 1)
	s.Require().NoError(s.store.Insert(ctx, bill))

	passport.Status = models.StatusVerified
	s.Require().NoError(s.store.UpdateStatus(ctx, passport))

	summary, err := s.store.StatusSummary(ctx, owner)
	s.Require().NoError(err)
	s.Equal(2, summary.Total)
	s.Equal(1, summary.Verified)
	s.Equal(1, summary.Submitted)
}
