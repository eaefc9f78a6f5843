package service

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casebook/internal/party/models"
	"casebook/internal/party/store"
	dErrors "casebook/pkg/domain-errors"
	"casebook/pkg/requestcontext"
	"casebook/pkg/testutil"
)

var partyIDPattern = regexp.MustCompile(`^PARTY-[0-9A-F]{8}$`)

func newService() *Service {
	return New(store.NewMemory(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateParty(t *testing.T) {
	svc := newService()
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(requestcontext.WithActorID(context.Background(), "alice"), at)

	p, err := svc.Create(ctx, CreateRequest{
		FullName:    "Jane Tan",
		PartyType:   models.TypeIndividual,
		Nationality: "Singaporean",
	})
	require.NoError(t, err)

	assert.Regexp(t, partyIDPattern, p.ID)
	assert.Equal(t, "alice", p.CreatedBy)
	assert.Equal(t, at, p.CreatedAt)

	exists, err := svc.Exists(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreatePartyValidation(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{PartyType: models.TypeIndividual})
	assert.True(t, dErrors.Is(err, dErrors.CodeValidation))

	_, err = svc.Create(ctx, CreateRequest{FullName: "Jane Tan", PartyType: "Robot"})
	assert.True(t, dErrors.Is(err, dErrors.CodeValidation))
}

func TestGetUnknownParty(t *testing.T) {
	svc := newService()

	_, err := svc.Get(context.Background(), "PARTY-DEADBEEF")
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
}

func TestSearchParties(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{FullName: "Jane Tan", PartyType: models.TypeIndividual})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateRequest{FullName: "Acme Holdings", PartyType: models.TypeCorporate})
	require.NoError(t, err)

	found, err := svc.Search(ctx, store.SearchFilter{Query: "jane"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Jane Tan", found[0].FullName)

	corporates, err := svc.Search(ctx, store.SearchFilter{PartyType: models.TypeCorporate})
	require.NoError(t, err)
	require.Len(t, corporates, 1)
	assert.Equal(t, "Acme Holdings", corporates[0].FullName)

	_, err = svc.Search(ctx, store.SearchFilter{PartyType: "Robot"})
	assert.True(t, dErrors.Is(err, dErrors.CodeValidation))
}

func TestPartyPEPDetails(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	testutil.Given(t, "a party flagged as politically exposed", func(t *testing.T) {
		p, err := svc.Create(ctx, CreateRequest{
			FullName:   "Jordan Lim",
			PartyType:  models.TypeIndividual,
			Phone:      "+65 8000 0000",
			Address:    "1 Raffles Place",
			IsPEP:      true,
			PEPCountry: "Malaysia",
		})
		require.NoError(t, err)

		testutil.Then(t, "the flag and country survive a round trip", func(t *testing.T) {
			found, err := svc.Get(ctx, p.ID)
			require.NoError(t, err)
			assert.True(t, found.IsPEP)
			assert.Equal(t, "Malaysia", found.PEPCountry)
			assert.Equal(t, "+65 8000 0000", found.Phone)
			assert.Equal(t, "1 Raffles Place", found.Address)
		})

		testutil.When(t, "the flag is cleared on update", func(t *testing.T) {
			_, err := svc.Update(ctx, p.ID, CreateRequest{
				FullName:  "Jordan Lim",
				PartyType: models.TypeIndividual,
			})
			require.NoError(t, err)

			found, err := svc.Get(ctx, p.ID)
			require.NoError(t, err)
			assert.False(t, found.IsPEP)
			assert.Empty(t, found.PEPCountry)
		})
	})
}

func TestPEPCountryRequiresFlag(t *testing.T) {
	svc := newService()

	_, err := svc.Create(context.Background(), CreateRequest{
		FullName:   "Jordan Lim",
		PartyType:  models.TypeIndividual,
		PEPCountry: "Malaysia",
	})
	assert.True(t, dErrors.Is(err, dErrors.CodeValidation))
}

func TestUpdateParty(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateRequest{FullName: "Jane Tan", PartyType: models.TypeIndividual})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, p.ID, CreateRequest{
		FullName:  "Jane Tan-Lee",
		PartyType: models.TypeIndividual,
		Email:     "jane@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Jane Tan-Lee", updated.FullName)
	assert.Equal(t, "jane@example.com", updated.Email)
	assert.Equal(t, p.ID, updated.ID, "identifier is stable across updates")
}
