package service

import (
	"context"
	"errors"
	"log/slog"

	"casebook/internal/party/models"
	"casebook/internal/party/store"
	dErrors "casebook/pkg/domain-errors"
	"casebook/pkg/platform/sentinel"
	"casebook/pkg/requestcontext"
)

// idRetries bounds regeneration when a random party ID collides.
const idRetries = 2

// Service manages the party register.
type Service struct {
	parties store.Store
	logger  *slog.Logger
}

func New(parties store.Store, logger *slog.Logger) *Service {
	return &Service{parties: parties, logger: logger}
}

// CreateRequest is the intake payload for a new party.
type CreateRequest struct {
	FullName       string
	PartyType      models.PartyType
	Nationality    string
	Identification string
	Email          string
	Phone          string
	Address        string
	DateOfBirth    string
	IsPEP          bool
	PEPCountry     string
}

// Create registers a party with a generated PARTY- identifier. ID collisions
// are vanishingly rare but still handled by regenerating.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Party, error) {
	now := requestcontext.Now(ctx)
	p := &models.Party{
		FullName:       req.FullName,
		PartyType:      req.PartyType,
		Nationality:    req.Nationality,
		Identification: req.Identification,
		Email:          req.Email,
		Phone:          req.Phone,
		Address:        req.Address,
		DateOfBirth:    req.DateOfBirth,
		IsPEP:          req.IsPEP,
		PEPCountry:     req.PEPCountry,
		CreatedBy:      requestcontext.ActorOrSystem(ctx),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var err error
	for attempt := 0; attempt <= idRetries; attempt++ {
		p.ID = models.NewID()
		err = s.parties.Create(ctx, p)
		if err == nil {
			s.logger.InfoContext(ctx, "party created", "party_id", p.ID, "party_type", string(p.PartyType))
			return p, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not save party")
		}
	}
	return nil, dErrors.Wrap(err, dErrors.CodeConflict, "could not allocate a party id")
}

// Get returns one party by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Party, error) {
	p, err := s.parties.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "party "+id+" not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load party")
	}
	return p, nil
}

// Exists reports whether the party is registered. Case and document services
// use it to validate references.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	return s.parties.Exists(ctx, id)
}

// Search lists parties matching the filter, by name.
func (s *Service) Search(ctx context.Context, filter store.SearchFilter) ([]*models.Party, error) {
	if filter.PartyType != "" && !models.ValidPartyType(filter.PartyType) {
		return nil, dErrors.New(dErrors.CodeValidation, "party type must be Individual or Corporate")
	}
	parties, err := s.parties.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not search parties")
	}
	return parties, nil
}

// Update replaces the party's mutable details.
func (s *Service) Update(ctx context.Context, id string, req CreateRequest) (*models.Party, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.FullName = req.FullName
	p.PartyType = req.PartyType
	p.Nationality = req.Nationality
	p.Identification = req.Identification
	p.Email = req.Email
	p.Phone = req.Phone
	p.Address = req.Address
	p.DateOfBirth = req.DateOfBirth
	p.IsPEP = req.IsPEP
	p.PEPCountry = req.PEPCountry
	p.UpdatedAt = requestcontext.Now(ctx)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.parties.Update(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "party "+id+" not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not update party")
	}
	return p, nil
}
