package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "casebook/pkg/domain-errors"
)

// PartyType distinguishes natural persons from legal entities.
type PartyType string

const (
	TypeIndividual PartyType = "Individual"
	TypeCorporate  PartyType = "Corporate"
)

func ValidPartyType(t PartyType) bool {
	return t == TypeIndividual || t == TypeCorporate
}

// Party is a person or entity that can be linked to cases and own documents
// independently of any single case.
type Party struct {
	ID             string    `json:"id"`
	FullName       string    `json:"fullName"`
	PartyType      PartyType `json:"partyType"`
	Nationality    string    `json:"nationality,omitempty"`
	Identification string    `json:"identification,omitempty"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Address        string    `json:"address,omitempty"`
	DateOfBirth    string    `json:"dateOfBirth,omitempty"`
	IsPEP          bool      `json:"isPep"`
	PEPCountry     string    `json:"pepCountry,omitempty"`
	CreatedBy      string    `json:"createdBy"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewID generates a party identifier of the form PARTY- followed by the
// first eight hex characters of a random UUID, uppercased.
func NewID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "PARTY-" + strings.ToUpper(raw[:8])
}

// Validate checks the fields required before a party can be saved.
func (p *Party) Validate() error {
	if p.FullName == "" {
		return dErrors.New(dErrors.CodeValidation, "full name is required")
	}
	if !ValidPartyType(p.PartyType) {
		return dErrors.New(dErrors.CodeValidation, "party type must be Individual or Corporate")
	}
	if p.PEPCountry != "" && !p.IsPEP {
		return dErrors.New(dErrors.CodeValidation, "pep country requires the pep flag")
	}
	return nil
}
