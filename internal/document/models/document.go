package models

import (
	"time"

	dErrors "casebook/pkg/domain-errors"
)

// OwnerType tags which side of the polymorphic ownership a document sits on.
type OwnerType string

const (
	OwnerTypeCase  OwnerType = "CASE"
	OwnerTypeParty OwnerType = "PARTY"
)

// Owner is the tagged union {CaseOwner(id), PartyOwner(id)}. Documents never
// carry nullable dual foreign keys; every lookup goes through this pair.
type Owner struct {
	Type OwnerType `json:"type"`
	ID   string    `json:"id"`
}

// CaseOwner builds an Owner for a case.
func CaseOwner(caseID string) Owner { return Owner{Type: OwnerTypeCase, ID: caseID} }

// PartyOwner builds an Owner for a party.
func PartyOwner(partyID string) Owner { return Owner{Type: OwnerTypeParty, ID: partyID} }

// Validate rejects malformed owner references before they reach the store.
func (o Owner) Validate() error {
	if o.Type != OwnerTypeCase && o.Type != OwnerTypeParty {
		return dErrors.Newf(dErrors.CodeValidation, "unknown owner type %q", string(o.Type))
	}
	if o.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "owner id must not be empty")
	}
	return nil
}

// Status is a document's place in the verification lifecycle.
type Status string

const (
	StatusSubmitted Status = "Submitted"
	StatusVerified  Status = "Verified"
	StatusRejected  Status = "Rejected"
	StatusExpired   Status = "Expired"
)

// Terminal reports whether the status admits no further user-driven
// transition. A rejected document is corrected by uploading a new version,
// never by re-verifying in place.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusRejected || s == StatusExpired
}

// Metadata describes the uploaded file, supplied by the transport layer.
type Metadata struct {
	Filename  string
	MimeType  string
	SizeBytes int64
}

// Document is one immutable version of an uploaded file. Content and version
// number never change after insert; only status, verification fields, and the
// current flag evolve.
type Document struct {
	ID           int64  `json:"id"`
	Owner        Owner  `json:"owner"`
	DocumentType string `json:"documentType"`
	Version      int    `json:"version"`
	Status       Status `json:"status"`

	// IsCurrent marks the version a case checklist treats as
	// authoritative for its (owner, type) tuple. At most one version per
	// tuple carries it, and it is decoupled from upload recency so a case
	// can revert to an earlier verified version.
	IsCurrent bool `json:"isCurrent"`

	// IsAdHoc marks documents uploaded outside the formal checklist.
	IsAdHoc bool `json:"isAdHoc,omitempty"`

	UploadedBy      string     `json:"uploadedBy"`
	VerifiedBy      string     `json:"verifiedBy,omitempty"`
	VerifiedAt      *time.Time `json:"verifiedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	ExpiryDate      *time.Time `json:"expiryDate,omitempty"`
	Comments        string     `json:"comments,omitempty"`

	Filename  string `json:"filename,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
	SizeBytes int64  `json:"sizeBytes"`

	// Content never rides along in JSON responses; downloads stream it.
	Content []byte `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
}

// EligibleForPromotion reports whether this version may be made current.
// Only verified documents carry evidential weight for a checklist.
func (d *Document) EligibleForPromotion() bool {
	return d.Status == StatusVerified
}

// ExpiredBy reports whether the document's expiry date has passed at the
// given instant and the status does not yet reflect it. Expiry is evaluated
// lazily on read rather than by an eager scheduler.
func (d *Document) ExpiredBy(now time.Time) bool {
	return d.ExpiryDate != nil && d.ExpiryDate.Before(now) && d.Status != StatusExpired
}

// StatusSummary counts an owner's documents per verification status.
type StatusSummary struct {
	Total     int `json:"total"`
	Verified  int `json:"verified"`
	Submitted int `json:"submitted"`
	Rejected  int `json:"rejected"`
	Expired   int `json:"expired"`
}
