package models

import (
	"time"

	dErrors "casebook/pkg/domain-errors"
)

// Status is the lifecycle state of an onboarding case.
type Status string

const (
	StatusProspect        Status = "Prospect"
	StatusKYCReview       Status = "KYC Review"
	StatusPendingApproval Status = "Pending Approval"
	StatusActive          Status = "Active"
	StatusRejected        Status = "Rejected"
)

// ValidStatus reports whether s is one of the recognised case statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusProspect, StatusKYCReview, StatusPendingApproval, StatusActive, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether the case has reached a final decision.
func (s Status) Terminal() bool {
	return s == StatusActive || s == StatusRejected
}

// WorkflowStage is the coarse progress bucket derived from Status. It is
// never set directly; it always tracks the status.
type WorkflowStage string

const (
	StageProspect  WorkflowStage = "prospect"
	StageKYCReview WorkflowStage = "kyc_review"
	StageApproval  WorkflowStage = "approval"
	StageCompleted WorkflowStage = "completed"
)

// StageForStatus maps a case status to its workflow stage. Unrecognised
// statuses resolve to the prospect stage rather than failing.
func StageForStatus(s Status) WorkflowStage {
	switch s {
	case StatusKYCReview:
		return StageKYCReview
	case StatusPendingApproval:
		return StageApproval
	case StatusActive, StatusRejected:
		return StageCompleted
	default:
		return StageProspect
	}
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

func ValidRiskLevel(r RiskLevel) bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// slaDuration is the time allowed from case creation to completion.
const slaDuration = 7 * 24 * time.Hour

// EntityProfile describes the legal entity being onboarded.
type EntityProfile struct {
	LegalName          string `json:"legalName"`
	EntityType         string `json:"entityType"`
	Jurisdiction       string `json:"jurisdiction"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
	TaxID              string `json:"taxId,omitempty"`
	USStatus           string `json:"usStatus"`
	PrimaryContact     string `json:"primaryContact,omitempty"`
	ContactEmail       string `json:"contactEmail,omitempty"`
}

// ApplyDefaults fills the profile fields that have conventional defaults
// when the intake form leaves them blank.
func (p *EntityProfile) ApplyDefaults() {
	if p.Jurisdiction == "" {
		p.Jurisdiction = "Singapore"
	}
	if p.USStatus == "" {
		p.USStatus = "Non-US Entity"
	}
}

// CreditDetails captures the requested facility for credit-seeking entities.
type CreditDetails struct {
	FacilityType    string  `json:"facilityType,omitempty"`
	RequestedAmount float64 `json:"requestedAmount,omitempty"`
	Currency        string  `json:"currency,omitempty"`
	Tenor           string  `json:"tenor,omitempty"`
}

// Case is the aggregate root for one onboarding journey.
type Case struct {
	ID            string        `json:"id"`
	Entity        EntityProfile `json:"entity"`
	Credit        CreditDetails `json:"credit"`
	Status        Status        `json:"status"`
	WorkflowStage WorkflowStage `json:"workflowStage"`
	RiskLevel     RiskLevel     `json:"riskLevel"`
	AssignedTo    string        `json:"assignedTo,omitempty"`
	ApprovedBy    string        `json:"approvedBy,omitempty"`
	SLADeadline   time.Time     `json:"slaDeadline"`
	RowVersion    int64         `json:"-"`
	CreatedBy     string        `json:"createdBy"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// NewCase builds a case in its initial state. The caller supplies the
// generated ID and the creation instant.
func NewCase(id string, entity EntityProfile, credit CreditDetails, risk RiskLevel, createdBy string, now time.Time) *Case {
	entity.ApplyDefaults()
	return &Case{
		ID:            id,
		Entity:        entity,
		Credit:        credit,
		Status:        StatusProspect,
		WorkflowStage: StageProspect,
		RiskLevel:     risk,
		SLADeadline:   now.Add(slaDuration),
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Transition moves the case to a new status, recomputing the workflow stage.
// Any recognised status is reachable from any other, so a Rejected case can
// be reopened by moving it back into review.
func (c *Case) Transition(to Status, now time.Time) error {
	if !ValidStatus(to) {
		return dErrors.New(dErrors.CodeValidation, "unknown case status: "+string(to))
	}
	c.Status = to
	c.WorkflowStage = StageForStatus(to)
	c.UpdatedAt = now
	return nil
}

// OverdueSLA reports whether the case missed its deadline without completing.
func (c *Case) OverdueSLA(now time.Time) bool {
	return !c.Status.Terminal() && now.After(c.SLADeadline)
}

// RelatedParty is one edge between a case and a party. A pair may be linked
// under several relationship types at once; each is a distinct edge.
type RelatedParty struct {
	CaseID           string    `json:"caseId"`
	PartyID          string    `json:"partyId"`
	RelationshipType string    `json:"relationshipType"`
	OwnershipPercent float64   `json:"ownershipPercent,omitempty"`
	LinkedBy         string    `json:"linkedBy"`
	LinkedAt         time.Time `json:"linkedAt"`
}

// CallReport records a client interaction on a case. Deleted reports are
// retained with the deletion flag set.
type CallReport struct {
	ID         int64      `json:"id"`
	CaseID     string     `json:"caseId"`
	Subject    string     `json:"subject"`
	Summary    string     `json:"summary"`
	Attendees  string     `json:"attendees,omitempty"`
	ReportDate time.Time  `json:"reportDate"`
	CreatedBy  string     `json:"createdBy"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Deleted    bool       `json:"-"`
	DeletedAt  *time.Time `json:"-"`
	DeletedBy  string     `json:"-"`
}
