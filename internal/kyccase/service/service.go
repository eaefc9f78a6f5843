package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"casebook/internal/activity"
	"casebook/internal/kyccase/models"
	"casebook/internal/kyccase/store"
	"casebook/internal/platform/metrics"
	dErrors "casebook/pkg/domain-errors"
	"casebook/pkg/platform/sentinel"
	"casebook/pkg/requestcontext"
)

// createRetries bounds how many times case creation re-derives its sequence
// number after losing the ID slot to a concurrent creator.
const createRetries = 2

// updateRetries bounds re-reads after a row_version miss on a case update.
const updateRetries = 1

// ActivityRecorder appends one entry to a case's activity log.
type ActivityRecorder interface {
	Record(ctx context.Context, caseID, action, details string)
}

// UserDirectory answers whether an assignee is a known user.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// PartyDirectory answers whether a party exists before it is linked.
type PartyDirectory interface {
	Exists(ctx context.Context, partyID string) (bool, error)
}

// Service orchestrates the case lifecycle: intake, workflow transitions,
// assignment, related-party links, and call reports.
type Service struct {
	cases    store.Store
	tx       store.TxRunner
	users    UserDirectory
	parties  PartyDirectory
	activity ActivityRecorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func New(cases store.Store, tx store.TxRunner, users UserDirectory, parties PartyDirectory, recorder ActivityRecorder, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		cases:    cases,
		tx:       tx,
		users:    users,
		parties:  parties,
		activity: recorder,
		logger:   logger,
		metrics:  m,
	}
}

// CreateRequest is the intake payload for a new case.
type CreateRequest struct {
	Entity    models.EntityProfile
	Credit    models.CreditDetails
	RiskLevel models.RiskLevel
}

func (r CreateRequest) validate() error {
	if r.Entity.LegalName == "" {
		return dErrors.New(dErrors.CodeValidation, "legal name is required")
	}
	if r.Entity.EntityType == "" {
		return dErrors.New(dErrors.CodeValidation, "entity type is required")
	}
	if r.RiskLevel != "" && !models.ValidRiskLevel(r.RiskLevel) {
		return dErrors.New(dErrors.CodeValidation, "unknown risk level: "+string(r.RiskLevel))
	}
	return nil
}

// Create opens a new case in the Prospect state. The case ID encodes the
// creation month and a per-month sequence number; when two creators race for
// the same number, the loser re-derives it and tries again.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Case, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	risk := req.RiskLevel
	if risk == "" {
		risk = models.RiskMedium
	}
	now := requestcontext.Now(ctx)
	actor := requestcontext.ActorOrSystem(ctx)

	var created *models.Case
	var err error
	for attempt := 0; attempt <= createRetries; attempt++ {
		created, err = s.tryCreate(ctx, req, risk, actor, now)
		if err == nil {
			break
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, err
		}
		s.logger.InfoContext(ctx, "case id taken, regenerating", "attempt", attempt+1)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "could not allocate a case id")
	}

	if s.metrics != nil {
		s.metrics.CasesCreated.Inc()
	}
	s.activity.Record(ctx, created.ID, activity.ActionCaseCreated,
		fmt.Sprintf("Case opened for %s", created.Entity.LegalName))
	s.logger.InfoContext(ctx, "case created", "case_id", created.ID, "risk_level", string(created.RiskLevel))
	return created, nil
}

func (s *Service) tryCreate(ctx context.Context, req CreateRequest, risk models.RiskLevel, actor string, now time.Time) (*models.Case, error) {
	var created *models.Case
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		id, err := s.nextCaseID(ctx, now)
		if err != nil {
			return err
		}
		c := models.NewCase(id, req.Entity, req.Credit, risk, actor, now)
		if err := s.cases.Create(ctx, c); err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// nextCaseID derives CASE-YYYYMM-NNNN from the count of cases already
// created this month.
func (s *Service) nextCaseID(ctx context.Context, now time.Time) (string, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	nextMonth := monthStart.AddDate(0, 1, 0)
	count, err := s.cases.CountCreatedBetween(ctx, monthStart, nextMonth)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not derive case sequence")
	}
	return fmt.Sprintf("CASE-%s-%04d", now.Format("200601"), count+1), nil
}

// Get returns one case by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Case, error) {
	c, err := s.cases.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, id)
	}
	return c, nil
}

// List returns cases matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter store.ListFilter) ([]*models.Case, error) {
	if filter.Status != "" && !models.ValidStatus(filter.Status) {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown case status: "+string(filter.Status))
	}
	cases, err := s.cases.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not list cases")
	}
	return cases, nil
}

// mutate loads the case, applies fn, and writes it back under the row_version
// guard. A version miss means a concurrent writer won; the mutation is
// re-applied against the fresh row once before surfacing the conflict.
func (s *Service) mutate(ctx context.Context, id string, apply func(c *models.Case) error) (*models.Case, error) {
	var lastErr error
	for attempt := 0; attempt <= updateRetries; attempt++ {
		c, err := s.cases.FindByID(ctx, id)
		if err != nil {
			return nil, s.translate(err, id)
		}
		if err := apply(c); err != nil {
			return nil, err
		}
		if err := s.cases.Update(ctx, c); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				lastErr = err
				continue
			}
			return nil, s.translate(err, id)
		}
		return c, nil
	}
	return nil, s.translate(lastErr, id)
}

// UpdateStatus transitions the case to a new workflow status, re-grading the
// risk level in the same call when one is supplied. The workflow stage is
// recomputed from the status, and a decision out of Pending Approval records
// the acting user as the approver.
func (s *Service) UpdateStatus(ctx context.Context, id string, to models.Status, risk models.RiskLevel) (*models.Case, error) {
	if risk != "" && !models.ValidRiskLevel(risk) {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown risk level: "+string(risk))
	}
	var from models.Status
	c, err := s.mutate(ctx, id, func(c *models.Case) error {
		from = c.Status
		if err := c.Transition(to, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if risk != "" {
			c.RiskLevel = risk
		}
		if from == models.StatusPendingApproval && to.Terminal() {
			c.ApprovedBy = requestcontext.ActorOrSystem(ctx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	details := fmt.Sprintf("Status changed from %s to %s", from, to)
	if risk != "" {
		details += fmt.Sprintf("; risk level set to %s", risk)
	}
	s.activity.Record(ctx, c.ID, activity.ActionStatusChanged, details)
	s.logger.InfoContext(ctx, "case status changed",
		"case_id", c.ID, "from", string(from), "to", string(to),
		"stage", string(c.WorkflowStage), "risk_level", string(c.RiskLevel))
	return c, nil
}

// Assign puts the case in a named user's queue.
func (s *Service) Assign(ctx context.Context, id, userID string) (*models.Case, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "assignee is required")
	}
	known, err := s.users.Exists(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not look up assignee")
	}
	if !known {
		return nil, dErrors.New(dErrors.CodeNotFound, "user "+userID+" not found")
	}
	c, err := s.mutate(ctx, id, func(c *models.Case) error {
		c.AssignedTo = userID
		c.UpdatedAt = requestcontext.Now(ctx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.activity.Record(ctx, c.ID, activity.ActionCaseAssigned, "Assigned to "+userID)
	return c, nil
}

// UpdateEntity replaces the case's entity profile and credit details.
func (s *Service) UpdateEntity(ctx context.Context, id string, entity models.EntityProfile, credit models.CreditDetails) (*models.Case, error) {
	if entity.LegalName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "legal name is required")
	}
	entity.ApplyDefaults()
	c, err := s.mutate(ctx, id, func(c *models.Case) error {
		c.Entity = entity
		c.Credit = credit
		c.UpdatedAt = requestcontext.Now(ctx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.activity.Record(ctx, c.ID, activity.ActionEntityUpdated, "Entity profile updated")
	return c, nil
}

// LinkParty attaches a party to the case under a relationship type. The same
// pair may be linked under several types; each link is a distinct edge.
func (s *Service) LinkParty(ctx context.Context, caseID, partyID, relationshipType string, ownershipPercent float64) (*models.RelatedParty, error) {
	if relationshipType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "relationship type is required")
	}
	if ownershipPercent < 0 || ownershipPercent > 100 {
		return nil, dErrors.New(dErrors.CodeValidation, "ownership percent must be between 0 and 100")
	}
	if err := s.requireCase(ctx, caseID); err != nil {
		return nil, err
	}
	known, err := s.parties.Exists(ctx, partyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not look up party")
	}
	if !known {
		return nil, dErrors.New(dErrors.CodeNotFound, "party "+partyID+" not found")
	}
	rp := &models.RelatedParty{
		CaseID:           caseID,
		PartyID:          partyID,
		RelationshipType: relationshipType,
		OwnershipPercent: ownershipPercent,
		LinkedBy:         requestcontext.ActorOrSystem(ctx),
		LinkedAt:         requestcontext.Now(ctx),
	}
	if err := s.cases.AddRelatedParty(ctx, rp); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("party %s is already linked to %s as %s", partyID, caseID, relationshipType))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not link party")
	}
	s.activity.Record(ctx, caseID, activity.ActionPartyLinked,
		fmt.Sprintf("Linked party %s as %s", partyID, relationshipType))
	return rp, nil
}

// UnlinkParty removes exactly the (party, relationship type) edge. Links of
// the same party under other relationship types survive.
func (s *Service) UnlinkParty(ctx context.Context, caseID, partyID, relationshipType string) error {
	if relationshipType == "" {
		return dErrors.New(dErrors.CodeValidation, "relationship type is required")
	}
	if err := s.requireCase(ctx, caseID); err != nil {
		return err
	}
	if err := s.cases.RemoveRelatedParty(ctx, caseID, partyID, relationshipType); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound,
				fmt.Sprintf("party %s is not linked to %s as %s", partyID, caseID, relationshipType))
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not unlink party")
	}
	s.activity.Record(ctx, caseID, activity.ActionPartyUnlinked,
		fmt.Sprintf("Unlinked party %s as %s", partyID, relationshipType))
	return nil
}

// RelatedParties lists the case's party links.
func (s *Service) RelatedParties(ctx context.Context, caseID string) ([]*models.RelatedParty, error) {
	if err := s.requireCase(ctx, caseID); err != nil {
		return nil, err
	}
	parties, err := s.cases.RelatedParties(ctx, caseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not list related parties")
	}
	return parties, nil
}

// CallReportRequest is the payload for adding or editing a call report.
type CallReportRequest struct {
	Subject    string
	Summary    string
	Attendees  string
	ReportDate time.Time
}

func (r CallReportRequest) validate() error {
	if r.Subject == "" {
		return dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	if r.ReportDate.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "report date is required")
	}
	return nil
}

// AddCallReport records a client interaction on the case.
func (s *Service) AddCallReport(ctx context.Context, caseID string, req CallReportRequest) (*models.CallReport, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := s.requireCase(ctx, caseID); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	cr := &models.CallReport{
		CaseID:     caseID,
		Subject:    req.Subject,
		Summary:    req.Summary,
		Attendees:  req.Attendees,
		ReportDate: req.ReportDate,
		CreatedBy:  requestcontext.ActorOrSystem(ctx),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.cases.AddCallReport(ctx, cr); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not save call report")
	}
	s.activity.Record(ctx, caseID, activity.ActionCallReportAdded, "Call report: "+cr.Subject)
	return cr, nil
}

// UpdateCallReport edits an existing report in place.
func (s *Service) UpdateCallReport(ctx context.Context, caseID string, reportID int64, req CallReportRequest) (*models.CallReport, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	cr, err := s.cases.FindCallReport(ctx, caseID, reportID)
	if err != nil {
		return nil, s.translateReport(err, reportID)
	}
	cr.Subject = req.Subject
	cr.Summary = req.Summary
	cr.Attendees = req.Attendees
	cr.ReportDate = req.ReportDate
	cr.UpdatedAt = requestcontext.Now(ctx)
	if err := s.cases.UpdateCallReport(ctx, cr); err != nil {
		return nil, s.translateReport(err, reportID)
	}
	s.activity.Record(ctx, caseID, activity.ActionCallReportUpdated, "Call report updated: "+cr.Subject)
	return cr, nil
}

// DeleteCallReport hides the report from listings. The row is kept with its
// deletion audit fields set.
func (s *Service) DeleteCallReport(ctx context.Context, caseID string, reportID int64) error {
	err := s.cases.DeleteCallReport(ctx, caseID, reportID,
		requestcontext.ActorOrSystem(ctx), requestcontext.Now(ctx))
	if err != nil {
		return s.translateReport(err, reportID)
	}
	s.activity.Record(ctx, caseID, activity.ActionCallReportDeleted,
		fmt.Sprintf("Call report %d deleted", reportID))
	return nil
}

// CallReports lists the case's non-deleted reports, newest first.
func (s *Service) CallReports(ctx context.Context, caseID string) ([]*models.CallReport, error) {
	if err := s.requireCase(ctx, caseID); err != nil {
		return nil, err
	}
	reports, err := s.cases.CallReports(ctx, caseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not list call reports")
	}
	return reports, nil
}

func (s *Service) requireCase(ctx context.Context, caseID string) error {
	exists, err := s.cases.Exists(ctx, caseID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not look up case")
	}
	if !exists {
		return dErrors.New(dErrors.CodeNotFound, "case "+caseID+" not found")
	}
	return nil
}

func (s *Service) translate(err error, id string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "case "+id+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "case "+id+" was modified concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "case operation failed")
	}
}

func (s *Service) translateReport(err error, reportID int64) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("call report %d not found", reportID))
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "call report operation failed")
	}
}
