package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"casebook/internal/activity"
	"casebook/internal/identity/mocks"
	"casebook/internal/kyccase/models"
	"casebook/internal/kyccase/store"
	dErrors "casebook/pkg/domain-errors"
	"casebook/pkg/platform/sentinel"
	"casebook/pkg/requestcontext"
)

type fakeParties map[string]bool

func (f fakeParties) Exists(_ context.Context, partyID string) (bool, error) {
	return f[partyID], nil
}

type recordedEntry struct {
	CaseID  string
	Action  string
	Details string
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []recordedEntry
}

func (c *captureRecorder) Record(_ context.Context, caseID, action, details string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, recordedEntry{CaseID: caseID, Action: action, Details: details})
}

func (c *captureRecorder) last() recordedEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return recordedEntry{}
	}
	return c.entries[len(c.entries)-1]
}

// flakyCaseStore reports a version conflict for the first n updates, then
// behaves normally.
type flakyCaseStore struct {
	*store.Memory
	conflicts int
}

func (f *flakyCaseStore) Update(ctx context.Context, c *models.Case) error {
	if f.conflicts > 0 {
		f.conflicts--
		return sentinel.ErrConflict
	}
	return f.Memory.Update(ctx, c)
}

type CaseServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	users    *mocks.MockDirectory
	cases    *store.Memory
	recorder *captureRecorder
	svc      *Service
}

func TestCaseServiceSuite(t *testing.T) {
	suite.Run(t, new(CaseServiceSuite))
}

func (s *CaseServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.users = mocks.NewMockDirectory(s.ctrl)
	s.cases = store.NewMemory()
	s.recorder = &captureRecorder{}
	s.svc = New(s.cases, s.cases, s.users,
		fakeParties{"PARTY-AB12CD34": true},
		s.recorder, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func (s *CaseServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func ctxAt(actor string, at time.Time) context.Context {
	ctx := requestcontext.WithActorID(context.Background(), actor)
	return requestcontext.WithTime(ctx, at)
}

func (s *CaseServiceSuite) create(ctx context.Context) *models.Case {
	c, err := s.svc.Create(ctx, CreateRequest{
		Entity: models.EntityProfile{LegalName: "Acme Trading Pte Ltd", EntityType: "Private Limited"},
	})
	s.Require().NoError(err)
	return c
}

func (s *CaseServiceSuite) TestCreateAssignsMonthlySequence() {
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)

	first := s.create(ctxAt("alice", at))
	s.Equal("CASE-202609-0001", first.ID)

	second := s.create(ctxAt("alice", at.Add(time.Hour)))
	s.Equal("CASE-202609-0002", second.ID)

	// A new month restarts the sequence.
	october := s.create(ctxAt("alice", time.Date(2026, time.October, 1, 8, 0, 0, 0, time.UTC)))
	s.Equal("CASE-202610-0001", october.ID)
}

func (s *CaseServiceSuite) TestCreateDefaults() {
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	c := s.create(ctxAt("alice", at))

	s.Equal(models.StatusProspect, c.Status)
	s.Equal(models.StageProspect, c.WorkflowStage)
	s.Equal(models.RiskMedium, c.RiskLevel)
	s.Equal("Singapore", c.Entity.Jurisdiction)
	s.Equal("Non-US Entity", c.Entity.USStatus)
	s.Equal(at.Add(7*24*time.Hour), c.SLADeadline)
	s.Equal("alice", c.CreatedBy)

	entry := s.recorder.last()
	s.Equal(activity.ActionCaseCreated, entry.Action)
	s.Equal(c.ID, entry.CaseID)
}

func (s *CaseServiceSuite) TestCreateWithoutActorFallsBackToSystem() {
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	c := s.create(requestcontext.WithTime(context.Background(), at))
	s.Equal(requestcontext.SystemActor, c.CreatedBy)
}

func (s *CaseServiceSuite) TestCreateValidation() {
	_, err := s.svc.Create(context.Background(), CreateRequest{
		Entity: models.EntityProfile{EntityType: "Private Limited"},
	})
	s.True(dErrors.Is(err, dErrors.CodeValidation))

	_, err = s.svc.Create(context.Background(), CreateRequest{
		Entity:    models.EntityProfile{LegalName: "Acme", EntityType: "Private Limited"},
		RiskLevel: "Extreme",
	})
	s.True(dErrors.Is(err, dErrors.CodeValidation))
}

func (s *CaseServiceSuite) TestStatusTransitionRecomputesStage() {
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	c := s.create(ctxAt("alice", at))

	steps := []struct {
		to    models.Status
		stage models.WorkflowStage
	}{
		{models.StatusKYCReview, models.StageKYCReview},
		{models.StatusPendingApproval, models.StageApproval},
		{models.StatusActive, models.StageCompleted},
	}
	for _, step := range steps {
		updated, err := s.svc.UpdateStatus(ctxAt("bob", at), c.ID, step.to, "")
		s.Require().NoError(err)
		s.Equal(step.to, updated.Status)
		s.Equal(step.stage, updated.WorkflowStage)
	}

	entry := s.recorder.last()
	s.Equal(activity.ActionStatusChanged, entry.Action)
	s.Contains(entry.Details, "Pending Approval")
	s.Contains(entry.Details, "Active")
}

func (s *CaseServiceSuite) TestRejectedCaseCanBeReopened() {
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	c := s.create(ctxAt("alice", at))

	_, err := s.svc.UpdateStatus(ctxAt("bob", at), c.ID, models.StatusRejected, "")
	s.Require().NoError(err)

	reopened, err := s.svc.UpdateStatus(ctxAt("bob", at), c.ID, models.StatusKYCReview, "")
	s.Require().NoError(err)
	s.Equal(models.StatusKYCReview, reopened.Status)
	s.Equal(models.StageKYCReview, reopened.WorkflowStage)
}

func (s *CaseServiceSuite) TestUpdateStatusRegradesRisk() {
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	c := s.create(ctxAt("alice", at))
	s.Require().Equal(models.RiskMedium, c.RiskLevel)

	updated, err := s.svc.UpdateStatus(ctxAt("bob", at), c.ID, models.StatusKYCReview, models.RiskHigh)
	s.Require().NoError(err)
	s.Equal(models.RiskHigh, updated.RiskLevel)
	s.Contains(s.recorder.last().Details, "risk level set to High")

	// An omitted risk level leaves the grading untouched.
	updated, err = s.svc.UpdateStatus(ctxAt("bob", at), c.ID, models.StatusPendingApproval, "")
	s.Require().NoError(err)
	s.Equal(models.RiskHigh, updated.RiskLevel)

	_, err = s.svc.UpdateStatus(ctxAt("bob", at), c.ID, models.StatusActive, "Extreme")
	s.True(dErrors.Is(err, dErrors.CodeValidation))
}

func (s *CaseServiceSuite) TestApprovalDecisionRecordsApprover() {
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	c := s.create(ctxAt("alice", at))

	_, err := s.svc.UpdateStatus(ctxAt("alice", at), c.ID, models.StatusKYCReview, "")
	s.Require().NoError(err)
	_, err = s.svc.UpdateStatus(ctxAt("alice", at), c.ID, models.StatusPendingApproval, "")
	s.Require().NoError(err)

	approved, err := s.svc.UpdateStatus(ctxAt("carol", at), c.ID, models.StatusActive, "")
	s.Require().NoError(err)
	s.Equal("carol", approved.ApprovedBy)
}

func (s *CaseServiceSuite) TestUpdateStatusUnknownStatus() {
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	c := s.create(ctxAt("alice", at))

	_, err := s.svc.UpdateStatus(ctxAt("bob", at), c.ID, "Frozen", "")
	s.True(dErrors.Is(err, dErrors.CodeValidation))
}

func (s *CaseServiceSuite) TestAssign() {
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	c := s.create(ctxAt("alice", at))

	s.users.EXPECT().Exists(gomock.Any(), "bob").Return(true, nil)
	updated, err := s.svc.Assign(ctxAt("alice", at), c.ID, "bob")
	s.Require().NoError(err)
	s.Equal("bob", updated.AssignedTo)
	s.Equal(activity.ActionCaseAssigned, s.recorder.last().Action)
}

func (s *CaseServiceSuite) TestAssignUnknownUser() {
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	c := s.create(ctxAt("alice", at))

	s.users.EXPECT().Exists(gomock.Any(), "ghost").Return(false, nil)
	_, err := s.svc.Assign(ctxAt("alice", at), c.ID, "ghost")
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *CaseServiceSuite) TestLinkPartyEdges() {
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	ctx := ctxAt("alice", at)
	c := s.create(ctx)

	_, err := s.svc.LinkParty(ctx, c.ID, "PARTY-AB12CD34", "Director", 0)
	s.Require().NoError(err)

	// The same pair under a second relationship type is a distinct edge.
	_, err = s.svc.LinkParty(ctx, c.ID, "PARTY-AB12CD34", "Shareholder", 40)
	s.Require().NoError(err)

	// Repeating an existing edge conflicts.
	_, err = s.svc.LinkParty(ctx, c.ID, "PARTY-AB12CD34", "Director", 0)
	s.True(dErrors.Is(err, dErrors.CodeConflict))

	parties, err := s.svc.RelatedParties(ctx, c.ID)
	s.Require().NoError(err)
	s.Len(parties, 2)
}

func (s *CaseServiceSuite) TestUnlinkRemovesExactEdge() {
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	ctx := ctxAt("alice", at)
	c := s.create(ctx)

	_, err := s.svc.LinkParty(ctx, c.ID, "PARTY-AB12CD34", "Director", 0)
	s.Require().NoError(err)
	_, err = s.svc.LinkParty(ctx, c.ID, "PARTY-AB12CD34", "Shareholder", 40)
	s.Require().NoError(err)

	s.Require().NoError(s.svc.UnlinkParty(ctx, c.ID, "PARTY-AB12CD34", "Director"))

	parties, err := s.svc.RelatedParties(ctx, c.ID)
	s.Require().NoError(err)
	s.Require().Len(parties, 1)
	s.Equal("Shareholder", parties[0].RelationshipType)

	err = s.svc.UnlinkParty(ctx, c.ID, "PARTY-AB12CD34", "Director")
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *CaseServiceSuite) TestLinkUnknownParty() {
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	ctx := ctxAt("alice", at)
	c := s.create(ctx)

	_, err := s.svc.LinkParty(ctx, c.ID, "PARTY-MISSING1", "Director", 0)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *CaseServiceSuite) TestCallReportSoftDelete() {
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	ctx := ctxAt("alice", at)
	c := s.create(ctx)

	cr, err := s.svc.AddCallReport(ctx, c.ID, CallReportRequest{
		Subject:    "Kickoff call",
		Summary:    "Discussed onboarding timeline",
		ReportDate: at,
	})
	s.Require().NoError(err)

	s.Require().NoError(s.svc.DeleteCallReport(ctx, c.ID, cr.ID))

	reports, err := s.svc.CallReports(ctx, c.ID)
	s.Require().NoError(err)
	s.Empty(reports, "deleted reports stay out of listings")

	err = s.svc.DeleteCallReport(ctx, c.ID, cr.ID)
	s.True(dErrors.Is(err, dErrors.CodeNotFound), "double delete reports not found")

	s.Equal(activity.ActionCallReportDeleted, s.recorder.last().Action)
}

func (s *CaseServiceSuite) TestUpdateRetriesOnceOnVersionMiss() {
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	flaky := &flakyCaseStore{Memory: s.cases, conflicts: 1}
	svc := New(flaky, s.cases, s.users,
		fakeParties{}, s.recorder, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	c := s.create(ctxAt("alice", at))

	// One version miss is absorbed by re-reading and re-applying.
	updated, err := svc.UpdateStatus(ctxAt("bob", at), c.ID, models.StatusKYCReview, "")
	s.Require().NoError(err)
	s.Equal(models.StatusKYCReview, updated.Status)

	// A second consecutive miss surfaces the conflict.
	flaky.conflicts = 2
	s.users.EXPECT().Exists(gomock.Any(), "bob").Return(true, nil)
	_, err = svc.Assign(ctxAt("bob", at), c.ID, "bob")
	s.True(dErrors.Is(err, dErrors.CodeConflict))
}

func (s *CaseServiceSuite) TestUpdateEntityKeepsDefaults() {
	at := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	ctx := ctxAt("alice", at)
	c := s.create(ctx)

	updated, err := s.svc.UpdateEntity(ctx, c.ID, models.EntityProfile{
		LegalName:  "Acme Trading Pte Ltd",
		EntityType: "Private Limited",
	}, models.CreditDetails{FacilityType: "Term Loan", RequestedAmount: 500000, Currency: "SGD"})
	s.Require().NoError(err)
	s.Equal("Singapore", updated.Entity.Jurisdiction)
	s.Equal("Term Loan", updated.Credit.FacilityType)
	s.Equal(activity.ActionEntityUpdated, s.recorder.last().Action)
}
