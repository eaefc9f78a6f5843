package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casebook/internal/activity"
	"casebook/internal/identity"
	"casebook/internal/kyccase/models"
	"casebook/internal/kyccase/service"
	"casebook/internal/kyccase/store"
	"casebook/internal/platform/middleware"
	dErrors "casebook/pkg/domain-errors"
	"casebook/pkg/requestcontext"
	"casebook/pkg/testutil"
)

var caseIDPattern = regexp.MustCompile(`^CASE-\d{6}-\d{4}$`)

// syncRecorder appends activity entries inline so handler tests can read
// them back through the activity endpoint without a worker goroutine.
type syncRecorder struct {
	store *activity.MemoryStore
}

func (r *syncRecorder) Record(ctx context.Context, caseID, action, details string) {
	_ = r.store.Append(ctx, &activity.Entry{
		CaseID:    caseID,
		Action:    action,
		Details:   details,
		Actor:     requestcontext.ActorOrSystem(ctx),
		CreatedAt: requestcontext.Now(ctx),
	})
}

type knownParties map[string]bool

func (p knownParties) Exists(_ context.Context, partyID string) (bool, error) {
	return p[partyID], nil
}

func newCaseRouter(t *testing.T) http.Handler {
	t.Helper()
	mem := store.NewMemory()
	activityLog := activity.NewMemoryStore()
	users := identity.NewStaticDirectory(identity.User{ID: "analyst-1", DisplayName: "Analyst One"})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := service.New(mem, mem, users, knownParties{"PARTY-AB12CD34": true}, &syncRecorder{store: activityLog}, logger, nil)
	h := New(svc, activityLog, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestTime)
	r.Use(middleware.Actor("X-Actor-ID"))
	h.Register(r)
	return r
}

func createCase(t *testing.T, router http.Handler, actor string) *models.Case {
	t.Helper()
	req := testutil.NewJSONRequest(t, http.MethodPost, "/cases", map[string]any{
		"entity": map[string]any{
			"legalName":  "Acme Trading Pte Ltd",
			"entityType": "Private Limited",
		},
	})
	req.Header.Set("X-Actor-ID", actor)
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	return testutil.UnmarshalResponse[models.Case](t, rr)
}

func TestCreateCase(t *testing.T) {
	router := newCaseRouter(t)

	c := createCase(t, router, "analyst-1")
	assert.Regexp(t, caseIDPattern, c.ID)
	assert.Equal(t, models.StatusProspect, c.Status)
	assert.Equal(t, models.StageProspect, c.WorkflowStage)
	assert.Equal(t, models.RiskMedium, c.RiskLevel)
	assert.Equal(t, "Singapore", c.Entity.Jurisdiction)
	assert.Equal(t, "Non-US Entity", c.Entity.USStatus)
	assert.Equal(t, "analyst-1", c.CreatedBy)
	assert.Equal(t, c.CreatedAt.Add(7*24*time.Hour), c.SLADeadline)
}

func TestCreateCaseRejectsUnknownFields(t *testing.T) {
	router := newCaseRouter(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/cases", map[string]any{
		"entity":   map[string]any{"legalName": "Acme", "entityType": "Private Limited"},
		"surprise": true,
	})
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, dErrors.CodeBadRequest)
}

func TestGetUnknownCase(t *testing.T) {
	router := newCaseRouter(t)

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/cases/CASE-209901-0001"))
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, dErrors.CodeNotFound)
}

func TestStatusTransitions(t *testing.T) {
	router := newCaseRouter(t)
	c := createCase(t, router, "analyst-1")

	req := testutil.NewJSONRequest(t, http.MethodPatch, "/cases/"+c.ID+"/status", map[string]string{"status": "KYC Review"})
	req.Header.Set("X-Actor-ID", "analyst-1")
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	updated := testutil.UnmarshalResponse[models.Case](t, rr)
	assert.Equal(t, models.StatusKYCReview, updated.Status)
	assert.Equal(t, models.StageKYCReview, updated.WorkflowStage)

	req = testutil.NewJSONRequest(t, http.MethodPatch, "/cases/"+c.ID+"/status", map[string]string{"status": "Rejected"})
	rr = testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	// A rejected case can be reopened for another review round.
	req = testutil.NewJSONRequest(t, http.MethodPatch, "/cases/"+c.ID+"/status", map[string]string{"status": "KYC Review"})
	rr = testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	reopened := testutil.UnmarshalResponse[models.Case](t, rr)
	assert.Equal(t, models.StatusKYCReview, reopened.Status)
	assert.Equal(t, models.StageKYCReview, reopened.WorkflowStage)
}

func TestStatusChangeCarriesRiskLevel(t *testing.T) {
	router := newCaseRouter(t)
	c := createCase(t, router, "analyst-1")

	req := testutil.NewJSONRequest(t, http.MethodPatch, "/cases/"+c.ID+"/status", map[string]string{
		"status":    "KYC Review",
		"riskLevel": "High",
	})
	req.Header.Set("X-Actor-ID", "analyst-1")
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	updated := testutil.UnmarshalResponse[models.Case](t, rr)
	assert.Equal(t, models.RiskHigh, updated.RiskLevel)

	req = testutil.NewJSONRequest(t, http.MethodPatch, "/cases/"+c.ID+"/status", map[string]string{
		"status":    "Pending Approval",
		"riskLevel": "Extreme",
	})
	rr = testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, dErrors.CodeValidation)
}

func TestApprovalRecordsApprover(t *testing.T) {
	router := newCaseRouter(t)
	c := createCase(t, router, "analyst-1")

	for _, status := range []string{"KYC Review", "Pending Approval"} {
		req := testutil.NewJSONRequest(t, http.MethodPatch, "/cases/"+c.ID+"/status", map[string]string{"status": status})
		req.Header.Set("X-Actor-ID", "analyst-1")
		testutil.AssertStatus(t, testutil.DoRequest(router, req), http.StatusOK)
	}

	req := testutil.NewJSONRequest(t, http.MethodPatch, "/cases/"+c.ID+"/status", map[string]string{"status": "Active"})
	req.Header.Set("X-Actor-ID", "approver-7")
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	approved := testutil.UnmarshalResponse[models.Case](t, rr)
	assert.Equal(t, "approver-7", approved.ApprovedBy)
}

func TestStatusUnknownValue(t *testing.T) {
	router := newCaseRouter(t)
	c := createCase(t, router, "analyst-1")

	req := testutil.NewJSONRequest(t, http.MethodPatch, "/cases/"+c.ID+"/status", map[string]string{"status": "Archived"})
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, dErrors.CodeValidation)
}

func TestAssign(t *testing.T) {
	router := newCaseRouter(t)
	c := createCase(t, router, "analyst-1")

	req := testutil.NewJSONRequest(t, http.MethodPost, "/cases/"+c.ID+"/assign", map[string]string{"userId": "analyst-1"})
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	updated := testutil.UnmarshalResponse[models.Case](t, rr)
	assert.Equal(t, "analyst-1", updated.AssignedTo)

	req = testutil.NewJSONRequest(t, http.MethodPost, "/cases/"+c.ID+"/assign", map[string]string{"userId": "nobody"})
	rr = testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, dErrors.CodeNotFound)
}

func TestListCasesFilters(t *testing.T) {
	router := newCaseRouter(t)
	first := createCase(t, router, "analyst-1")
	createCase(t, router, "analyst-1")

	req := testutil.NewJSONRequest(t, http.MethodPatch, "/cases/"+first.ID+"/status", map[string]string{"status": "KYC Review"})
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/cases?status=KYC+Review"))
	testutil.AssertStatus(t, rr, http.StatusOK)
	listing := testutil.UnmarshalResponse[struct {
		Cases []*models.Case `json:"cases"`
	}](t, rr)
	require.Len(t, listing.Cases, 1)
	assert.Equal(t, first.ID, listing.Cases[0].ID)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/cases?limit=nope"))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, dErrors.CodeBadRequest)
}

func TestRelatedPartyLifecycle(t *testing.T) {
	router := newCaseRouter(t)
	c := createCase(t, router, "analyst-1")

	link := func(relationship string) *httptest.ResponseRecorder {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/cases/"+c.ID+"/parties", map[string]any{
			"partyId":          "PARTY-AB12CD34",
			"relationshipType": relationship,
			"ownershipPercent": 40,
		})
		req.Header.Set("X-Actor-ID", "analyst-1")
		return testutil.DoRequest(router, req)
	}

	rr := link("Director")
	testutil.AssertStatus(t, rr, http.StatusCreated)
	edge := testutil.UnmarshalResponse[models.RelatedParty](t, rr)
	assert.Equal(t, "analyst-1", edge.LinkedBy)

	// Same pair under a second relationship type is a distinct edge.
	testutil.AssertStatus(t, link("Shareholder"), http.StatusCreated)

	// Repeating an existing edge conflicts.
	testutil.AssertStatusAndError(t, link("Director"), http.StatusConflict, dErrors.CodeConflict)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/cases/"+c.ID+"/parties"))
	testutil.AssertStatus(t, rr, http.StatusOK)
	listing := testutil.UnmarshalResponse[struct {
		RelatedParties []*models.RelatedParty `json:"relatedParties"`
	}](t, rr)
	assert.Len(t, listing.RelatedParties, 2)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodDelete,
		"/cases/"+c.ID+"/parties/PARTY-AB12CD34?relationshipType=Director"))
	testutil.AssertStatus(t, rr, http.StatusNoContent)

	// Only the named edge is gone.
	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodDelete,
		"/cases/"+c.ID+"/parties/PARTY-AB12CD34?relationshipType=Director"))
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, dErrors.CodeNotFound)
}

func TestLinkUnknownParty(t *testing.T) {
	router := newCaseRouter(t)
	c := createCase(t, router, "analyst-1")

	req := testutil.NewJSONRequest(t, http.MethodPost, "/cases/"+c.ID+"/parties", map[string]any{
		"partyId":          "PARTY-00000000",
		"relationshipType": "Director",
	})
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, dErrors.CodeNotFound)
}

func TestCallReportLifecycle(t *testing.T) {
	router := newCaseRouter(t)
	c := createCase(t, router, "analyst-1")

	req := testutil.NewJSONRequest(t, http.MethodPost, "/cases/"+c.ID+"/call-reports", map[string]any{
		"subject":    "Kickoff call",
		"summary":    "Walked through the document checklist.",
		"reportDate": time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	})
	req.Header.Set("X-Actor-ID", "analyst-1")
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	report := testutil.UnmarshalResponse[models.CallReport](t, rr)
	require.NotZero(t, report.ID)
	assert.Equal(t, "analyst-1", report.CreatedBy)

	req = testutil.NewJSONRequest(t, http.MethodPut,
		"/cases/"+c.ID+"/call-reports/"+strconv.FormatInt(report.ID, 10), map[string]any{
			"subject":    "Kickoff call",
			"summary":    "Checklist walkthrough plus facility sizing.",
			"reportDate": report.ReportDate,
		})
	rr = testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodDelete,
		"/cases/"+c.ID+"/call-reports/"+strconv.FormatInt(report.ID, 10)))
	testutil.AssertStatus(t, rr, http.StatusNoContent)

	// Soft-deleted reports disappear from listings.
	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/cases/"+c.ID+"/call-reports"))
	testutil.AssertStatus(t, rr, http.StatusOK)
	listing := testutil.UnmarshalResponse[struct {
		CallReports []*models.CallReport `json:"callReports"`
	}](t, rr)
	assert.Empty(t, listing.CallReports)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodDelete, "/cases/"+c.ID+"/call-reports/nope"))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, dErrors.CodeBadRequest)
}

func TestActivityTrail(t *testing.T) {
	router := newCaseRouter(t)
	c := createCase(t, router, "analyst-1")

	req := testutil.NewJSONRequest(t, http.MethodPatch, "/cases/"+c.ID+"/status", map[string]string{"status": "KYC Review"})
	req.Header.Set("X-Actor-ID", "reviewer-9")
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/cases/"+c.ID+"/activity"))
	testutil.AssertStatus(t, rr, http.StatusOK)
	trail := testutil.UnmarshalResponse[struct {
		Activity []*activity.Entry `json:"activity"`
	}](t, rr)
	require.Len(t, trail.Activity, 2)
	assert.Equal(t, activity.ActionStatusChanged, trail.Activity[0].Action)
	assert.Equal(t, "reviewer-9", trail.Activity[0].Actor)
	assert.Equal(t, activity.ActionCaseCreated, trail.Activity[1].Action)
	assert.Equal(t, "analyst-1", trail.Activity[1].Actor)
}
