package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"casebook/internal/activity"
	"casebook/internal/kyccase/models"
	"casebook/internal/kyccase/service"
	"casebook/internal/kyccase/store"
	dErrors "casebook/pkg/domain-errors"
	"casebook/pkg/platform/httputil"
)

// Service is the case operation surface the handler depends on.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Case, error)
	Get(ctx context.Context, id string) (*models.Case, error)
	List(ctx context.Context, filter store.ListFilter) ([]*models.Case, error)
	UpdateStatus(ctx context.Context, id string, to models.Status, risk models.RiskLevel) (*models.Case, error)
	Assign(ctx context.Context, id, userID string) (*models.Case, error)
	UpdateEntity(ctx context.Context, id string, entity models.EntityProfile, credit models.CreditDetails) (*models.Case, error)
	LinkParty(ctx context.Context, caseID, partyID, relationshipType string, ownershipPercent float64) (*models.RelatedParty, error)
	UnlinkParty(ctx context.Context, caseID, partyID, relationshipType string) error
	RelatedParties(ctx context.Context, caseID string) ([]*models.RelatedParty, error)
	AddCallReport(ctx context.Context, caseID string, req service.CallReportRequest) (*models.CallReport, error)
	UpdateCallReport(ctx context.Context, caseID string, reportID int64, req service.CallReportRequest) (*models.CallReport, error)
	DeleteCallReport(ctx context.Context, caseID string, reportID int64) error
	CallReports(ctx context.Context, caseID string) ([]*models.CallReport, error)
}

// ActivityLister reads a case's activity log, newest first.
type ActivityLister interface {
	ListByCase(ctx context.Context, caseID string) ([]*activity.Entry, error)
}

type Handler struct {
	cases    Service
	activity ActivityLister
	logger   *slog.Logger
}

func New(cases Service, activityLog ActivityLister, logger *slog.Logger) *Handler {
	return &Handler{cases: cases, activity: activityLog, logger: logger}
}

// Register mounts the case routes. Other domains contribute case-scoped
// routes (documents, checklist) through caseScoped so the /cases subtree has
// a single owner.
func (h *Handler) Register(r chi.Router, caseScoped ...func(chi.Router)) {
	r.Route("/cases", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Route("/{caseID}", func(r chi.Router) {
			for _, register := range caseScoped {
				register(r)
			}
			r.Get("/", h.handleGet)
			r.Patch("/status", h.handleUpdateStatus)
			r.Post("/assign", h.handleAssign)
			r.Put("/entity", h.handleUpdateEntity)
			r.Get("/activity", h.handleActivity)
			r.Route("/parties", func(r chi.Router) {
				r.Post("/", h.handleLinkParty)
				r.Get("/", h.handleRelatedParties)
				r.Delete("/{partyID}", h.handleUnlinkParty)
			})
			r.Route("/call-reports", func(r chi.Router) {
				r.Post("/", h.handleAddCallReport)
				r.Get("/", h.handleCallReports)
				r.Put("/{reportID}", h.handleUpdateCallReport)
				r.Delete("/{reportID}", h.handleDeleteCallReport)
			})
		})
	})
}

type createCaseRequest struct {
	Entity    models.EntityProfile `json:"entity"`
	Credit    models.CreditDetails `json:"credit"`
	RiskLevel string               `json:"riskLevel,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createCaseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.cases.Create(r.Context(), service.CreateRequest{
		Entity:    req.Entity,
		Credit:    req.Credit,
		RiskLevel: models.RiskLevel(req.RiskLevel),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{
		Status:     models.Status(q.Get("status")),
		RiskLevel:  models.RiskLevel(q.Get("riskLevel")),
		AssignedTo: q.Get("assignedTo"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "offset must be a non-negative integer"))
			return
		}
		filter.Offset = n
	}
	cases, err := h.cases.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if cases == nil {
		cases = []*models.Case{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"cases": cases})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.cases.Get(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

type updateStatusRequest struct {
	Status    string `json:"status"`
	RiskLevel string `json:"riskLevel,omitempty"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.cases.UpdateStatus(r.Context(), chi.URLParam(r, "caseID"),
		models.Status(req.Status), models.RiskLevel(req.RiskLevel))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

type assignRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.cases.Assign(r.Context(), chi.URLParam(r, "caseID"), req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

type updateEntityRequest struct {
	Entity models.EntityProfile `json:"entity"`
	Credit models.CreditDetails `json:"credit"`
}

func (h *Handler) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	var req updateEntityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.cases.UpdateEntity(r.Context(), chi.URLParam(r, "caseID"), req.Entity, req.Credit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	if _, err := h.cases.Get(r.Context(), caseID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.activity.ListByCase(r.Context(), caseID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "could not list activity"))
		return
	}
	if entries == nil {
		entries = []*activity.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"activity": entries})
}

type linkPartyRequest struct {
	PartyID          string  `json:"partyId"`
	RelationshipType string  `json:"relationshipType"`
	OwnershipPercent float64 `json:"ownershipPercent,omitempty"`
}

func (h *Handler) handleLinkParty(w http.ResponseWriter, r *http.Request) {
	var req linkPartyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	rp, err := h.cases.LinkParty(r.Context(), chi.URLParam(r, "caseID"),
		req.PartyID, req.RelationshipType, req.OwnershipPercent)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rp)
}

func (h *Handler) handleUnlinkParty(w http.ResponseWriter, r *http.Request) {
	err := h.cases.UnlinkParty(r.Context(),
		chi.URLParam(r, "caseID"),
		chi.URLParam(r, "partyID"),
		r.URL.Query().Get("relationshipType"),
	)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRelatedParties(w http.ResponseWriter, r *http.Request) {
	parties, err := h.cases.RelatedParties(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if parties == nil {
		parties = []*models.RelatedParty{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"relatedParties": parties})
}

type callReportRequest struct {
	Subject    string    `json:"subject"`
	Summary    string    `json:"summary,omitempty"`
	Attendees  string    `json:"attendees,omitempty"`
	ReportDate time.Time `json:"reportDate"`
}

func (r callReportRequest) toService() service.CallReportRequest {
	return service.CallReportRequest{
		Subject:    r.Subject,
		Summary:    r.Summary,
		Attendees:  r.Attendees,
		ReportDate: r.ReportDate,
	}
}

func (h *Handler) handleAddCallReport(w http.ResponseWriter, r *http.Request) {
	var req callReportRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	cr, err := h.cases.AddCallReport(r.Context(), chi.URLParam(r, "caseID"), req.toService())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, cr)
}

func (h *Handler) handleUpdateCallReport(w http.ResponseWriter, r *http.Request) {
	reportID, err := reportID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req callReportRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	cr, err := h.cases.UpdateCallReport(r.Context(), chi.URLParam(r, "caseID"), reportID, req.toService())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cr)
}

func (h *Handler) handleDeleteCallReport(w http.ResponseWriter, r *http.Request) {
	id, err := reportID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.cases.DeleteCallReport(r.Context(), chi.URLParam(r, "caseID"), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCallReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.cases.CallReports(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if reports == nil {
		reports = []*models.CallReport{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"callReports": reports})
}

func reportID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "reportID"), 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "report id must be an integer")
	}
	return id, nil
}
