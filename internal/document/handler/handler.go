package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"casebook/internal/document/models"
	"casebook/internal/document/service"
	dErrors "casebook/pkg/domain-errors"
	"casebook/pkg/platform/httputil"
)

// Service is the document operation surface the handler depends on.
type Service interface {
	Upload(ctx context.Context, req service.UploadRequest) (*models.Document, error)
	Verify(ctx context.Context, id int64) (*models.Document, error)
	Reject(ctx context.Context, id int64, reason string) (*models.Document, error)
	MakeCurrent(ctx context.Context, id int64) (*models.Document, error)
	Versions(ctx context.Context, owner models.Owner, documentType string) ([]*models.Document, error)
	Current(ctx context.Context, owner models.Owner, documentType string) (*models.Document, error)
	ByOwner(ctx context.Context, owner models.Owner) ([]*models.Document, error)
	Download(ctx context.Context, id int64) (*service.DownloadPayload, error)
	Summary(ctx context.Context, owner models.Owner) (models.StatusSummary, error)
}

// CaseClosure assembles the full document set for a case, including
// documents held by its related parties.
type CaseClosure interface {
	DocumentsForCase(ctx context.Context, caseID string) ([]*models.Document, error)
}

type Handler struct {
	docs    Service
	closure CaseClosure
	logger  *slog.Logger
}

func New(docs Service, closure CaseClosure, logger *slog.Logger) *Handler {
	return &Handler{docs: docs, closure: closure, logger: logger}
}

// Register mounts the document routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Post("/", h.handleUpload)
		r.Get("/", h.handleByOwner)
		r.Get("/versions", h.handleVersions)
		r.Get("/current", h.handleCurrent)
		r.Get("/summary", h.handleSummary)
		r.Route("/{documentID}", func(r chi.Router) {
			r.Patch("/status", h.handleStatus)
			r.Post("/make-current", h.handleMakeCurrent)
			r.Get("/download", h.handleDownload)
		})
	})
}

// CaseRoutes contributes the aggregated documents route to the case subtree.
func (h *Handler) CaseRoutes(r chi.Router) {
	r.Get("/documents", h.handleCaseDocuments)
}

type uploadRequest struct {
	OwnerType    string     `json:"ownerType"`
	OwnerID      string     `json:"ownerId"`
	DocumentType string     `json:"documentType"`
	Content      []byte     `json:"content"`
	Filename     string     `json:"filename"`
	MimeType     string     `json:"mimeType,omitempty"`
	ExpiryDate   *time.Time `json:"expiryDate,omitempty"`
	Comments     string     `json:"comments,omitempty"`
	IsAdHoc      bool       `json:"isAdHoc,omitempty"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	doc, err := h.docs.Upload(r.Context(), service.UploadRequest{
		Owner:        models.Owner{Type: models.OwnerType(req.OwnerType), ID: req.OwnerID},
		DocumentType: req.DocumentType,
		Content:      req.Content,
		Metadata: models.Metadata{
			Filename:  req.Filename,
			MimeType:  mimeType,
			SizeBytes: int64(len(req.Content)),
		},
		ExpiryDate: req.ExpiryDate,
		Comments:   req.Comments,
		IsAdHoc:    req.IsAdHoc,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

type statusRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req statusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	var doc *models.Document
	switch req.Action {
	case "verify":
		doc, err = h.docs.Verify(r.Context(), id)
	case "reject":
		doc, err = h.docs.Reject(r.Context(), id, req.Reason)
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "action must be verify or reject"))
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleMakeCurrent(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, err := h.docs.MakeCurrent(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	payload, err := h.docs.Download(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", payload.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+payload.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(payload.Content)))
	_, _ = w.Write(payload.Content)
}

func (h *Handler) handleByOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	docs, err := h.docs.ByOwner(r.Context(), owner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeDocuments(w, docs)
}

func (h *Handler) handleVersions(w http.ResponseWriter, r *http.Request) {
	owner, documentType, err := ownerAndType(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	docs, err := h.docs.Versions(r.Context(), owner, documentType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeDocuments(w, docs)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	owner, documentType, err := ownerAndType(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, err := h.docs.Current(r.Context(), owner, documentType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	summary, err := h.docs.Summary(r.Context(), owner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleCaseDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.closure.DocumentsForCase(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeDocuments(w, docs)
}

func writeDocuments(w http.ResponseWriter, docs []*models.Document) {
	if docs == nil {
		docs = []*models.Document{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func documentID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "documentID"), 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "document id must be an integer")
	}
	return id, nil
}

func ownerFromQuery(r *http.Request) (models.Owner, error) {
	owner := models.Owner{
		Type: models.OwnerType(r.URL.Query().Get("ownerType")),
		ID:   r.URL.Query().Get("ownerId"),
	}
	if err := owner.Validate(); err != nil {
		return models.Owner{}, err
	}
	return owner, nil
}

func ownerAndType(r *http.Request) (models.Owner, string, error) {
	owner, err := ownerFromQuery(r)
	if err != nil {
		return models.Owner{}, "", err
	}
	documentType := r.URL.Query().Get("documentType")
	if documentType == "" {
		return models.Owner{}, "", dErrors.New(dErrors.CodeValidation, "document type must not be empty")
	}
	return owner, documentType, nil
}
