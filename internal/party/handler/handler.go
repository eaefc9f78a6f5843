package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"casebook/internal/party/models"
	"casebook/internal/party/service"
	"casebook/internal/party/store"
	dErrors "casebook/pkg/domain-errors"
	"casebook/pkg/platform/httputil"
)

// Service is the party operation surface the handler depends on.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Party, error)
	Get(ctx context.Context, id string) (*models.Party, error)
	Search(ctx context.Context, filter store.SearchFilter) ([]*models.Party, error)
	Update(ctx context.Context, id string, req service.CreateRequest) (*models.Party, error)
}

type Handler struct {
	parties Service
	logger  *slog.Logger
}

func New(parties Service, logger *slog.Logger) *Handler {
	return &Handler{parties: parties, logger: logger}
}

// Register mounts the party routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/parties", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleSearch)
		r.Get("/{partyID}", h.handleGet)
		r.Put("/{partyID}", h.handleUpdate)
	})
}

type partyRequest struct {
	FullName       string `json:"fullName"`
	PartyType      string `json:"partyType"`
	Nationality    string `json:"nationality,omitempty"`
	Identification string `json:"identification,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Address        string `json:"address,omitempty"`
	DateOfBirth    string `json:"dateOfBirth,omitempty"`
	IsPEP          bool   `json:"isPep,omitempty"`
	PEPCountry     string `json:"pepCountry,omitempty"`
}

func (r partyRequest) toService() service.CreateRequest {
	return service.CreateRequest{
		FullName:       r.FullName,
		PartyType:      models.PartyType(r.PartyType),
		Nationality:    r.Nationality,
		Identification: r.Identification,
		Email:          r.Email,
		Phone:          r.Phone,
		Address:        r.Address,
		DateOfBirth:    r.DateOfBirth,
		IsPEP:          r.IsPEP,
		PEPCountry:     r.PEPCountry,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req partyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.parties.Create(r.Context(), req.toService())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SearchFilter{
		Query:     q.Get("q"),
		PartyType: models.PartyType(q.Get("partyType")),
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
	parties, err := h.parties.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if parties == nil {
		parties = []*models.Party{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"parties": parties})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.parties.Get(r.Context(), chi.URLParam(r, "partyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req partyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.parties.Update(r.Context(), chi.URLParam(r, "partyID"), req.toService())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}
