package requirements

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"casebook/pkg/platform/httputil"
)

// Handler serves requirement template lookups and case checklists.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the template lookup routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/requirements", func(r chi.Router) {
		r.Get("/", h.handleEntityTypes)
		r.Get("/{entityType}", h.handleForEntityType)
	})
}

// CaseRoutes contributes the checklist route to the case subtree.
func (h *Handler) CaseRoutes(r chi.Router) {
	r.Get("/checklist", h.handleChecklist)
}

func (h *Handler) handleEntityTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.svc.EntityTypes(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if types == nil {
		types = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entityTypes": types})
}

func (h *Handler) handleForEntityType(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.svc.ForEntityType(r.Context(), chi.URLParam(r, "entityType"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tmpl)
}

func (h *Handler) handleChecklist(w http.ResponseWriter, r *http.Request) {
	checklist, err := h.svc.ChecklistForCase(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, checklist)
}
