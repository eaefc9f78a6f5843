// Package http assembles the service's HTTP surface: domain routes, health,
// and metrics.
package http

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dochandler "casebook/internal/document/handler"
	casehandler "casebook/internal/kyccase/handler"
	partyhandler "casebook/internal/party/handler"
	"casebook/internal/platform/metrics"
	"casebook/internal/platform/middleware"
	"casebook/internal/platform/redis"
	"casebook/internal/requirements"
	"casebook/pkg/platform/httputil"
)

// Deps carries everything the router needs wired in.
type Deps struct {
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	DB           *sql.DB
	Redis        *redis.Client
	Cases        *casehandler.Handler
	Parties      *partyhandler.Handler
	Documents    *dochandler.Handler
	Requirements *requirements.Handler
	ActorHeader  string
}

// NewRouter builds the chi router with the standard middleware stack.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Actor(deps.ActorHeader))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Latency(deps.Metrics))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/healthz", healthHandler(deps))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		deps.Cases.Register(r, deps.Documents.CaseRoutes, deps.Requirements.CaseRoutes)
		deps.Parties.Register(r)
		deps.Documents.Register(r)
		deps.Requirements.Register(r)
	})

	return r
}

func healthHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := http.StatusOK
		checks := map[string]string{"postgres": "ok"}

		if err := deps.DB.PingContext(ctx); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if deps.Redis != nil {
			checks["redis"] = "ok"
			if err := deps.Redis.Health(ctx); err != nil {
				checks["redis"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}

		state := "up"
		if status != http.StatusOK {
			state = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": state, "checks": checks})
	}
}
