package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	CasesCreated       prometheus.Counter
	DocumentsUploaded  *prometheus.CounterVec
	DocumentsVerified  prometheus.Counter
	DocumentsRejected  prometheus.Counter
	DocumentsPromoted  prometheus.Counter
	VersionConflicts   prometheus.Counter
	ActivityDropped    prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
	RequirementsLookup *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		CasesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "casebook_cases_created_total",
			Help: "Total number of onboarding cases created",
		}),
		DocumentsUploaded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casebook_documents_uploaded_total",
			Help: "Total document versions uploaded, by owner type",
		}, []string{"owner_type"}),
		DocumentsVerified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "casebook_documents_verified_total",
			Help: "Total documents verified",
		}),
		DocumentsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "casebook_documents_rejected_total",
			Help: "Total documents rejected",
		}),
		DocumentsPromoted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "casebook_documents_promoted_total",
			Help: "Total documents promoted to current",
		}),
		VersionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "casebook_document_version_conflicts_total",
			Help: "Concurrent upload collisions detected via unique constraint",
		}),
		ActivityDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "casebook_activity_entries_dropped_total",
			Help: "Activity log entries lost after the append retry was exhausted",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "casebook_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		RequirementsLookup: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casebook_requirements_lookup_total",
			Help: "Checklist template lookups, by cache outcome",
		}, []string{"outcome"}),
	}
}

// RecordRequirementsHit counts a cache hit in the requirements lookup.
func (m *Metrics) RecordRequirementsHit() {
	m.RequirementsLookup.WithLabelValues("hit").Inc()
}

// RecordRequirementsMiss counts a cache miss in the requirements lookup.
func (m *Metrics) RecordRequirementsMiss() {
	m.RequirementsLookup.WithLabelValues("miss").Inc()
}
