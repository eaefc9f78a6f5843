package activity

import (
	"context"
	"log/slog"
	"time"

	"casebook/internal/platform/metrics"
	"casebook/pkg/requestcontext"
)

// appendTimeout bounds each store write so a slow store cannot wedge the
// worker behind one entry.
const appendTimeout = 5 * time.Second

// Recorder captures activity entries from domain services and hands them to
// a background worker. Appends are best-effort: they are retried once and
// their loss is observable (log + counter), but they never block or fail the
// primary mutation they describe.
type Recorder struct {
	store   Store
	inbox   chan Entry
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRecorder constructs a Recorder with a bounded inbox. metrics may be nil
// in tests.
func NewRecorder(store Store, logger *slog.Logger, m *metrics.Metrics, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{
		store:   store,
		inbox:   make(chan Entry, buffer),
		logger:  logger,
		metrics: m,
	}
}

// Record enqueues an entry attributed to the acting user from the context.
// Actor falls back to SYSTEM only when the request carried no identity.
func (r *Recorder) Record(ctx context.Context, caseID, action, details string) {
	entry := Entry{
		CaseID:    caseID,
		Action:    action,
		Details:   details,
		Actor:     requestcontext.ActorOrSystem(ctx),
		CreatedAt: requestcontext.Now(ctx),
	}
	select {
	case r.inbox <- entry:
	default:
		r.dropped(ctx, entry, "activity inbox full")
	}
}

// Run consumes the inbox until ctx is cancelled, then drains whatever is
// already queued before returning.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return ctx.Err()
		case entry := <-r.inbox:
			r.append(entry)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case entry := <-r.inbox:
			r.append(entry)
		default:
			return
		}
	}
}

// append writes one entry, retrying once. The worker uses its own context:
// the originating request may already be gone.
func (r *Recorder) append(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	err := r.store.Append(ctx, &entry)
	if err != nil {
		err = r.store.Append(ctx, &entry)
	}
	if err != nil {
		r.dropped(ctx, entry, err.Error())
	}
}

func (r *Recorder) dropped(ctx context.Context, entry Entry, reason string) {
	if r.metrics != nil {
		r.metrics.ActivityDropped.Inc()
	}
	r.logger.ErrorContext(ctx, "activity entry lost",
		"case_id", entry.CaseID,
		"action", entry.Action,
		"actor", entry.Actor,
		"reason", reason,
	)
}
