package testutil

import (
	"context"
	"net/http"
	"time"

	"casebook/pkg/requestcontext"
)

// WithActor adds an acting user to the request context, simulating what the
// actor middleware does for identified requests.
func WithActor(req *http.Request, actorID string) *http.Request {
	return req.WithContext(requestcontext.WithActorID(req.Context(), actorID))
}

// WithTime pins the request-scoped clock, so handlers under test produce
// deterministic timestamps.
func WithTime(req *http.Request, at time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), at))
}

// ActorContext returns a context carrying an acting user, for calling
// services directly.
func ActorContext(actorID string) context.Context {
	return requestcontext.WithActorID(context.Background(), actorID)
}

// ActorContextAt returns a context carrying both an acting user and a pinned
// clock.
func ActorContextAt(actorID string, at time.Time) context.Context {
	return requestcontext.WithTime(ActorContext(actorID), at)
}
