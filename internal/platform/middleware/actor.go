package middleware

import (
	"net/http"

	"casebook/pkg/requestcontext"
)

// Actor lifts the acting user's identity from the trusted upstream header
// into the request context. The identity provider in front of this service
// has already authenticated the caller; attribution here must never fall back
// to an ambient default, so the header value is carried verbatim and services
// decide how to treat its absence.
func Actor(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID := r.Header.Get(header)
			if actorID == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := requestcontext.WithActorID(r.Context(), actorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
