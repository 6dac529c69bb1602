package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/warp/backoffice/generic"
)

// Identity headers set by the presentation layer, which has already
// authenticated the caller.
const (
	HeaderActorName = "X-Actor-Name"
	HeaderActorRole = "X-Actor-Role"
	HeaderActorArea = "X-Actor-Area"
)

// actorFrom reads the caller from the identity headers. Unknown roles fall
// back to staff; an unknown area is left empty.
func actorFrom(r *http.Request) generic.Actor {
	a := generic.Actor{
		Name: strings.TrimSpace(r.Header.Get(HeaderActorName)),
		Role: generic.RoleStaff,
	}
	switch role := generic.Role(strings.ToLower(r.Header.Get(HeaderActorRole))); role {
	case generic.RoleAdmin, generic.RoleManager, generic.RoleStaff:
		a.Role = role
	}
	if area, err := generic.ParseArea(r.Header.Get(HeaderActorArea)); err == nil {
		a.Area = area
	}
	return a
}

// requireActor is actorFrom for routes that record who acted.
func requireActor(r *http.Request) (generic.Actor, error) {
	a := actorFrom(r)
	if a.Name == "" {
		return generic.Actor{}, &generic.ValidationError{Field: HeaderActorName, Reason: "is required"}
	}
	return a, nil
}

// instrument logs one event per request and records HTTP metrics under the
// matched route pattern.
func instrument(log zerolog.Logger, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			pattern := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				pattern = rctx.RoutePattern()
			}
			if metrics != nil {
				metrics.RecordHTTPRequest(r.Method, pattern, status, duration)
			}

			ev := log.Info()
			if status >= http.StatusInternalServerError {
				ev = log.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", pattern).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", duration).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
