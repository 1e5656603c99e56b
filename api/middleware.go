package api

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/warp/vacation-engine/vacation"
)

// Identity headers set by the gateway after authentication.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderCompanyID = "X-Company-ID"
	HeaderActorRole = "X-Actor-Role"
)

type actorKey struct{}

// Tracing starts a server span per request, named "METHOD /path".
func Tracing(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}

// RequireActor reads the caller identity from the gateway headers. Requests
// without a complete, valid identity are rejected with 401.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := vacation.Actor{
			UserID:    r.Header.Get(HeaderActorID),
			CompanyID: r.Header.Get(HeaderCompanyID),
			Role:      vacation.Role(r.Header.Get(HeaderActorRole)),
		}
		if actor.UserID == "" || actor.CompanyID == "" || !actor.Role.Valid() {
			writeError(w, http.StatusUnauthorized, "missing or invalid actor identity", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// WithActor attaches an actor to the context.
func WithActor(ctx context.Context, actor vacation.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor attached by RequireActor.
func ActorFrom(ctx context.Context) (vacation.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(vacation.Actor)
	return actor, ok
}
