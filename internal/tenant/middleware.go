package tenant

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/lifelink/copilot/internal/fault"
)

// Header names populated by the auth gateway. JWT verification happens
// upstream; this service trusts the forwarded identity.
const (
	HeaderUserID        = "X-User-ID"
	HeaderUserRole      = "X-User-Role"
	HeaderTenantID      = "X-Tenant-ID"
	HeaderSuperAdmin    = "X-Super-Admin"
	HeaderTenantContext = "X-Tenant-Context"
)

// Actor is the fully resolved caller identity for one request.
type Actor struct {
	UserID string
	Role   string
	Tenant Context
}

type contextKey struct{}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// FromContext returns the actor stored on ctx, if any.
func FromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(Actor)
	return actor, ok
}

// Middleware resolves the caller identity and tenant context from request
// headers and stores it on the request context. Requests without a complete
// identity, or with an override the caller may not use, are rejected here so
// handlers never see an unscoped request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := Claims{
			UserID:       r.Header.Get(HeaderUserID),
			Role:         r.Header.Get(HeaderUserRole),
			TenantID:     r.Header.Get(HeaderTenantID),
			IsSuperAdmin: r.Header.Get(HeaderSuperAdmin) == "true",
		}

		if claims.UserID == "" || claims.Role == "" {
			writeError(w, http.StatusUnauthorized, "missing user identity")
			return
		}

		tc, err := Resolve(claims, r.Header.Get(HeaderTenantContext))
		if err != nil {
			status := http.StatusBadRequest
			if fault.IsKind(err, fault.KindPermission) {
				status = http.StatusForbidden
			}
			writeError(w, status, err.Error())
			return
		}

		actor := Actor{UserID: claims.UserID, Role: claims.Role, Tenant: tc}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
