package rbac

import (
	"log/slog"
	"net/http"

	"github.com/gatekeeper-iam/gatekeeper/internal/platform/httpx"
	"github.com/gatekeeper-iam/gatekeeper/internal/shared"
)

// Middleware provides route guards backed by the authorization engine.
type Middleware struct {
	service *Service
	logger  *slog.Logger
}

// NewMiddleware constructs guard middleware.
func NewMiddleware(service *Service, logger *slog.Logger) *Middleware {
	return &Middleware{service: service, logger: logger}
}

// RequireRole allows the request through when the caller holds any of the
// given roles. Role names come from the access token claims, so role
// changes apply after the next token issue.
func (m *Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := shared.IdentityFromContext(r.Context())
			if identity == nil {
				httpx.Error(w, http.StatusUnauthorized, "authentication required", nil)
				return
			}
			for _, role := range roles {
				if identity.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.Error(w, http.StatusForbidden, "insufficient role", nil)
		})
	}
}

// RequirePermission allows the request through when the caller holds the
// named permission through any role. The check reads the store on every
// request, so grant changes apply immediately.
func (m *Middleware) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := shared.IdentityFromContext(r.Context())
			if identity == nil {
				httpx.Error(w, http.StatusUnauthorized, "authentication required", nil)
				return
			}
			allowed, err := m.service.HasPermission(r.Context(), identity.PrincipalID, permission)
			if err != nil {
				m.logger.Error("permission check", slog.Any("error", err))
				httpx.Error(w, http.StatusInternalServerError, "internal error", nil)
				return
			}
			if !allowed {
				httpx.Error(w, http.StatusForbidden, "insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
