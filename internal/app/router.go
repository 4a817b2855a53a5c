package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gatekeeper-iam/gatekeeper/internal/principals"
	"github.com/gatekeeper-iam/gatekeeper/internal/rbac"
	"github.com/gatekeeper-iam/gatekeeper/internal/session"
	"github.com/gatekeeper-iam/gatekeeper/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	SessionHandler    *session.Handler
	PrincipalsHandler *principals.Handler
	RBACHandler       *rbac.Handler
	Authenticator     func(http.Handler) http.Handler
	Guards            *rbac.Middleware
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router. Session routes are public; principal
// and role administration sits behind the bearer-token middleware with role
// guards on top.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/session", params.SessionHandler.MountRoutes)
	r.Route("/principals", func(r chi.Router) {
		params.PrincipalsHandler.MountPublicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(params.Authenticator)
			r.Use(params.Guards.RequireRole(rbac.RoleAdmin, rbac.RoleManager))
			params.PrincipalsHandler.MountProtectedRoutes(r)
		})
	})
	r.Route("/roles", func(r chi.Router) {
		r.Use(params.Authenticator)
		r.Use(params.Guards.RequireRole(rbac.RoleAdmin))
		params.RBACHandler.MountRoleRoutes(r)
	})
	r.Route("/permissions", func(r chi.Router) {
		r.Use(params.Authenticator)
		r.Use(params.Guards.RequireRole(rbac.RoleAdmin))
		params.RBACHandler.MountPermissionRoutes(r)
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
