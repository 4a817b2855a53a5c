package session

import (
	"net/http"
	"strings"

	"github.com/gatekeeper-iam/gatekeeper/internal/platform/httpx"
	"github.com/gatekeeper-iam/gatekeeper/internal/shared"
)

// Authenticator returns middleware that verifies the bearer access token
// and attaches the decoded identity to the request context. Verification is
// signature plus expiry only; no storage round trip.
func Authenticator(issuer *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				httpx.Error(w, http.StatusUnauthorized, "invalid token", nil)
				return
			}
			claims, err := issuer.ParseAccess(raw)
			if err != nil {
				httpx.Error(w, http.StatusUnauthorized, "invalid token", nil)
				return
			}
			identity := &shared.Identity{
				PrincipalID: claims.Subject,
				Name:        claims.Name,
				Email:       claims.Email,
				Roles:       claims.Roles,
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
