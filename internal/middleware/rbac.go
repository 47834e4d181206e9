package middleware

import (
	"net/http"

	"github.com/leadops/crm-api/internal/httpx"
)

// RequireRole admits actors holding any of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
				return
			}
			if _, ok := allowed[actor.Role]; !ok {
				httpx.WriteError(w, r, http.StatusForbidden, "forbidden", "Permission denied", map[string]any{"requiredRoles": roles})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
