package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/leadops/crm-api/internal/auth"
	"github.com/leadops/crm-api/internal/httpx"
)

type AuthMiddleware struct {
	Verifier *auth.Verifier
	Logger   *slog.Logger
}

func (m AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		scheme, token, found := strings.Cut(header, " ")
		if header == "" || !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
			return
		}

		claims, err := m.Verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("auth_rejected",
					"path", r.URL.Path,
					"error", err,
					"request_id", RequestIDFromContext(r.Context()),
				)
			}
			httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Token is invalid or expired", nil)
			return
		}

		userID, _ := claims.UserID()
		ctx := WithActor(r.Context(), Actor{
			UserID: userID,
			Email:  claims.Email,
			Role:   claims.Role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
