package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/jachnun-storefront/internal/domain/auth"
)

const bearerPrefix = "Bearer "

// RequireAdmin rejects requests without a valid admin bearer token and
// stores the verified claims in the request context.
func RequireAdmin(s *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
				writeError(w, http.StatusUnauthorized, "No token provided")
				return
			}
			token := strings.TrimSpace(header[len(bearerPrefix):])
			if token == "" {
				writeError(w, http.StatusUnauthorized, "No token provided")
				return
			}

			claims, err := s.Authenticate(r.Context(), token)
			if err != nil {
				zctx.From(r.Context()).Debug("Rejected admin token", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := auth.WithClaims(r.Context(), claims)
			ctx = zctx.With(ctx, zap.Int64("admin_id", claims.AdminID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
