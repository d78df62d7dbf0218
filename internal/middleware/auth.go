package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/agrichain/marketplace/internal/auth"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/gorilla/mux"
)

const claimsKey contextKey = "claims"

// Authenticate requires a valid bearer token. When roles are given the
// token's role must be one of them.
func Authenticate(issuer *auth.Issuer, roles ...models.Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header missing or invalid", "unauthorized")
				return
			}

			claims, err := issuer.Parse(strings.TrimSpace(token))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token", err.Error())
				return
			}
			if len(roles) > 0 && !hasRole(claims.Role, roles) {
				writeError(w, http.StatusForbidden, "Access denied", "role "+string(claims.Role)+" may not perform this action")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hasRole(role models.Role, allowed []models.Role) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

// ClaimsFromContext returns the claims stored by Authenticate
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

// CanActFor reports whether the caller is accountID or an admin
func CanActFor(ctx context.Context, accountID string) bool {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return false
	}
	return c.Role == models.RoleAdmin || c.UserID == accountID
}

// WithClaims stores claims in ctx. Tests use it to skip token parsing.
func WithClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}
