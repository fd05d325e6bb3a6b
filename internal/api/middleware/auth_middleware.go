// Package middleware holds the HTTP middleware for the public API.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const TenantContextKey = ContextKey("tenant")

// Tenant identifies the authenticated caller. Every message and limiter
// operation downstream is scoped to this id.
type Tenant struct {
	ID   uuid.UUID
	Tier string
}

type tenantClaims struct {
	TenantID string `json:"tenant_id"`
	Tier     string `json:"tier,omitempty"`
	jwt.RegisteredClaims
}

// TenantFromContext returns the authenticated tenant, if any.
func TenantFromContext(ctx context.Context) (Tenant, bool) {
	tenant, ok := ctx.Value(TenantContextKey).(Tenant)
	return tenant, ok
}

// AuthMiddleware validates a bearer token signed with the shared HMAC secret
// and stores the tenant identity in the request context.
func AuthMiddleware(jwtSecret string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(r.Context(), "authorization header missing", "path", r.URL.Path)
				http.Error(w, "authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.WarnContext(r.Context(), "invalid authorization header format")
				http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims := &tenantClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				logger.WarnContext(r.Context(), "token validation failed", "error", err)
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			tenantID, err := uuid.Parse(claims.TenantID)
			if err != nil || tenantID == uuid.Nil {
				logger.WarnContext(r.Context(), "token carries no usable tenant id", "error", err)
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), TenantContextKey, Tenant{ID: tenantID, Tier: claims.Tier})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
