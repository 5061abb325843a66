// Package api implements the Mimir REST API using chi.
package api

import (
	"context"
	"net/http"
	"strings"
)

// AnonymousOwner is the owner every request runs as when auth is disabled.
// Single-user deployments use this mode and never configure tokens.
const AnonymousOwner = "local"

type ctxKey int

const ownerKey ctxKey = iota

// OwnerFromContext returns the owner ID the request is authorized for.
func OwnerFromContext(ctx context.Context) string {
	if owner, ok := ctx.Value(ownerKey).(string); ok {
		return owner
	}
	return AnonymousOwner
}

// AuthMiddleware returns middleware that validates a Bearer token and
// resolves it to an owner ID.
// If enabled is false, all requests pass through as AnonymousOwner.
// If enabled is true, requests must carry "Authorization: Bearer <token>"
// with a token present in the tokens map; the mapped owner scopes every
// downstream operation.
func AuthMiddleware(enabled bool, tokens map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, AnonymousOwner)))
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			owner, ok := tokens[strings.TrimPrefix(auth, "Bearer ")]
			if !ok || owner == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
		})
	}
}
