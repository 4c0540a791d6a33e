package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/safehouse/internal/api/response"
	"github.com/edvin/safehouse/internal/core"
)

type contextKey string

const APIKeyIdentityKey contextKey = "api_key_identity"

// APIKeyIdentity holds the authenticated key's ID and the tenants it may act on.
type APIKeyIdentity struct {
	ID      string
	Name    string
	Tenants []string
}

// KeyStore looks up API keys. *pgxpool.Pool satisfies it.
type KeyStore interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Auth returns a middleware that validates the API key against the api_keys
// table. The key is read from X-API-Key or an Authorization bearer token.
func Auth(keys KeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = extractAPIKey(r)
			}
			if key == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			var identity APIKeyIdentity
			err := keys.QueryRow(r.Context(),
				`SELECT id, name, tenants FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL`, core.HashAPIKey(key),
			).Scan(&identity.ID, &identity.Name, &identity.Tenants)
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyIdentityKey, &identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
