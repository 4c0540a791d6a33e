package middleware

import (
	"context"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/safehouse/internal/api/response"
	"github.com/edvin/safehouse/internal/model"
)

// GetIdentity extracts the APIKeyIdentity from the request context.
func GetIdentity(ctx context.Context) *APIKeyIdentity {
	identity, _ := ctx.Value(APIKeyIdentityKey).(*APIKeyIdentity)
	return identity
}

// HasTenantAccess checks if the identity may act on tenantID ("*" grants all).
func HasTenantAccess(identity *APIKeyIdentity, tenantID string) bool {
	if identity == nil {
		return false
	}
	return slices.Contains(identity.Tenants, "*") || slices.Contains(identity.Tenants, tenantID)
}

// RequireTenantAccess rejects requests whose {tenantID} URL parameter is not
// covered by the caller's key.
func RequireTenantAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !HasTenantAccess(GetIdentity(r.Context()), chi.URLParam(r, "tenantID")) {
			response.WriteError(w, http.StatusForbidden, "no access to this tenant")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ActorFromRequest describes the caller for audit fields. X-User-ID names the
// end user acting through the key; without it the key itself is the actor.
func ActorFromRequest(r *http.Request) model.Actor {
	actor := model.Actor{
		UserID:    r.Header.Get("X-User-ID"),
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	if actor.UserID == "" {
		if identity := GetIdentity(r.Context()); identity != nil {
			actor.UserID = "api_key:" + identity.ID
		}
	}
	return actor
}
