package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/edvin/safehouse/internal/api/response"
)

// ExecutorToken authenticates executor callbacks by the shared X-Executor-Token.
func ExecutorToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Executor-Token")
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				response.WriteError(w, http.StatusUnauthorized, "invalid executor token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
