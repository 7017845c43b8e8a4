// Package middleware holds the HTTP middleware shared by all routes.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/trieuvy/aria/backend/internal/model/identity"
	"github.com/trieuvy/aria/backend/pkg/utils"
)

// CORS allows browser clients on other origins to reach the API, including
// preflight requests.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-User-Name, X-User-Birthdate")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Identity resolves the caller from the gateway-injected headers. Requests
// without a user id are rejected; the gateway authenticates upstream, so a
// missing header means the request bypassed it.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID == "" {
			utils.RespondError(w, http.StatusUnauthorized, "missing user identity")
			return
		}

		user := identity.User{
			ID:          userID,
			DisplayName: strings.TrimSpace(r.Header.Get("X-User-Name")),
		}
		if raw := strings.TrimSpace(r.Header.Get("X-User-Birthdate")); raw != "" {
			if birth, err := time.Parse("2006-01-02", raw); err == nil {
				user.BirthDate = &birth
			}
		}

		next.ServeHTTP(w, r.WithContext(identity.NewContext(r.Context(), user)))
	})
}
