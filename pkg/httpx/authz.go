package httpx

import (
	"net/http"
	"slices"
)

// RequireRole lets the request through when the caller holds one of roles.
// Unauthenticated callers get 401, authenticated ones without the role 403.
func RequireRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, http.StatusUnauthorized, "not_authenticated", "Sign in to continue.")
				return
			}
			if !slices.Contains(roles, id.Role) {
				WriteError(w, http.StatusForbidden, "forbidden", "Your role does not allow this action.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
