package auth

import (
	"net/http"
	"strings"

	"github.com/example/blog-ugc/internal/platform/api"
)

// RequireRole allows the request only if RequireUser already injected one of roles.
func RequireRole(roles ...string) func(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, _ := RoleFromContext(r.Context())
			if _, ok := allowed[strings.ToLower(strings.TrimSpace(role))]; !ok {
				api.Forbidden(w, "FORBIDDEN", "insufficient role", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireModerator admits admins and moderators.
func RequireModerator(next http.Handler) http.Handler {
	return RequireRole("admin", "moderator")(next)
}
