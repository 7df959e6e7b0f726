package middleware

import (
	"net/http"
	"slices"

	"github.com/watchpoints/points-engine/api/responses"
	"github.com/watchpoints/points-engine/pkg/enums"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
	"github.com/watchpoints/points-engine/pkg/logger"
)

// RequireRole admits callers holding any of roles. It must run after Auth; a
// request with no caller is unauthorized rather than forbidden.
func RequireRole(logg *logger.Logger, roles ...enums.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			switch {
			case !ok:
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			case !slices.Contains(roles, caller.Role):
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required"))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
