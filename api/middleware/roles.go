package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/angelmondragon/loyalty-backend/api/responses"
	"github.com/angelmondragon/loyalty-backend/internal/users"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/google/uuid"
)

// RoleLookup resolves the live role of an authenticated user.
type RoleLookup interface {
	CurrentRole(ctx context.Context, id uuid.UUID) (users.RoleStatus, error)
}

// RequireAdmin re-reads the caller's role on every request so a demoted or
// deactivated admin loses access before their token expires.
func RequireAdmin(roles RoleLookup, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserUUIDFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user"))
				return
			}

			status, err := roles.CurrentRole(r.Context(), userID)
			if err != nil {
				if errors.Is(err, users.ErrNotFound) {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user not found"))
					return
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve current role"))
				return
			}
			if !status.Active {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "user is inactive"))
				return
			}
			if !status.Role.IsAdmin() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required"))
				return
			}

			ctx := WithRole(r.Context(), string(status.Role))
			if logg != nil {
				ctx = logg.WithActorRole(ctx, string(status.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
