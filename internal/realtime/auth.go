package realtime

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/loyalty-backend/internal/users"
	"github.com/angelmondragon/loyalty-backend/pkg/auth"
	"github.com/angelmondragon/loyalty-backend/pkg/config"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/google/uuid"
)

// RoleLookup resolves a subject's current role from the authoritative store.
type RoleLookup interface {
	CurrentRole(ctx context.Context, id uuid.UUID) (users.RoleStatus, error)
}

// Principal is an authenticated, live-checked stream subject.
type Principal struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// Authenticator verifies a stream credential. The token only proves identity;
// the role comes from RoleLookup so revoked admins are rejected immediately.
type Authenticator struct {
	jwt          config.JWTConfig
	roles        RoleLookup
	requireAdmin bool
}

// NewAuthenticator guards the admin stream: the subject must be active and
// currently hold an admin role.
func NewAuthenticator(jwtCfg config.JWTConfig, roles RoleLookup) (*Authenticator, error) {
	return newAuthenticator(jwtCfg, roles, true)
}

// NewMemberAuthenticator guards the member stream: any active subject passes.
func NewMemberAuthenticator(jwtCfg config.JWTConfig, roles RoleLookup) (*Authenticator, error) {
	return newAuthenticator(jwtCfg, roles, false)
}

func newAuthenticator(jwtCfg config.JWTConfig, roles RoleLookup, requireAdmin bool) (*Authenticator, error) {
	if jwtCfg.Secret == "" {
		return nil, errors.New("jwt secret required")
	}
	if roles == nil {
		return nil, errors.New("role lookup required")
	}
	return &Authenticator{jwt: jwtCfg, roles: roles, requireAdmin: requireAdmin}, nil
}

// Authenticate returns CodeUnauthorized for a missing, invalid or unknown
// subject and CodeForbidden for inactive subjects, or non-admin ones on the
// admin stream.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "stream token required")
	}

	claims, err := auth.ParseAccessToken(a.jwt, token)
	if err != nil {
		return Principal{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}

	status, err := a.roles.CurrentRole(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user not found")
		}
		return Principal{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve current role")
	}
	if !status.Active {
		return Principal{}, pkgerrors.New(pkgerrors.CodeForbidden, "user is inactive")
	}
	if a.requireAdmin && !status.Role.IsAdmin() {
		return Principal{}, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return Principal{UserID: claims.UserID, Role: status.Role}, nil
}
