package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
)

type principalKey struct{}

// principal is the caller as asserted by the token, kept raw until a handler
// asks for typed values.
type principal struct {
	userID string
	role   string
}

func principalFrom(ctx context.Context) principal {
	if ctx == nil {
		return principal{}
	}
	p, _ := ctx.Value(principalKey{}).(principal)
	return p
}

func withPrincipal(ctx context.Context, p principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

func UserIDFromContext(ctx context.Context) string { return principalFrom(ctx).userID }

func RoleFromContext(ctx context.Context) string { return principalFrom(ctx).role }

// ActorFromContext returns the authenticated caller as typed values.
func ActorFromContext(ctx context.Context) (uuid.UUID, enums.UserRole, error) {
	p := principalFrom(ctx)
	if p.userID == "" {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	userID, err := uuid.Parse(p.userID)
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseUserRole(p.role)
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid role")
	}
	return userID, role, nil
}

// WithUserID sets the caller's id, keeping any role already present.
func WithUserID(ctx context.Context, userID string) context.Context {
	p := principalFrom(ctx)
	p.userID = userID
	return withPrincipal(ctx, p)
}

// WithRole sets the caller's role, keeping any id already present.
func WithRole(ctx context.Context, role string) context.Context {
	p := principalFrom(ctx)
	p.role = role
	return withPrincipal(ctx, p)
}

// WithActor sets both identity values at once.
func WithActor(ctx context.Context, userID uuid.UUID, role enums.UserRole) context.Context {
	return withPrincipal(ctx, principal{userID: userID.String(), role: string(role)})
}
