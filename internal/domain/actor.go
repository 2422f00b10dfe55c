package domain

import (
	"context"
	"errors"
)

// Actor is the authenticated identity behind a write: a calling service or an operator.
type Actor struct {
	ID   string
	Role Role
}

// Role represents an actor's access level
type Role string

const (
	// RoleAdmin has full access including account lifecycle changes
	RoleAdmin Role = "admin"

	// RoleCompliance can freeze and unfreeze balances
	RoleCompliance Role = "compliance"

	// RoleService is an internal workflow posting transactions and journal entries
	RoleService Role = "service"

	// RoleViewer can only read balances and reports
	RoleViewer Role = "viewer"
)

var roleRank = map[Role]int{
	RoleViewer:     1,
	RoleService:    2,
	RoleCompliance: 3,
	RoleAdmin:      4,
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

// Satisfies reports whether r grants at least the access of min.
func (r Role) Satisfies(min Role) bool {
	return r.IsValid() && roleRank[r] >= roleRank[min]
}

// Authentication errors
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInsufficientRole = errors.New("insufficient role for this operation")
)

type actorKey struct{}

// ContextWithActor stores the authenticated actor in ctx.
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (*Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(*Actor)
	return actor, ok && actor != nil
}
