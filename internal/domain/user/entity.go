package user

import (
	"context"
	"strings"
)

type Role string

const (
	RoleOwner    Role = "owner"    // Studio owner - full access
	RoleAdmin    Role = "admin"    // Back-office administrator
	RoleManager  Role = "manager"  // Team lead
	RoleEmployee Role = "employee" // Regular staff member
)

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	UserID   string
	Name     string
	Role     Role
	Position string
}

// IsOwner checks if actor is studio owner
func (a Actor) IsOwner() bool {
	return a.Role == RoleOwner
}

// HasPosition compares positions case-insensitively, ignoring surrounding whitespace.
func (a Actor) HasPosition(position string) bool {
	return strings.EqualFold(strings.TrimSpace(a.Position), strings.TrimSpace(position))
}

type actorKey struct{}

// WithActor stores the actor on the context for downstream services.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor placed by the auth middleware.
func ActorFromContext(ctx context.Context) (Actor, error) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || actor.UserID == "" {
		return Actor{}, ErrActorMissing
	}
	return actor, nil
}
