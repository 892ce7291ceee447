package model

import "context"

// Actor identifies who is acting on the coordination API for the lifetime of
// an authenticated request. It is immutable after construction and safe for
// concurrent reads. For unauthenticated deployments the transport installs a
// synthetic actor so downstream code never branches on identity presence.
type Actor struct {
	ID     string
	Email  string
	Roles  []string
	Claims map[string]any
}

// HasRole returns true if the actor carries the given role.
func (a *Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Claim returns the value of the given claim key, or nil if not present.
func (a *Actor) Claim(key string) any {
	if a.Claims == nil {
		return nil
	}
	return a.Claims[key]
}

type actorKey struct{}

// WithActor attaches an Actor to the given context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom extracts the Actor from the context, or returns nil if not
// present.
func ActorFrom(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorKey{}).(*Actor)
	return actor
}

// ActorID returns the acting identity's id, or "anonymous" when the context
// carries no actor.
func ActorID(ctx context.Context) string {
	if actor := ActorFrom(ctx); actor != nil && actor.ID != "" {
		return actor.ID
	}
	return "anonymous"
}
