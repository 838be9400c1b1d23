package common

import "context"

type ctxKey string

const actorKey ctxKey = "auth/actor"

// Actor describes the authenticated staff user acting on a request. Tokens are
// minted by the host platform; this service only consumes the claims.
type Actor struct {
	UserID         string
	OrganizationID string
	Permissions    []string
}

// HasPermission reports whether the actor carries the named permission claim.
func (a Actor) HasPermission(claim string) bool {
	for _, p := range a.Permissions {
		if p == claim {
			return true
		}
	}
	return false
}

// WithActor stores the authenticated actor on the provided context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom extracts the authenticated actor from the context if present.
func ActorFrom(ctx context.Context) (Actor, bool) {
	v := ctx.Value(actorKey)
	if v == nil {
		return Actor{}, false
	}
	actor, ok := v.(Actor)
	return actor, ok
}
