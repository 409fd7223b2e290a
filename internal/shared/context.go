package shared

import "context"

// Actor identifies the authenticated caller. Authentication itself is an
// external collaborator; the gateway forwards the resolved identity in
// trusted headers and the middleware stores it here.
type Actor struct {
	UserID int64
	OrgID  int64
}

type actorContextKey struct{}

// ContextWithActor stores the caller identity in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the caller identity from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok && actor.OrgID > 0
}
