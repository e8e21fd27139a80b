package utils

import (
	"context"

	"pledgedesk/internal/models"
)

// Key type for context values
type contextKey string

const actorKey contextKey = "actor"

// ActorFromContext extracts the acting user from the context, falling back
// to the system actor when no authenticated actor is present.
func ActorFromContext(ctx context.Context) models.Actor {
	actor, ok := ctx.Value(actorKey).(models.Actor)
	if !ok {
		return models.SystemActor
	}
	return actor
}

// WithActor adds the acting user to the context
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}
