package core

import (
	"context"

	"github.com/google/uuid"
)

type (
	runIDKey struct{}
	actorKey struct{}
)

// WithRunID attaches a run id to the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the run id if present.
func RunID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

// EnsureRunID returns ctx unchanged when it already carries a run id.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	if id, ok := RunID(ctx); ok {
		return ctx, id
	}
	id := NewRunID()
	return WithRunID(ctx, id), id
}

// NewRunID returns a fresh run identifier. One run spans one user request.
func NewRunID() string {
	return "run-" + uuid.NewString()
}

// WithActor records the role alias a call is made on behalf of.
func WithActor(ctx context.Context, alias string) context.Context {
	return context.WithValue(ctx, actorKey{}, alias)
}

// Actor returns the alias set by WithActor.
func Actor(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	alias, ok := ctx.Value(actorKey{}).(string)
	return alias, ok && alias != ""
}
