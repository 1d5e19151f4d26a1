package builtin

import (
	"context"

	"github.com/google/uuid"
)

// Invocation carries the identity of the caller into tool executions.
// Tools that write org-scoped data refuse to run without it.
type Invocation struct {
	RoleID uuid.UUID
	OrgID  uuid.UUID
	UserID *uuid.UUID

	ChatID    *uuid.UUID
	MessageID *uuid.UUID

	// Depth counts nested role-to-role delegations.
	Depth int
}

type invocationKey struct{}

func WithInvocation(ctx context.Context, inv Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

func InvocationFrom(ctx context.Context) (Invocation, bool) {
	inv, ok := ctx.Value(invocationKey{}).(Invocation)
	return inv, ok
}
