package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/pkg/enums"
)

type callerKey struct{}

// Caller is the authenticated principal of a request.
type Caller struct {
	UserID uuid.UUID
	Role   enums.Role
}

// WithCaller attaches the principal to the context.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the principal set by Auth. ok is false for
// anonymous requests.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	if ctx == nil {
		return Caller{}, false
	}
	caller, ok := ctx.Value(callerKey{}).(Caller)
	if !ok || caller.UserID == uuid.Nil {
		return Caller{}, false
	}
	return caller, true
}

// callerKeyPart is the user id for keys that partition by caller, or "".
func callerKeyPart(ctx context.Context) string {
	if caller, ok := CallerFromContext(ctx); ok {
		return caller.UserID.String()
	}
	return ""
}
