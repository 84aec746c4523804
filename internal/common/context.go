package common

import (
	"context"
	"log/slog"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyUserID  contextKey = "user_id"
	ContextKeyCycleID contextKey = "cycle_id"
)

// WithUserID adds the mailbox owner to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// UserIDFromContext extracts the user ID from context
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyUserID).(string); ok {
		return v
	}
	return ""
}

// WithCycleID tags a context with the poll cycle it belongs to
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, ContextKeyCycleID, cycleID)
}

// CycleIDFromContext extracts the poll cycle ID from context
func CycleIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyCycleID).(string); ok {
		return v
	}
	return ""
}

// LoggerFrom returns base enriched with whichever of user/cycle are on ctx.
func LoggerFrom(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id := CycleIDFromContext(ctx); id != "" {
		base = base.With("cycle_id", id)
	}
	if id := UserIDFromContext(ctx); id != "" {
		base = base.With("user", id)
	}
	return base
}
