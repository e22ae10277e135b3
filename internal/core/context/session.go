// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// SessionContext identifies the logical session a call chain belongs to.
// One data context is pinned to each session for its whole lifetime.
type SessionContext struct {
	SessionID string
	Subject   string // authenticated subject, empty for anonymous sessions
}

type sessionContextKey struct{}

// WithSession adds SessionContext to context.
func WithSession(ctx context.Context, s *SessionContext) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// GetSession returns SessionContext from context.
func GetSession(ctx context.Context) *SessionContext {
	if v, ok := ctx.Value(sessionContextKey{}).(*SessionContext); ok {
		return v
	}
	return nil
}

// GetSessionID returns session ID from context or empty string.
func GetSessionID(ctx context.Context) string {
	if s := GetSession(ctx); s != nil {
		return s.SessionID
	}
	return ""
}
