package middleware

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"codeart/internal/core/apperror"
	appctx "codeart/internal/core/context"
	"codeart/internal/core/datacontext"
	"codeart/pkg/logger"
)

// HeaderSessionID names an anonymous session. Bearer tokens take precedence.
const HeaderSessionID = "X-Session-ID"

// TokenValidator resolves a bearer token to the session it names.
type TokenValidator interface {
	ValidateToken(tokenString string) (*appctx.SessionContext, error)
}

// Session resolves the request's session, pins a data context from pool to
// it and binds both to the request context. Requests of one session run one
// at a time since a data context is single-threaded.
func Session(pool *datacontext.Pool, validator TokenValidator) gin.HandlerFunc {
	gate := newSessionGate()

	return func(c *gin.Context) {
		session, err := resolveSession(c, validator)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Set("session_id", session.SessionID)
		c.Header(HeaderSessionID, session.SessionID)

		unlock := gate.lock(session.SessionID)
		defer unlock()

		ctx := appctx.WithSession(c.Request.Context(), session)
		dc, err := pool.Acquire(ctx, session.SessionID)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		defer func() {
			if err := pool.Release(ctx, session.SessionID); err != nil {
				logger.Warn(ctx, "release data context failed", "error", err)
			}
		}()

		c.Request = c.Request.WithContext(datacontext.WithDataContext(ctx, dc))
		c.Next()
	}
}

func resolveSession(c *gin.Context, validator TokenValidator) (*appctx.SessionContext, error) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || validator == nil {
			return nil, apperror.NewUnauthorized("invalid authorization header format")
		}
		session, err := validator.ValidateToken(parts[1])
		if err != nil {
			return nil, apperror.NewUnauthorized("invalid token")
		}
		return session, nil
	}

	if sessionID := strings.TrimSpace(c.GetHeader(HeaderSessionID)); sessionID != "" {
		return &appctx.SessionContext{SessionID: sessionID}, nil
	}
	return &appctx.SessionContext{SessionID: "anon-" + uuid.NewString()}, nil
}

// sessionGate hands out one mutex per live session.
type sessionGate struct {
	mu    sync.Mutex
	gates map[string]*gateEntry
}

type gateEntry struct {
	mu   sync.Mutex
	refs int
}

func newSessionGate() *sessionGate {
	return &sessionGate{gates: make(map[string]*gateEntry)}
}

// lock blocks until sessionID is free and returns the unlock func.
func (g *sessionGate) lock(sessionID string) func() {
	g.mu.Lock()
	e, ok := g.gates[sessionID]
	if !ok {
		e = &gateEntry{}
		g.gates[sessionID] = e
	}
	e.refs++
	g.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		g.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(g.gates, sessionID)
		}
		g.mu.Unlock()
	}
}
