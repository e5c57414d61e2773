package ports

import (
	"context"
	"time"
)

// Session is the authenticated caller of an operation. It is carried
// explicitly through context.Context rather than held in global state.
type Session struct {
	// Subject identifies the clinician, typically a username.
	Subject string `json:"subject"`

	// ExpiresAt is when the underlying token stops being valid.
	ExpiresAt time.Time `json:"expiresAt"`
}

// Authenticator turns a bearer token into a Session. Only the pass/fail
// outcome matters to the core; failures wrap ErrUnauthenticated.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Session, error)
}

type sessionKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session carried by ctx.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
