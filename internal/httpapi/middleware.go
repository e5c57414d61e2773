package httpapi

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ahrav/go-owls/internal/ports"
)

const sessionKey = "owls_session"

// authMiddleware extracts the bearer token from the Authorization header,
// validates it with auth and attaches the resulting session to both the
// gin context and the request context.
func authMiddleware(auth ports.Authenticator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err == nil {
			var session ports.Session
			session, err = auth.Authenticate(c.Request.Context(), token)
			if err == nil {
				c.Set(sessionKey, session)
				c.Request = c.Request.WithContext(ports.WithSession(c.Request.Context(), session))
				c.Next()
				return
			}
		}
		c.Header("WWW-Authenticate", `Bearer realm="owls"`)
		writeError(c, logger, err)
	}
}

// bearerToken returns the token of an "Authorization: Bearer <token>"
// header. A missing header yields an empty token so that authenticators
// which accept anonymous callers still run.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: malformed authorization header", ports.ErrUnauthenticated)
	}
	return strings.TrimSpace(token), nil
}

// sessionFrom returns the session attached by authMiddleware.
func sessionFrom(c *gin.Context) (ports.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return ports.Session{}, false
	}
	s, ok := v.(ports.Session)
	return s, ok
}

// requestLogger writes one structured line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if s, ok := sessionFrom(c); ok {
			attrs = append(attrs, "subject", s.Subject)
		}
		logger.Debug("request served", attrs...)
	}
}
