// Package auth verifies the bearer tokens that identify clinicians.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// JWTAuthenticator accepts HS256/HS384/HS512 tokens signed with a shared
// secret. Tokens must carry a subject and an expiry; when an issuer is
// configured the iss claim must match it.
type JWTAuthenticator struct {
	secret []byte
	issuer string
}

var _ ports.Authenticator = (*JWTAuthenticator)(nil)

// NewJWTAuthenticator creates an authenticator for tokens signed with
// secret.
func NewJWTAuthenticator(secret, issuer string) (*JWTAuthenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTAuthenticator{secret: []byte(secret), issuer: issuer}, nil
}

// Authenticate implements ports.Authenticator. Every failure wraps
// ports.ErrUnauthenticated.
func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (ports.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ports.Session{}, fmt.Errorf("%w: missing bearer token", ports.ErrUnauthenticated)
	}

	var claims jwt.StandardClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return ports.Session{}, fmt.Errorf("%w: token expired", ports.ErrUnauthenticated)
		}
		return ports.Session{}, fmt.Errorf("%w: %v", ports.ErrUnauthenticated, err)
	}
	if !parsed.Valid {
		return ports.Session{}, fmt.Errorf("%w: invalid token", ports.ErrUnauthenticated)
	}

	switch {
	case strings.TrimSpace(claims.Subject) == "":
		return ports.Session{}, fmt.Errorf("%w: token has no subject", ports.ErrUnauthenticated)
	case domain.TooLong(claims.Subject, domain.MaxSubjectLength):
		return ports.Session{}, fmt.Errorf("%w: subject longer than %d characters", ports.ErrUnauthenticated, domain.MaxSubjectLength)
	case claims.ExpiresAt == 0:
		return ports.Session{}, fmt.Errorf("%w: token has no expiry", ports.ErrUnauthenticated)
	case a.issuer != "" && !claims.VerifyIssuer(a.issuer, true):
		return ports.Session{}, fmt.Errorf("%w: unexpected issuer %q", ports.ErrUnauthenticated, claims.Issuer)
	}

	return ports.Session{
		Subject:   claims.Subject,
		ExpiresAt: time.Unix(claims.ExpiresAt, 0).UTC(),
	}, nil
}

// IssueToken signs an HS256 token for subject valid for ttl. It backs the
// token command used to provision clinicians.
func (a *JWTAuthenticator) IssueToken(subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject is required")
	}
	if domain.TooLong(subject, domain.MaxSubjectLength) {
		return "", fmt.Errorf("subject must be at most %d characters", domain.MaxSubjectLength)
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	now := time.Now()
	claims := jwt.StandardClaims{
		Subject:   subject,
		Issuer:    a.issuer,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// NopAuthenticator accepts every request as one fixed subject. It is used
// when authentication is disabled.
type NopAuthenticator struct {
	Subject string
}

var _ ports.Authenticator = NopAuthenticator{}

// Authenticate implements ports.Authenticator.
func (n NopAuthenticator) Authenticate(context.Context, string) (ports.Session, error) {
	subject := n.Subject
	if subject == "" {
		subject = "anonymous"
	}
	return ports.Session{Subject: subject}, nil
}
