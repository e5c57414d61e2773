package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestNewJWTAuthenticator_RequiresSecret(t *testing.T) {
	_, err := NewJWTAuthenticator("", "")
	assert.Error(t, err)
}

func TestJWTAuthenticator_IssueAndAuthenticate(t *testing.T) {
	a, err := NewJWTAuthenticator(testSecret, "owls")
	require.NoError(t, err)

	token, err := a.IssueToken("dr.rivera", time.Hour)
	require.NoError(t, err)

	session, err := a.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "dr.rivera", session.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)
}

func TestJWTAuthenticator_Rejects(t *testing.T) {
	a, err := NewJWTAuthenticator(testSecret, "owls")
	require.NoError(t, err)
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		wantMsg string
	}{
		{"empty", "", "missing bearer token"},
		{"garbage", "not.a.token", ""},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-xx"),
			jwt.StandardClaims{Subject: "x", Issuer: "owls", ExpiresAt: future}), ""},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte(testSecret),
			jwt.StandardClaims{Subject: "x", Issuer: "owls", ExpiresAt: time.Now().Add(-time.Minute).Unix()}), "token expired"},
		{"no subject", sign(t, jwt.SigningMethodHS256, []byte(testSecret),
			jwt.StandardClaims{Issuer: "owls", ExpiresAt: future}), "no subject"},
		{"subject too long", sign(t, jwt.SigningMethodHS256, []byte(testSecret),
			jwt.StandardClaims{Subject: strings.Repeat("x", domain.MaxSubjectLength+1), Issuer: "owls", ExpiresAt: future}), "subject longer than 200"},
		{"no expiry", sign(t, jwt.SigningMethodHS256, []byte(testSecret),
			jwt.StandardClaims{Subject: "x", Issuer: "owls"}), "no expiry"},
		{"wrong issuer", sign(t, jwt.SigningMethodHS256, []byte(testSecret),
			jwt.StandardClaims{Subject: "x", Issuer: "elsewhere", ExpiresAt: future}), "unexpected issuer"},
		{"none algorithm", sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType,
			jwt.StandardClaims{Subject: "x", Issuer: "owls", ExpiresAt: future}), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(context.Background(), tt.token)
			require.ErrorIs(t, err, ports.ErrUnauthenticated)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestJWTAuthenticator_NoIssuerConfigured(t *testing.T) {
	a, err := NewJWTAuthenticator(testSecret, "")
	require.NoError(t, err)

	token := sign(t, jwt.SigningMethodHS512, []byte(testSecret),
		jwt.StandardClaims{Subject: "x", Issuer: "anyone", ExpiresAt: time.Now().Add(time.Hour).Unix()})

	session, err := a.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "x", session.Subject)
}

func TestJWTAuthenticator_IssueTokenValidation(t *testing.T) {
	a, err := NewJWTAuthenticator(testSecret, "")
	require.NoError(t, err)

	_, err = a.IssueToken(" ", time.Hour)
	assert.Error(t, err)
	_, err = a.IssueToken("x", 0)
	assert.Error(t, err)
	_, err = a.IssueToken(strings.Repeat("x", domain.MaxSubjectLength+1), time.Hour)
	assert.Error(t, err)
}

func TestNopAuthenticator(t *testing.T) {
	session, err := NopAuthenticator{}.Authenticate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", session.Subject)

	session, err = NopAuthenticator{Subject: "dev"}.Authenticate(context.Background(), "ignored")
	require.NoError(t, err)
	assert.Equal(t, "dev", session.Subject)
}
