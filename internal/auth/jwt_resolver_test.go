package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velvetcast/session-service/internal/config"
	"github.com/velvetcast/session-service/internal/domain"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, issuer string, claims Claims) string {
	t.Helper()

	claims.Issuer = issuer
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newTestResolver(t *testing.T) *JWTResolver {
	t.Helper()

	r, err := NewJWTResolver(config.JWTConfig{Secret: testSecret, Issuer: "velvetcast"})
	require.NoError(t, err)
	return r
}

func TestResolveValidToken(t *testing.T) {
	r := newTestResolver(t)

	token := signToken(t, testSecret, "velvetcast", Claims{
		UserID:      "perf-1",
		DisplayName: "Pia",
		IsPerformer: true,
		GhostMode:   true,
	})

	identity, err := r.ResolveFromToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "perf-1", identity.UserID)
	assert.Equal(t, "Pia", identity.DisplayName)
	assert.True(t, identity.IsPerformer)
	assert.True(t, identity.GhostMode)
}

func TestResolveRejectsBadTokens(t *testing.T) {
	r := newTestResolver(t)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"wrong secret": signToken(t, "other-secret", "velvetcast", Claims{UserID: "u1"}),
		"wrong issuer": signToken(t, testSecret, "someone-else", Claims{UserID: "u1"}),
		"no user id":   signToken(t, testSecret, "velvetcast", Claims{}),
	}

	for name, token := range cases {
		_, err := r.ResolveFromToken(context.Background(), token)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated, name)
	}
}

func TestResolveRejectsExpiredToken(t *testing.T) {
	r := newTestResolver(t)

	token := signToken(t, testSecret, "velvetcast", Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	_, err := r.ResolveFromToken(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestNewJWTResolverRequiresSecret(t *testing.T) {
	_, err := NewJWTResolver(config.JWTConfig{})
	assert.Error(t, err)
}
