package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/velvetcast/session-service/internal/config"
	"github.com/velvetcast/session-service/internal/domain"
)

// Claims are the platform token claims the engine cares about.
type Claims struct {
	jwt.RegisteredClaims
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsPerformer bool   `json:"is_performer"`
	GhostMode   bool   `json:"ghost_mode,omitempty"`
}

// JWTResolver validates platform-issued HMAC tokens locally.
type JWTResolver struct {
	secret []byte
	issuer string
}

// NewJWTResolver creates a resolver from config.
func NewJWTResolver(cfg config.JWTConfig) (*JWTResolver, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTResolver{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
	}, nil
}

// ResolveFromToken validates the token and returns the identity.
func (r *JWTResolver) ResolveFromToken(ctx context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithIssuer(r.issuer))
	if err != nil || !parsed.Valid {
		return nil, domain.ErrUnauthenticated
	}

	if claims.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}

	return &domain.Identity{
		UserID:      claims.UserID,
		IsPerformer: claims.IsPerformer,
		DisplayName: claims.DisplayName,
		GhostMode:   claims.GhostMode,
	}, nil
}
