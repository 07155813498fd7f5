package auth

import (
	"context"

	"github.com/velvetcast/session-service/internal/domain"
)

// IdentityResolver resolves an auth token into the actor behind it.
// Returns domain.ErrUnauthenticated for an invalid or expired token.
type IdentityResolver interface {
	ResolveFromToken(ctx context.Context, token string) (*domain.Identity, error)
}
