package auth

import (
	"context"

	"github.com/velvetcast/session-service/internal/domain"
)

// MockResolver resolves tokens from a fixed map for tests.
type MockResolver struct {
	Identities map[string]*domain.Identity // token -> identity
	Err        error
}

func NewMockResolver() *MockResolver {
	return &MockResolver{Identities: make(map[string]*domain.Identity)}
}

// Put seeds a token.
func (m *MockResolver) Put(token string, identity *domain.Identity) {
	m.Identities[token] = identity
}

func (m *MockResolver) ResolveFromToken(ctx context.Context, token string) (*domain.Identity, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	identity, ok := m.Identities[token]
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	return identity, nil
}
