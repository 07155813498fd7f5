package client

import (
	"context"
	"sync"

	"github.com/velvetcast/session-service/internal/domain"
)

// MockGatewayClient is a configurable GatewayClient for tests.
type MockGatewayClient struct {
	mu       sync.RWMutex
	Statuses map[string]*BroadcastStatus
	Err      error
}

func NewMockGatewayClient() *MockGatewayClient {
	return &MockGatewayClient{Statuses: make(map[string]*BroadcastStatus)}
}

// SetStatus seeds a broadcast status.
func (m *MockGatewayClient) SetStatus(broadcastID string, status *BroadcastStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Statuses[broadcastID] = status
}

func (m *MockGatewayClient) GetBroadcastStatus(ctx context.Context, broadcastID string) (*BroadcastStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	status, ok := m.Statuses[broadcastID]
	if !ok {
		return nil, ErrBroadcastNotFound
	}
	return status, nil
}

// MockRankService returns fixed ranks for tests.
type MockRankService struct {
	Ranks map[string]domain.RankInfo // userID -> rank
	Err   error
}

func (m *MockRankService) ComputeRank(ctx context.Context, performerID, userID string) (domain.RankInfo, error) {
	if m.Err != nil {
		return domain.RankInfo{}, m.Err
	}
	if rank, ok := m.Ranks[userID]; ok {
		return rank, nil
	}
	return domain.UnrankedPlaceholder(), nil
}
