package store

import (
	"context"
	"sync"
	"time"

	"github.com/velvetcast/session-service/internal/domain"
)

// MemoryStreamStore keeps stream aggregates in process memory. Used in
// tests and single-node deployments; the Redis store is the
// multi-instance backend.
type MemoryStreamStore struct {
	mu      sync.RWMutex
	streams map[string]*domain.Stream
}

// NewMemoryStreamStore creates an empty in-memory stream store.
func NewMemoryStreamStore() *MemoryStreamStore {
	return &MemoryStreamStore{
		streams: make(map[string]*domain.Stream),
	}
}

func (s *MemoryStreamStore) Create(ctx context.Context, streamID, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.streams[streamID]; ok {
		return nil
	}
	s.streams[streamID] = domain.NewStream(streamID, ownerID)
	return nil
}

func (s *MemoryStreamStore) get(streamID string) (*domain.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.streams[streamID]
	if !ok {
		return nil, domain.ErrStreamNotFound
	}
	return st, nil
}

func (s *MemoryStreamStore) Get(ctx context.Context, streamID string) (*StreamSnapshot, error) {
	st, err := s.get(streamID)
	if err != nil {
		return nil, err
	}

	started, ended := st.Timestamps()
	return &StreamSnapshot{
		StreamID:      st.StreamID,
		OwnerID:       st.OwnerID,
		State:         st.CurrentState(),
		ActiveRoomIDs: st.ActiveRooms(),
		LastStartedAt: started,
		LastEndedAt:   ended,
	}, nil
}

func (s *MemoryStreamStore) MarkLive(ctx context.Context, streamID string, at time.Time) (bool, error) {
	st, err := s.get(streamID)
	if err != nil {
		return false, err
	}
	return st.BeginBroadcast(at), nil
}

func (s *MemoryStreamStore) MarkIdle(ctx context.Context, streamID string, at time.Time) (time.Duration, bool, error) {
	st, err := s.get(streamID)
	if err != nil {
		return 0, false, err
	}
	elapsed, ok := st.EndBroadcast(at)
	return elapsed, ok, nil
}

func (s *MemoryStreamStore) AddActiveRoom(ctx context.Context, streamID, roomID string) error {
	st, err := s.get(streamID)
	if err != nil {
		return err
	}
	st.AddActiveRoom(roomID)
	return nil
}

func (s *MemoryStreamStore) RemoveActiveRoom(ctx context.Context, streamID, roomID string) error {
	st, err := s.get(streamID)
	if err != nil {
		return err
	}
	st.RemoveActiveRoom(roomID)
	return nil
}
