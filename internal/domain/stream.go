package domain

import (
	"sync"
	"time"
)

// StreamState represents the broadcast state of a performer's channel.
type StreamState string

const (
	StreamStateIdle StreamState = "idle"
	StreamStateLive StreamState = "live"
)

// Stream is the aggregate for one performer-owned broadcast channel.
// The live/idle transition is guarded: it only moves idle → live and
// live → idle, so duplicate gateway callbacks are absorbed here.
type Stream struct {
	StreamID      string
	OwnerID       string
	State         StreamState
	ActiveRoomIDs map[string]struct{}
	LastStartedAt *time.Time
	LastEndedAt   *time.Time
	mu            sync.RWMutex
}

// NewStream creates an idle stream aggregate.
func NewStream(streamID, ownerID string) *Stream {
	return &Stream{
		StreamID:      streamID,
		OwnerID:       ownerID,
		State:         StreamStateIdle,
		ActiveRoomIDs: make(map[string]struct{}),
	}
}

// BeginBroadcast moves the stream to live. It returns false when the
// stream is already live, which is how re-delivered started callbacks
// are recognised.
func (s *Stream) BeginBroadcast(at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State == StreamStateLive {
		return false
	}
	s.State = StreamStateLive
	t := at
	s.LastStartedAt = &t
	return true
}

// EndBroadcast moves the stream back to idle and returns the elapsed
// live duration. It returns false when the stream is not live.
func (s *Stream) EndBroadcast(at time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StreamStateLive {
		return 0, false
	}
	s.State = StreamStateIdle
	t := at
	s.LastEndedAt = &t

	var elapsed time.Duration
	if s.LastStartedAt != nil {
		elapsed = at.Sub(*s.LastStartedAt)
	}
	return elapsed, true
}

// IsLive reports whether the stream is currently live.
func (s *Stream) IsLive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State == StreamStateLive
}

// CurrentState returns the stream state.
func (s *Stream) CurrentState() StreamState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

// Timestamps returns the last started/ended times.
func (s *Stream) Timestamps() (started, ended *time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastStartedAt, s.LastEndedAt
}

// AddActiveRoom records a room with an active publish on this stream.
func (s *Stream) AddActiveRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ActiveRoomIDs[roomID] = struct{}{}
}

// RemoveActiveRoom drops a room from the active set.
func (s *Stream) RemoveActiveRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ActiveRoomIDs, roomID)
}

// ActiveRooms returns a copy of the active room id set.
func (s *Stream) ActiveRooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]string, 0, len(s.ActiveRoomIDs))
	for id := range s.ActiveRoomIDs {
		rooms = append(rooms, id)
	}
	return rooms
}
