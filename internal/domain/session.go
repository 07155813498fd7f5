package domain

import (
	"sync"
	"time"
)

// JoinState is the per-(conversation, connection) membership state.
type JoinState string

const (
	JoinStateUnjoined JoinState = "unjoined"
	JoinStateJoining  JoinState = "joining"
	JoinStateJoined   JoinState = "joined"
	JoinStateLeft     JoinState = "left"
)

// Session tracks the state of a single transport connection: the
// resolved identity and the join state per conversation. One user may
// hold several concurrent sessions (multi-tab, multi-device).
type Session struct {
	ConnectionID string
	Identity     *Identity
	CreatedAt    time.Time
	LastActiveAt time.Time

	joinStates map[string]JoinState // conversationID -> state
	mu         sync.RWMutex
}

func NewSession(connectionID string) *Session {
	now := time.Now()
	return &Session{
		ConnectionID: connectionID,
		CreatedAt:    now,
		LastActiveAt: now,
		joinStates:   make(map[string]JoinState),
	}
}

// SetIdentity records the authenticated identity on the session.
func (s *Session) SetIdentity(identity *Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Identity = identity
	s.LastActiveAt = time.Now()
}

// GetIdentity returns the resolved identity, or nil before authentication.
func (s *Session) GetIdentity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Identity
}

// JoinStateFor returns the join state for a conversation.
func (s *Session) JoinStateFor(conversationID string) JoinState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.joinStates[conversationID]; ok {
		return st
	}
	return JoinStateUnjoined
}

// SetJoinState moves the per-conversation state machine. Left is
// terminal only in the sense that a fresh join restarts from joining.
func (s *Session) SetJoinState(conversationID string, st JoinState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joinStates[conversationID] = st
	s.LastActiveAt = time.Now()
}

// JoinedConversations lists conversation ids currently in the joined state.
func (s *Session) JoinedConversations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.joinStates))
	for id, st := range s.joinStates {
		if st == JoinStateJoined {
			ids = append(ids, id)
		}
	}
	return ids
}

// UpdateActivity bumps the last-active timestamp.
func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
