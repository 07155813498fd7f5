package domain

import (
	"fmt"
	"strings"
)

// ConversationType represents the kind of chat context a room is bound to.
type ConversationType string

const (
	ConversationTypePublic  ConversationType = "public"
	ConversationTypePrivate ConversationType = "private"
	ConversationTypeGroup   ConversationType = "group"
)

// Valid reports whether the type is one of the known conversation types.
func (t ConversationType) Valid() bool {
	switch t {
	case ConversationTypePublic, ConversationTypePrivate, ConversationTypeGroup:
		return true
	}
	return false
}

// Conversation is a chat/session context tied to a performer and,
// for private/group sessions, to a stream.
type Conversation struct {
	ID          string           `json:"id"`
	Type        ConversationType `json:"type"`
	PerformerID string           `json:"performer_id"`
	StreamID    string           `json:"stream_id,omitempty"` // empty for public lobby chat
}

// RoomID returns the transport-level room identifier for this conversation.
// A conversation maps 1:1 to a room.
func (c *Conversation) RoomID() string {
	return SerializeRoomID(c.ID, c.Type)
}

// SerializeRoomID builds a room identifier from a conversation id and type.
func SerializeRoomID(conversationID string, t ConversationType) string {
	return fmt.Sprintf("%s:%s", t, conversationID)
}

// ParseRoomID splits a room identifier back into conversation type and id.
func ParseRoomID(roomID string) (ConversationType, string, error) {
	parts := strings.SplitN(roomID, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("invalid room id: %s", roomID)
	}
	t := ConversationType(parts[0])
	if !t.Valid() {
		return "", "", fmt.Errorf("invalid room id type: %s", roomID)
	}
	return t, parts[1], nil
}
