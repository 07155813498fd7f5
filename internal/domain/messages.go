package domain

// WebSocket message types from client.
const (
	MsgTypeAuth      = "auth"
	MsgTypeJoin      = "join_conversation"
	MsgTypeLeave     = "leave_conversation"
	MsgTypePing      = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeAuthResult      = "auth_result"
	MsgTypeJoined          = "joined"
	MsgTypeMemberJoined    = "member_joined"
	MsgTypeMemberLeft      = "member_left"
	MsgTypeRoomInformation = "room_information_changed"
	MsgTypePublisherJoined = "publisher_joined"
	MsgTypePublisherLeft   = "publisher_left"
	MsgTypeStreamEnded     = "stream_ended"
	MsgTypeSystem          = "system"
	MsgTypeError           = "error"
	MsgTypePong            = "pong"
)

// Error codes
const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeNotJoinable      = "NOT_JOINABLE"
	ErrCodeGatewayError     = "GATEWAY_ERROR"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type AuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type JoinMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Token          string `json:"token"`
}

type LeaveMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

// Server -> Client messages

type AuthResultMessage struct {
	Type        string `json:"type"`
	Success     bool   `json:"success"`
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Message     string `json:"message,omitempty"`
}

type JoinedMessage struct {
	Type           string       `json:"type"`
	ConversationID string       `json:"conversation_id"`
	RoomID         string       `json:"room_id"`
	Role           Role         `json:"role"`
	Members        []MemberView `json:"members"`
}

type MemberJoinedMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	DisplayName    string `json:"display_name"`
	Role           Role   `json:"role"`
	MemberCount    int    `json:"member_count"`
}

type MemberLeftMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	MemberCount    int    `json:"member_count"`
}

type RoomInformationMessage struct {
	Type           string       `json:"type"`
	ConversationID string       `json:"conversation_id"`
	MemberCount    int          `json:"member_count"`
	Members        []MemberView `json:"members"`
}

type PublisherJoinedMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	StreamID       string `json:"stream_id"`
	PublisherID    string `json:"publisher_id"`
}

type PublisherLeftMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	PublisherID    string `json:"publisher_id"`
}

type StreamEndedMessage struct {
	Type            string `json:"type"`
	ConversationID  string `json:"conversation_id"`
	StreamID        string `json:"stream_id"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type SystemMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
