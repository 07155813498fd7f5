package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID       = "user_id"
	FieldConnectionID = "connection_id"

	// Session coordination
	FieldConversationID = "conversation_id"
	FieldRoomID         = "room_id"
	FieldStreamID       = "stream_id"
	FieldBroadcastID    = "broadcast_id"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
