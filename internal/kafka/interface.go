package kafka

import "context"

// UsageEvent is the downstream usage-accounting record emitted when a
// performer's broadcast ends. The earning subsystem consumes it.
type UsageEvent struct {
	StreamID        string `json:"stream_id"`
	ConversationID  string `json:"conversation_id"`
	PerformerID     string `json:"performer_id"`
	StartedAt       int64  `json:"started_at"`
	EndedAt         int64  `json:"ended_at"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// UsageProducer publishes usage-accounting events.
type UsageProducer interface {
	ProduceUsage(ctx context.Context, event *UsageEvent) error
	Close() error
}
