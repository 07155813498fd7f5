package pubsub

// Channel names for transport disconnect events. Performer and viewer
// disconnects are two separate subscriptions so a viewer dropping a
// socket can never tear down a broadcast.
const (
	ChannelPerformerDisconnect = "session:disconnect:performer"
	ChannelViewerDisconnect    = "session:disconnect:viewer"
)

// Event types on the disconnect channels.
const (
	EventPerformerDisconnected = "performer_disconnected"
	EventViewerDisconnected    = "viewer_disconnected"
)

// DisconnectPayload describes a transport-level connection loss. The
// connection id scopes the eviction: the user may already have
// reconnected under a new connection id by the time this fires, and
// only the stale connection is removed. Without a connection id the
// consumer falls back to removing the user everywhere.
type DisconnectPayload struct {
	SourceID     string `json:"source_id"` // user or performer id
	ConnectionID string `json:"connection_id,omitempty"`
	GhostMode    bool   `json:"ghost_mode,omitempty"`
}
