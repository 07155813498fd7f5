package store

import (
	"context"
	"time"

	"github.com/velvetcast/session-service/internal/domain"
)

// StreamSnapshot is a read-only copy of a stream aggregate.
type StreamSnapshot struct {
	StreamID      string
	OwnerID       string
	State         domain.StreamState
	ActiveRoomIDs []string
	LastStartedAt *time.Time
	LastEndedAt   *time.Time
}

// IsLive reports whether the snapshot was taken while the stream was live.
func (s *StreamSnapshot) IsLive() bool {
	return s.State == domain.StreamStateLive
}

// StreamStore persists the stream aggregate. Updates are
// compare-and-set on the live flag: the current state is the only
// idempotency guard, so duplicate gateway callbacks are absorbed
// without a persisted dedup cache. Writes are single-writer per
// streamId (one owning performer per stream).
type StreamStore interface {
	// Create registers a stream aggregate in the idle state. Creating
	// an existing stream is a no-op.
	Create(ctx context.Context, streamID, ownerID string) error

	// Get returns a snapshot, or domain.ErrStreamNotFound.
	Get(ctx context.Context, streamID string) (*StreamSnapshot, error)

	// MarkLive transitions idle → live and records the start time. It
	// returns false when the stream is already live.
	MarkLive(ctx context.Context, streamID string, at time.Time) (bool, error)

	// MarkIdle transitions live → idle, records the end time and
	// returns the elapsed live duration. It returns false when the
	// stream is not live.
	MarkIdle(ctx context.Context, streamID string, at time.Time) (time.Duration, bool, error)

	// AddActiveRoom and RemoveActiveRoom maintain the set of rooms
	// with an active publish for this stream.
	AddActiveRoom(ctx context.Context, streamID, roomID string) error
	RemoveActiveRoom(ctx context.Context, streamID, roomID string) error
}
