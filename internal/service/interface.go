package service

import (
	"context"

	"github.com/velvetcast/session-service/internal/domain"
	"github.com/velvetcast/session-service/internal/hub"
	"github.com/velvetcast/session-service/internal/registry"
)

// Broadcaster fans messages out to room members. Implemented by
// hub.Hub; tests substitute a recording double. Callers pass the
// member snapshot taken together with the registry mutation so the
// fan-out target set is consistent with what they mutated.
type Broadcaster interface {
	BroadcastToMembers(members []registry.Member, message interface{})
	SendToConnection(connectionID string, message interface{})
}

// SessionService handles client-initiated join/leave for
// conversations and serves room information snapshots.
type SessionService interface {
	HandleAuth(ctx context.Context, c *hub.Client, token string) error
	JoinConversation(ctx context.Context, c *hub.Client, conversationID, token string) error
	LeaveConversation(ctx context.Context, c *hub.Client, conversationID string) error
	RoomInfo(ctx context.Context, conversationID string) (*domain.RoomInformationMessage, error)
}

// CallbackReconciler consumes media-gateway lifecycle callbacks and
// applies idempotent transitions to the stream store and registry. It
// never propagates errors: callbacks are at-least-once and a bad one
// must not stall the dispatch loop.
type CallbackReconciler interface {
	HandleBroadcastCallback(ctx context.Context, raw []byte)
}
