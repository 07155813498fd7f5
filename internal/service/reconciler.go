package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/velvetcast/session-service/internal/audit"
	"github.com/velvetcast/session-service/internal/client"
	"github.com/velvetcast/session-service/internal/domain"
	"github.com/velvetcast/session-service/internal/kafka"
	"github.com/velvetcast/session-service/internal/log"
	"github.com/velvetcast/session-service/internal/registry"
	"github.com/velvetcast/session-service/internal/repository"
	"github.com/velvetcast/session-service/internal/store"
)

// Callback actions from the media gateway.
const (
	CallbackActionStarted = "started"
	CallbackActionEnded   = "ended"
)

// BroadcastCallback is the minimal payload the gateway posts; session
// metadata is fetched back from the gateway, not trusted from the
// callback body.
type BroadcastCallback struct {
	BroadcastID string `json:"broadcast_id"`
	Action      string `json:"action"`
}

type callbackReconciler struct {
	registry registry.Registry
	repo     repository.ConversationRepository
	streams  store.StreamStore
	gateway  client.GatewayClient
	usage    kafka.UsageProducer
	caster   Broadcaster
	now      func() time.Time
}

// NewCallbackReconciler creates the gateway callback reconciler.
func NewCallbackReconciler(
	reg registry.Registry,
	repo repository.ConversationRepository,
	streams store.StreamStore,
	gateway client.GatewayClient,
	usage kafka.UsageProducer,
	caster Broadcaster,
) CallbackReconciler {
	return &callbackReconciler{
		registry: reg,
		repo:     repo,
		streams:  streams,
		gateway:  gateway,
		usage:    usage,
		caster:   caster,
		now:      time.Now,
	}
}

// HandleBroadcastCallback applies one gateway lifecycle callback. It
// never propagates an error or panic: delivery is at-least-once and a
// single bad callback must not stall the dispatch loop.
func (r *callbackReconciler) HandleBroadcastCallback(ctx context.Context, raw []byte) {
	l := log.Ctx(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			l.Error().Interface("panic", rec).Msg("panic during callback reconciliation")
		}
	}()

	var cb BroadcastCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		l.Warn().Err(err).Msg("malformed broadcast callback, dropping")
		return
	}
	if cb.BroadcastID == "" {
		l.Warn().Msg("broadcast callback without id, dropping")
		return
	}

	// The callback payload is minimal; resolve the broadcast to its
	// metadata through the gateway.
	status, err := r.gateway.GetBroadcastStatus(ctx, cb.BroadcastID)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldBroadcastID, cb.BroadcastID).Msg("cannot resolve broadcast metadata, dropping callback")
		return
	}

	meta := status.Metadata
	if meta.ConversationID == "" || meta.StreamID == "" || meta.PublisherID == "" {
		l.Warn().Str(log.FieldBroadcastID, cb.BroadcastID).Msg("incomplete broadcast metadata, dropping callback")
		return
	}

	conv, err := r.repo.FindByID(ctx, meta.ConversationID)
	if err != nil {
		// The broadcast predates or outlives the conversation record;
		// not worth surfacing.
		if !errors.Is(err, repository.ErrConversationNotFound) {
			l.Warn().Err(err).Str(log.FieldConversationID, meta.ConversationID).Msg("conversation lookup failed, dropping callback")
		}
		return
	}

	stream, err := r.streams.Get(ctx, meta.StreamID)
	if err != nil {
		if !errors.Is(err, domain.ErrStreamNotFound) {
			l.Warn().Err(err).Str(log.FieldStreamID, meta.StreamID).Msg("stream lookup failed, dropping callback")
		}
		return
	}

	switch cb.Action {
	case CallbackActionStarted:
		r.handleStarted(ctx, conv, stream, meta)
	case CallbackActionEnded:
		r.handleEnded(ctx, conv, stream, meta)
	default:
		l.Warn().Str("action", cb.Action).Msg("unknown broadcast callback action, dropping")
	}
}

func (r *callbackReconciler) handleStarted(ctx context.Context, conv *domain.Conversation, stream *store.StreamSnapshot, meta client.BroadcastMetadata) {
	l := log.Ctx(ctx)
	roomID := conv.RoomID()

	if meta.PublisherID == stream.OwnerID && conv.Type == domain.ConversationTypePublic {
		// Compare-and-set on the live flag is the only idempotency
		// guard; a re-delivered started callback changes nothing and
		// emits nothing.
		changed, err := r.streams.MarkLive(ctx, stream.StreamID, r.now())
		if err != nil {
			l.Error().Err(err).Str(log.FieldStreamID, stream.StreamID).Msg("failed to mark stream live")
			return
		}
		if !changed {
			l.Debug().Str(log.FieldStreamID, stream.StreamID).Msg("duplicate started callback, skipping")
			return
		}

		if err := r.streams.AddActiveRoom(ctx, stream.StreamID, roomID); err != nil {
			l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to record active room")
		}

		r.caster.BroadcastToMembers(r.registry.Snapshot(roomID), &domain.PublisherJoinedMessage{
			Type:           domain.MsgTypePublisherJoined,
			ConversationID: conv.ID,
			StreamID:       stream.StreamID,
			PublisherID:    meta.PublisherID,
		})

		audit.Log(ctx, audit.ActionBroadcastStart, meta.PublisherID, "broadcast started on stream "+stream.StreamID)
		l.Info().
			Str(log.FieldStreamID, stream.StreamID).
			Str(log.FieldRoomID, roomID).
			Msg("stream live")
		return
	}

	// Private/group publishes and guest co-publishes are room-level
	// announcements only; the stream-wide flag tracks the owner's
	// public broadcast.
	r.caster.BroadcastToMembers(r.registry.Snapshot(roomID), &domain.PublisherJoinedMessage{
		Type:           domain.MsgTypePublisherJoined,
		ConversationID: conv.ID,
		StreamID:       stream.StreamID,
		PublisherID:    meta.PublisherID,
	})
}

func (r *callbackReconciler) handleEnded(ctx context.Context, conv *domain.Conversation, stream *store.StreamSnapshot, meta client.BroadcastMetadata) {
	l := log.Ctx(ctx)
	roomID := conv.RoomID()

	if err := r.streams.RemoveActiveRoom(ctx, stream.StreamID, roomID); err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to remove active room")
	}

	isOwner := meta.PublisherID == stream.OwnerID
	streamEndedSent := false

	if isOwner {
		endedAt := r.now()
		elapsed, changed, err := r.streams.MarkIdle(ctx, stream.StreamID, endedAt)
		if err != nil {
			l.Error().Err(err).Str(log.FieldStreamID, stream.StreamID).Msg("failed to mark stream idle")
			return
		}
		// The CAS absorbs duplicate deliveries and owner ended
		// callbacks for sessions that never set the stream-wide flag.
		if changed {
			r.caster.BroadcastToMembers(r.registry.Snapshot(roomID), &domain.StreamEndedMessage{
				Type:            domain.MsgTypeStreamEnded,
				ConversationID:  conv.ID,
				StreamID:        stream.StreamID,
				DurationSeconds: int64(elapsed.Seconds()),
			})
			streamEndedSent = true

			// Downstream usage accounting for the earning subsystem.
			if r.usage != nil {
				event := &kafka.UsageEvent{
					StreamID:        stream.StreamID,
					ConversationID:  conv.ID,
					PerformerID:     stream.OwnerID,
					StartedAt:       endedAt.Add(-elapsed).Unix(),
					EndedAt:         endedAt.Unix(),
					DurationSeconds: int64(elapsed.Seconds()),
				}
				if err := r.usage.ProduceUsage(ctx, event); err != nil {
					l.Error().Err(err).Str(log.FieldStreamID, stream.StreamID).Msg("failed to produce usage event")
				}
			}

			audit.Log(ctx, audit.ActionBroadcastStop, meta.PublisherID, "broadcast ended on stream "+stream.StreamID)
			l.Info().
				Str(log.FieldStreamID, stream.StreamID).
				Dur("elapsed", elapsed).
				Msg("stream idle")
		}
	}

	if isOwner && conv.Type == domain.ConversationTypeGroup {
		r.evictPublisherFromRoom(conv, roomID, meta.PublisherID)
	}

	switch {
	case conv.Type == domain.ConversationTypePrivate && !streamEndedSent:
		// A private session ends with its publisher; tell the room.
		r.caster.BroadcastToMembers(r.registry.Snapshot(roomID), &domain.StreamEndedMessage{
			Type:           domain.MsgTypeStreamEnded,
			ConversationID: conv.ID,
			StreamID:       stream.StreamID,
		})
	case !isOwner && conv.Type != domain.ConversationTypePrivate:
		// A guest publisher leaving does not end the owner's stream.
		r.caster.BroadcastToMembers(r.registry.Snapshot(roomID), &domain.PublisherLeftMessage{
			Type:           domain.MsgTypePublisherLeft,
			ConversationID: conv.ID,
			PublisherID:    meta.PublisherID,
		})
	}
}

// evictPublisherFromRoom removes the leaving publisher's connections
// from a group room and pushes the recomputed member list to the
// remaining viewers.
func (r *callbackReconciler) evictPublisherFromRoom(conv *domain.Conversation, roomID, publisherID string) {
	var remaining []registry.Member
	removed := false
	for _, m := range r.registry.Snapshot(roomID) {
		if m.UserID != publisherID {
			continue
		}
		remaining, _ = r.registry.Remove(roomID, m.ConnectionID)
		removed = true
	}
	if !removed {
		return
	}

	r.caster.BroadcastToMembers(remaining, &domain.RoomInformationMessage{
		Type:           domain.MsgTypeRoomInformation,
		ConversationID: conv.ID,
		MemberCount:    len(remaining),
		Members:        unrankedViews(remaining),
	})
}

// unrankedViews builds member views without rank decoration, for
// registry-driven fan-out where no rank lookup is warranted.
func unrankedViews(members []registry.Member) []domain.MemberView {
	views := make([]domain.MemberView, 0, len(members))
	for _, m := range members {
		views = append(views, domain.MemberView{
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			Role:        m.Role,
			Rank:        domain.UnrankedPlaceholder(),
		})
	}
	return views
}
