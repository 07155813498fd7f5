package service

import (
	"context"
	"errors"
	"time"

	"github.com/velvetcast/session-service/internal/audit"
	"github.com/velvetcast/session-service/internal/domain"
	"github.com/velvetcast/session-service/internal/kafka"
	"github.com/velvetcast/session-service/internal/log"
	"github.com/velvetcast/session-service/internal/pubsub"
	"github.com/velvetcast/session-service/internal/registry"
	"github.com/velvetcast/session-service/internal/repository"
	"github.com/velvetcast/session-service/internal/store"
)

// DisconnectListener consumes transport-level disconnect events and
// reconciles registry and stream state. The two disconnect channels
// are subscribed independently: only the performer channel may mark a
// stream idle, so a viewer dropping a socket never ends a broadcast.
type DisconnectListener struct {
	bus      pubsub.Subscriber
	registry registry.Registry
	repo     repository.ConversationRepository
	streams  store.StreamStore
	usage    kafka.UsageProducer
	caster   Broadcaster
	now      func() time.Time
}

// NewDisconnectListener creates the disconnect reconciliation listener.
func NewDisconnectListener(
	bus pubsub.Subscriber,
	reg registry.Registry,
	repo repository.ConversationRepository,
	streams store.StreamStore,
	usage kafka.UsageProducer,
	caster Broadcaster,
) *DisconnectListener {
	return &DisconnectListener{
		bus:      bus,
		registry: reg,
		repo:     repo,
		streams:  streams,
		usage:    usage,
		caster:   caster,
		now:      time.Now,
	}
}

// Start subscribes both disconnect channels and blocks until the
// context is cancelled. Each channel must be registered explicitly;
// there is no wildcard subscription.
func (d *DisconnectListener) Start(ctx context.Context) error {
	performerCh, err := d.bus.Subscribe(ctx, pubsub.ChannelPerformerDisconnect)
	if err != nil {
		return err
	}
	viewerCh, err := d.bus.Subscribe(ctx, pubsub.ChannelViewerDisconnect)
	if err != nil {
		return err
	}

	l := log.Ctx(ctx)
	l.Info().
		Str("performer_channel", pubsub.ChannelPerformerDisconnect).
		Str("viewer_channel", pubsub.ChannelViewerDisconnect).
		Msg("disconnect listener started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-performerCh:
			if !ok {
				return errors.New("performer disconnect channel closed")
			}
			d.handle(ctx, event, true)
		case event, ok := <-viewerCh:
			if !ok {
				return errors.New("viewer disconnect channel closed")
			}
			d.handle(ctx, event, false)
		}
	}
}

func (d *DisconnectListener) handle(ctx context.Context, event *pubsub.Event, fromPerformerChannel bool) {
	l := log.Ctx(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			l.Error().Interface("panic", rec).Msg("panic during disconnect reconciliation")
		}
	}()

	var payload pubsub.DisconnectPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		l.Warn().Err(err).Str("event_type", event.Type).Msg("malformed disconnect payload, dropping")
		return
	}
	if payload.SourceID == "" {
		l.Warn().Str("event_type", event.Type).Msg("disconnect without source id, dropping")
		return
	}

	// Eviction is keyed by the dropped connection so a user's other
	// live sockets keep their memberships. Events without a
	// connection id, such as an operator-issued kick, fall back to
	// user-wide removal.
	var evictions []registry.Eviction
	if payload.ConnectionID != "" {
		evictions = d.registry.RemoveConnectionEverywhere(payload.SourceID, payload.ConnectionID)
	} else {
		evictions = d.registry.RemoveUserEverywhere(payload.SourceID)
	}
	if len(evictions) == 0 {
		// Already reconciled by an explicit leave or a newer session.
		l.Debug().Str(log.FieldUserID, payload.SourceID).Msg("disconnect for user with no memberships")
		return
	}

	conversations := d.loadConversations(ctx, evictions)

	for _, ev := range evictions {
		d.reconcileRoom(ctx, ev, payload, conversations, fromPerformerChannel)
	}

	audit.Log(ctx, audit.ActionDisconnect, payload.SourceID, "disconnect reconciled")
	l.Info().
		Str(log.FieldUserID, payload.SourceID).
		Int("room_count", len(evictions)).
		Msg("disconnect reconciled")
}

// loadConversations batch-fetches the conversation records behind the
// evicted rooms. Unknown rooms are simply absent from the map.
func (d *DisconnectListener) loadConversations(ctx context.Context, evictions []registry.Eviction) map[string]domain.Conversation {
	l := log.Ctx(ctx)

	ids := make([]string, 0, len(evictions))
	for _, ev := range evictions {
		if _, id, err := domain.ParseRoomID(ev.RoomID); err == nil {
			ids = append(ids, id)
		}
	}

	conversations, err := d.repo.ListByIDs(ctx, ids)
	if err != nil {
		l.Warn().Err(err).Int("ids", len(ids)).Msg("conversation batch lookup failed during disconnect")
		return nil
	}

	byID := make(map[string]domain.Conversation, len(conversations))
	for _, conv := range conversations {
		byID[conv.ID] = conv
	}
	return byID
}

func (d *DisconnectListener) reconcileRoom(ctx context.Context, ev registry.Eviction, payload pubsub.DisconnectPayload, conversations map[string]domain.Conversation, fromPerformerChannel bool) {
	l := log.Ctx(ctx)

	convType, conversationID, err := domain.ParseRoomID(ev.RoomID)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldRoomID, ev.RoomID).Msg("unparseable room id during disconnect")
		return
	}

	wasModel := false
	displayName := ""
	for _, m := range ev.Removed {
		if m.Role == domain.RoleModel {
			wasModel = true
		}
		displayName = m.DisplayName
	}

	if len(ev.Remaining) > 0 {
		// Ghost-mode viewers entered silently and leave silently.
		if !payload.GhostMode {
			d.caster.BroadcastToMembers(ev.Remaining, &domain.SystemMessage{
				Type:           domain.MsgTypeSystem,
				ConversationID: conversationID,
				Content:        displayName + " disconnected",
				Timestamp:      d.now().Unix(),
			})
			d.caster.BroadcastToMembers(ev.Remaining, &domain.MemberLeftMessage{
				Type:           domain.MsgTypeMemberLeft,
				ConversationID: conversationID,
				UserID:         payload.SourceID,
				MemberCount:    len(ev.Remaining),
			})
		}

		if wasModel {
			d.caster.BroadcastToMembers(ev.Remaining, &domain.PublisherLeftMessage{
				Type:           domain.MsgTypePublisherLeft,
				ConversationID: conversationID,
				PublisherID:    payload.SourceID,
			})
		}

		// Membership changed; push the refreshed room snapshot the
		// same way an explicit leave does.
		d.caster.BroadcastToMembers(ev.Remaining, &domain.RoomInformationMessage{
			Type:           domain.MsgTypeRoomInformation,
			ConversationID: conversationID,
			MemberCount:    len(ev.Remaining),
			Members:        unrankedViews(ev.Remaining),
		})
	}

	// Stream teardown is gated on the performer channel. The viewer
	// channel never touches broadcast state even if the payload lies
	// about who disconnected.
	if !fromPerformerChannel || !wasModel {
		return
	}
	if convType != domain.ConversationTypePublic && convType != domain.ConversationTypeGroup {
		return
	}

	conv, ok := conversations[conversationID]
	if !ok {
		return
	}
	d.endOwnedStream(ctx, conv, ev)
}

// endOwnedStream marks the disconnected performer's stream idle and
// notifies whoever is still in the room.
func (d *DisconnectListener) endOwnedStream(ctx context.Context, conv domain.Conversation, ev registry.Eviction) {
	l := log.Ctx(ctx)

	if conv.StreamID == "" {
		return
	}

	endedAt := d.now()
	elapsed, changed, err := d.streams.MarkIdle(ctx, conv.StreamID, endedAt)
	if err != nil {
		if !errors.Is(err, domain.ErrStreamNotFound) {
			l.Error().Err(err).Str(log.FieldStreamID, conv.StreamID).Msg("failed to mark stream idle on disconnect")
		}
		return
	}
	if !changed {
		// The gateway callback won the race; nothing left to do.
		return
	}

	if err := d.streams.RemoveActiveRoom(ctx, conv.StreamID, ev.RoomID); err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, ev.RoomID).Msg("failed to remove active room on disconnect")
	}

	d.caster.BroadcastToMembers(ev.Remaining, &domain.StreamEndedMessage{
		Type:            domain.MsgTypeStreamEnded,
		ConversationID:  conv.ID,
		StreamID:        conv.StreamID,
		DurationSeconds: int64(elapsed.Seconds()),
	})

	if d.usage != nil {
		event := &kafka.UsageEvent{
			StreamID:        conv.StreamID,
			ConversationID:  conv.ID,
			PerformerID:     conv.PerformerID,
			StartedAt:       endedAt.Add(-elapsed).Unix(),
			EndedAt:         endedAt.Unix(),
			DurationSeconds: int64(elapsed.Seconds()),
		}
		if err := d.usage.ProduceUsage(ctx, event); err != nil {
			l.Error().Err(err).Str(log.FieldStreamID, conv.StreamID).Msg("failed to produce usage event")
		}
	}

	audit.Log(ctx, audit.ActionBroadcastStop, conv.PerformerID, "broadcast ended by performer disconnect")
	l.Info().
		Str(log.FieldStreamID, conv.StreamID).
		Dur("elapsed", elapsed).
		Msg("stream idle after performer disconnect")
}
