package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velvetcast/session-service/internal/domain"
	"github.com/velvetcast/session-service/internal/kafka"
	"github.com/velvetcast/session-service/internal/pubsub"
	"github.com/velvetcast/session-service/internal/registry"
	"github.com/velvetcast/session-service/internal/repository"
	"github.com/velvetcast/session-service/internal/store"
)

type disconnectFixture struct {
	listener *DisconnectListener
	bus      *pubsub.MemoryPubSub
	registry registry.Registry
	repo     *repository.MockConversationRepository
	streams  *store.MemoryStreamStore
	usage    *kafka.MockUsageProducer
	caster   *RecordingBroadcaster
}

func newDisconnectFixture(t *testing.T) *disconnectFixture {
	t.Helper()

	f := &disconnectFixture{
		bus:      pubsub.NewMemoryPubSub(),
		registry: registry.NewMemoryRegistry(),
		repo:     repository.NewMockConversationRepository(),
		streams:  store.NewMemoryStreamStore(),
		usage:    &kafka.MockUsageProducer{},
		caster:   NewRecordingBroadcaster(),
	}
	f.listener = NewDisconnectListener(f.bus, f.registry, f.repo, f.streams, f.usage, f.caster)
	return f
}

func disconnectEvent(t *testing.T, eventType, userID string, ghost bool) *pubsub.Event {
	t.Helper()

	event, err := pubsub.NewEvent(eventType, "", pubsub.DisconnectPayload{
		SourceID:  userID,
		GhostMode: ghost,
	})
	require.NoError(t, err)
	return event
}

func disconnectEventFrom(t *testing.T, eventType, userID, connectionID string) *pubsub.Event {
	t.Helper()

	event, err := pubsub.NewEvent(eventType, "", pubsub.DisconnectPayload{
		SourceID:     userID,
		ConnectionID: connectionID,
	})
	require.NoError(t, err)
	return event
}

func countMessages(caster *RecordingBroadcaster, match func(interface{}) bool) int {
	return len(caster.BroadcastsOfType(match))
}

func isStreamEnded(m interface{}) bool {
	_, ok := m.(*domain.StreamEndedMessage)
	return ok
}

func isMemberLeft(m interface{}) bool {
	_, ok := m.(*domain.MemberLeftMessage)
	return ok
}

func isSystem(m interface{}) bool {
	_, ok := m.(*domain.SystemMessage)
	return ok
}

func isRoomInformation(m interface{}) bool {
	_, ok := m.(*domain.RoomInformationMessage)
	return ok
}

func TestViewerDisconnectRemovesFromAllRooms(t *testing.T) {
	f := newDisconnectFixture(t)
	ctx := context.Background()

	f.repo.Put(domain.Conversation{ID: "c1", Type: domain.ConversationTypePublic, PerformerID: "perf-1"})
	f.repo.Put(domain.Conversation{ID: "c2", Type: domain.ConversationTypeGroup, PerformerID: "perf-1", StreamID: "s1"})
	require.NoError(t, f.streams.Create(ctx, "s1", "perf-1"))
	_, err := f.streams.MarkLive(ctx, "s1", time.Now())
	require.NoError(t, err)

	f.registry.Add("public:c1", registry.Member{ConnectionID: "conn-v", UserID: "viewer-1", DisplayName: "Vera", Role: domain.RoleMember})
	f.registry.Add("group:c2", registry.Member{ConnectionID: "conn-v", UserID: "viewer-1", DisplayName: "Vera", Role: domain.RoleMember})
	f.registry.Add("group:c2", registry.Member{ConnectionID: "conn-p", UserID: "perf-1", Role: domain.RoleModel})

	f.listener.handle(ctx, disconnectEvent(t, pubsub.EventViewerDisconnected, "viewer-1", false), false)

	assert.Empty(t, f.registry.Snapshot("public:c1"))
	members := f.registry.Snapshot("group:c2")
	require.Len(t, members, 1)
	assert.Equal(t, "perf-1", members[0].UserID)

	// A viewer dropping a socket never touches broadcast state.
	snap, err := f.streams.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, snap.IsLive())
	assert.Empty(t, f.usage.Produced())
	assert.Equal(t, 0, countMessages(f.caster, isStreamEnded))
}

func TestPerformerDisconnectEndsOwnedStream(t *testing.T) {
	f := newDisconnectFixture(t)
	ctx := context.Background()

	f.repo.Put(domain.Conversation{ID: "c1", Type: domain.ConversationTypePublic, PerformerID: "perf-1", StreamID: "s1"})
	require.NoError(t, f.streams.Create(ctx, "s1", "perf-1"))
	_, err := f.streams.MarkLive(ctx, "s1", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	f.registry.Add("public:c1", registry.Member{ConnectionID: "conn-p", UserID: "perf-1", Role: domain.RoleModel})
	f.registry.Add("public:c1", registry.Member{ConnectionID: "conn-v", UserID: "viewer-1", Role: domain.RoleMember})

	f.listener.handle(ctx, disconnectEvent(t, pubsub.EventPerformerDisconnected, "perf-1", false), true)

	snap, err := f.streams.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, snap.IsLive())
	assert.Equal(t, 1, countMessages(f.caster, isStreamEnded))
	require.Len(t, f.usage.Produced(), 1)
	assert.Equal(t, "perf-1", f.usage.Produced()[0].PerformerID)
}

func TestPerformerPayloadOnViewerChannelCannotEndStream(t *testing.T) {
	f := newDisconnectFixture(t)
	ctx := context.Background()

	f.repo.Put(domain.Conversation{ID: "c1", Type: domain.ConversationTypePublic, PerformerID: "perf-1", StreamID: "s1"})
	require.NoError(t, f.streams.Create(ctx, "s1", "perf-1"))
	_, err := f.streams.MarkLive(ctx, "s1", time.Now())
	require.NoError(t, err)

	f.registry.Add("public:c1", registry.Member{ConnectionID: "conn-p", UserID: "perf-1", Role: domain.RoleModel})
	f.registry.Add("public:c1", registry.Member{ConnectionID: "conn-v", UserID: "viewer-1", Role: domain.RoleMember})

	// Same payload, wrong channel: membership is reconciled but the
	// stream survives.
	f.listener.handle(ctx, disconnectEvent(t, pubsub.EventViewerDisconnected, "perf-1", false), false)

	assert.Empty(t, f.registry.RemoveUserEverywhere("perf-1"))
	snap, err := f.streams.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, snap.IsLive())
}

func TestDisconnectEvictsOnlyStaleConnection(t *testing.T) {
	f := newDisconnectFixture(t)
	ctx := context.Background()

	f.repo.Put(domain.Conversation{ID: "a", Type: domain.ConversationTypePublic, PerformerID: "perf-1"})
	f.repo.Put(domain.Conversation{ID: "b", Type: domain.ConversationTypePublic, PerformerID: "perf-2"})

	// The same viewer holds a stale socket in room a and a fresh one
	// in room b, as after a reconnect mid-session.
	f.registry.Add("public:a", registry.Member{ConnectionID: "conn-stale", UserID: "viewer-1", Role: domain.RoleMember})
	f.registry.Add("public:b", registry.Member{ConnectionID: "conn-fresh", UserID: "viewer-1", Role: domain.RoleMember})

	f.listener.handle(ctx, disconnectEventFrom(t, pubsub.EventViewerDisconnected, "viewer-1", "conn-stale"), false)

	assert.Empty(t, f.registry.Snapshot("public:a"))
	members := f.registry.Snapshot("public:b")
	require.Len(t, members, 1)
	assert.Equal(t, "conn-fresh", members[0].ConnectionID)
}

func TestDisconnectSparesSiblingConnectionInSameRoom(t *testing.T) {
	f := newDisconnectFixture(t)
	ctx := context.Background()

	f.repo.Put(domain.Conversation{ID: "c1", Type: domain.ConversationTypePublic, PerformerID: "perf-1"})
	f.registry.Add("public:c1", registry.Member{ConnectionID: "conn-old", UserID: "viewer-1", Role: domain.RoleMember})
	f.registry.Add("public:c1", registry.Member{ConnectionID: "conn-new", UserID: "viewer-1", Role: domain.RoleMember})

	f.listener.handle(ctx, disconnectEventFrom(t, pubsub.EventViewerDisconnected, "viewer-1", "conn-old"), false)

	members := f.registry.Snapshot("public:c1")
	require.Len(t, members, 1)
	assert.Equal(t, "conn-new", members[0].ConnectionID)
}

func TestGhostModeDisconnectIsSilent(t *testing.T) {
	f := newDisconnectFixture(t)
	ctx := context.Background()

	f.repo.Put(domain.Conversation{ID: "c1", Type: domain.ConversationTypePublic, PerformerID: "perf-1"})
	f.registry.Add("public:c1", registry.Member{ConnectionID: "conn-g", UserID: "ghost-1", Role: domain.RoleMember})
	f.registry.Add("public:c1", registry.Member{ConnectionID: "conn-v", UserID: "viewer-1", Role: domain.RoleMember})

	f.listener.handle(ctx, disconnectEvent(t, pubsub.EventViewerDisconnected, "ghost-1", true), false)

	assert.Len(t, f.registry.Snapshot("public:c1"), 1)
	assert.Equal(t, 0, countMessages(f.caster, isSystem))
	assert.Equal(t, 0, countMessages(f.caster, isMemberLeft))
}

func TestDisconnectWithoutMembershipsIsNoop(t *testing.T) {
	f := newDisconnectFixture(t)

	f.listener.handle(context.Background(), disconnectEvent(t, pubsub.EventViewerDisconnected, "nobody", false), false)
	assert.Empty(t, f.caster.Broadcasts)
}

func TestDisconnectNotifiesRemainingMembers(t *testing.T) {
	f := newDisconnectFixture(t)
	ctx := context.Background()

	f.repo.Put(domain.Conversation{ID: "c1", Type: domain.ConversationTypePublic, PerformerID: "perf-1"})
	f.registry.Add("public:c1", registry.Member{ConnectionID: "conn-v", UserID: "viewer-1", DisplayName: "Vera", Role: domain.RoleMember})
	f.registry.Add("public:c1", registry.Member{ConnectionID: "conn-w", UserID: "viewer-2", Role: domain.RoleMember})

	f.listener.handle(ctx, disconnectEvent(t, pubsub.EventViewerDisconnected, "viewer-1", false), false)

	assert.Equal(t, 1, countMessages(f.caster, isSystem))
	assert.Equal(t, 1, countMessages(f.caster, isMemberLeft))

	// The remaining member also gets the refreshed room snapshot.
	infos := f.caster.BroadcastsOfType(isRoomInformation)
	require.Len(t, infos, 1)
	info := infos[0].Message.(*domain.RoomInformationMessage)
	assert.Equal(t, 1, info.MemberCount)
	require.Len(t, info.Members, 1)
	assert.Equal(t, "viewer-2", info.Members[0].UserID)
}

func TestListenerConsumesBothChannels(t *testing.T) {
	f := newDisconnectFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.repo.Put(domain.Conversation{ID: "c1", Type: domain.ConversationTypePublic, PerformerID: "perf-1"})
	f.registry.Add("public:c1", registry.Member{ConnectionID: "conn-v", UserID: "viewer-1", Role: domain.RoleMember})
	f.registry.Add("public:c1", registry.Member{ConnectionID: "conn-p", UserID: "perf-1", Role: domain.RoleModel})

	done := make(chan struct{})
	go func() {
		f.listener.Start(ctx)
		close(done)
	}()

	// Give Start a moment to register both subscriptions.
	require.Eventually(t, func() bool {
		err := f.bus.Publish(ctx, pubsub.ChannelViewerDisconnect, disconnectEvent(t, pubsub.EventViewerDisconnected, "viewer-1", false))
		return err == nil && len(f.registry.Snapshot("public:c1")) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, f.bus.Publish(ctx, pubsub.ChannelPerformerDisconnect, disconnectEvent(t, pubsub.EventPerformerDisconnected, "perf-1", false)))
	require.Eventually(t, func() bool {
		return len(f.registry.Snapshot("public:c1")) == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not stop on context cancel")
	}
}
