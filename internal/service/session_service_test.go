package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velvetcast/session-service/internal/auth"
	"github.com/velvetcast/session-service/internal/client"
	"github.com/velvetcast/session-service/internal/config"
	"github.com/velvetcast/session-service/internal/domain"
	"github.com/velvetcast/session-service/internal/hub"
	"github.com/velvetcast/session-service/internal/registry"
	"github.com/velvetcast/session-service/internal/repository"
)

type sessionFixture struct {
	svc      SessionService
	registry registry.Registry
	repo     *repository.MockConversationRepository
	resolver *auth.MockResolver
	gateway  *client.MockGatewayClient
	caster   *RecordingBroadcaster
}

func newSessionFixture() *sessionFixture {
	f := &sessionFixture{
		registry: registry.NewMemoryRegistry(),
		repo:     repository.NewMockConversationRepository(),
		resolver: auth.NewMockResolver(),
		gateway:  client.NewMockGatewayClient(),
		caster:   NewRecordingBroadcaster(),
	}
	f.svc = NewSessionService(f.registry, f.repo, f.resolver, f.gateway, &client.MockRankService{}, f.caster)
	return f
}

func newTestClient(id string) *hub.Client {
	return hub.NewClient(id, nil, nil, config.WebSocketConfig{})
}

// drainMessages decodes everything queued on the client's send channel.
func drainMessages(t *testing.T, c *hub.Client) []map[string]interface{} {
	t.Helper()

	var out []map[string]interface{}
	for {
		select {
		case data := <-c.Send:
			var msg map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &msg))
			out = append(out, msg)
		default:
			return out
		}
	}
}

func lastMessageOfType(msgs []map[string]interface{}, msgType string) map[string]interface{} {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i]["type"] == msgType {
			return msgs[i]
		}
	}
	return nil
}

func countBroadcastsOfType(caster *RecordingBroadcaster, msgType string) int {
	n := 0
	for _, b := range caster.Broadcasts {
		switch m := b.Message.(type) {
		case *domain.MemberJoinedMessage:
			if m.Type == msgType {
				n++
			}
		case *domain.MemberLeftMessage:
			if m.Type == msgType {
				n++
			}
		case *domain.RoomInformationMessage:
			if m.Type == msgType {
				n++
			}
		}
	}
	return n
}

func TestJoinPublicConversation(t *testing.T) {
	f := newSessionFixture()
	f.repo.Put(domain.Conversation{ID: "c1", Type: domain.ConversationTypePublic, PerformerID: "perf-1"})
	f.resolver.Put("tok-v1", &domain.Identity{UserID: "viewer-1", DisplayName: "Vera"})

	c := newTestClient("conn-1")
	err := f.svc.JoinConversation(context.Background(), c, "c1", "tok-v1")
	require.NoError(t, err)

	assert.Equal(t, domain.JoinStateJoined, c.Session.JoinStateFor("c1"))

	members := f.registry.Snapshot("public:c1")
	require.Len(t, members, 1)
	assert.Equal(t, "viewer-1", members[0].UserID)
	assert.Equal(t, domain.RoleMember, members[0].Role)

	assert.Equal(t, 1, countBroadcastsOfType(f.caster, domain.MsgTypeMemberJoined))
	assert.Equal(t, 1, countBroadcastsOfType(f.caster, domain.MsgTypeRoomInformation))

	msgs := drainMessages(t, c)
	joined := lastMessageOfType(msgs, domain.MsgTypeJoined)
	require.NotNil(t, joined)
	assert.Equal(t, "public:c1", joined["room_id"])
	assert.Equal(t, "member", joined["role"])
}

func TestJoinDeniedOnBadToken(t *testing.T) {
	f := newSessionFixture()
	f.repo.Put(domain.Conversation{ID: "c1", Type: domain.ConversationTypePublic, PerformerID: "perf-1"})

	c := newTestClient("conn-1")
	err := f.svc.JoinConversation(context.Background(), c, "c1", "bad-token")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	// Denied with no state change.
	assert.Equal(t, domain.JoinStateUnjoined, c.Session.JoinStateFor("c1"))
	assert.Empty(t, f.registry.Snapshot("public:c1"))
	assert.Empty(t, f.caster.Broadcasts)

	msgs := drainMessages(t, c)
	errMsg := lastMessageOfType(msgs, domain.MsgTypeError)
	require.NotNil(t, errMsg)
	assert.Equal(t, domain.ErrCodeUnauthorized, errMsg["code"])
}

func TestJoinUnknownConversation(t *testing.T) {
	f := newSessionFixture()
	f.resolver.Put("tok-v1", &domain.Identity{UserID: "viewer-1"})

	c := newTestClient("conn-1")
	err := f.svc.JoinConversation(context.Background(), c, "ghost", "tok-v1")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	assert.Equal(t, domain.JoinStateUnjoined, c.Session.JoinStateFor("ghost"))
}

func TestJoinRejectedWhenBroadcastEnded(t *testing.T) {
	f := newSessionFixture()
	f.repo.Put(domain.Conversation{ID: "c1", Type: domain.ConversationTypePrivate, PerformerID: "perf-1", StreamID: "s1"})
	f.resolver.Put("tok-v1", &domain.Identity{UserID: "viewer-1"})
	f.gateway.SetStatus("s1", &client.BroadcastStatus{Status: client.BroadcastStatusEnded})

	c := newTestClient("conn-1")
	err := f.svc.JoinConversation(context.Background(), c, "c1", "tok-v1")
	assert.ErrorIs(t, err, domain.ErrNotJoinable)

	// The session lands in left, not joined, and the registry is untouched.
	assert.Equal(t, domain.JoinStateLeft, c.Session.JoinStateFor("c1"))
	assert.Empty(t, f.registry.Snapshot("private:c1"))
	assert.Empty(t, f.caster.Broadcasts)

	msgs := drainMessages(t, c)
	errMsg := lastMessageOfType(msgs, domain.MsgTypeError)
	require.NotNil(t, errMsg)
	assert.Equal(t, domain.ErrCodeNotJoinable, errMsg["code"])
}

func TestJoinWhenGatewayUnavailable(t *testing.T) {
	f := newSessionFixture()
	f.repo.Put(domain.Conversation{ID: "c1", Type: domain.ConversationTypePrivate, PerformerID: "perf-1", StreamID: "s1"})
	f.resolver.Put("tok-v1", &domain.Identity{UserID: "viewer-1"})
	f.gateway.Err = errors.New("connection refused")

	c := newTestClient("conn-1")
	err := f.svc.JoinConversation(context.Background(), c, "c1", "tok-v1")
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)

	// Unjoined, so the client may retry.
	assert.Equal(t, domain.JoinStateUnjoined, c.Session.JoinStateFor("c1"))
	assert.Empty(t, f.registry.Snapshot("private:c1"))

	msgs := drainMessages(t, c)
	errMsg := lastMessageOfType(msgs, domain.MsgTypeError)
	require.NotNil(t, errMsg)
	assert.Equal(t, domain.ErrCodeGatewayError, errMsg["code"])
}

func TestRejoinSameConnectionEmitsNoDuplicateBroadcast(t *testing.T) {
	f := newSessionFixture()
	f.repo.Put(domain.Conversation{ID: "c1", Type: domain.ConversationTypePublic, PerformerID: "perf-1"})
	f.resolver.Put("tok-v1", &domain.Identity{UserID: "viewer-1"})

	c := newTestClient("conn-1")
	require.NoError(t, f.svc.JoinConversation(context.Background(), c, "c1", "tok-v1"))
	require.NoError(t, f.svc.JoinConversation(context.Background(), c, "c1", "tok-v1"))

	assert.Len(t, f.registry.Snapshot("public:c1"), 1)
	assert.Equal(t, 1, countBroadcastsOfType(f.caster, domain.MsgTypeMemberJoined))
	// Room information still goes out for both joins.
	assert.Equal(t, 2, countBroadcastsOfType(f.caster, domain.MsgTypeRoomInformation))
}

func TestPerformerJoinsOwnRoomAsModel(t *testing.T) {
	f := newSessionFixture()
	f.repo.Put(domain.Conversation{ID: "c1", Type: domain.ConversationTypePublic, PerformerID: "perf-1"})
	f.resolver.Put("tok-p1", &domain.Identity{UserID: "perf-1", IsPerformer: true, DisplayName: "Pia"})

	c := newTestClient("conn-1")
	require.NoError(t, f.svc.JoinConversation(context.Background(), c, "c1", "tok-p1"))

	members := f.registry.Snapshot("public:c1")
	require.Len(t, members, 1)
	assert.Equal(t, domain.RoleModel, members[0].Role)
}

func TestFirstMemberJoinNotifiesPerformer(t *testing.T) {
	f := newSessionFixture()
	f.repo.Put(domain.Conversation{ID: "c1", Type: domain.ConversationTypePrivate, PerformerID: "perf-1", StreamID: "s1"})
	f.resolver.Put("tok-p1", &domain.Identity{UserID: "perf-1", IsPerformer: true})
	f.resolver.Put("tok-v1", &domain.Identity{UserID: "viewer-1", DisplayName: "Vera"})
	f.resolver.Put("tok-v2", &domain.Identity{UserID: "viewer-2"})
	f.gateway.SetStatus("s1", &client.BroadcastStatus{Status: client.BroadcastStatusCreated})

	perf := newTestClient("conn-p")
	require.NoError(t, f.svc.JoinConversation(context.Background(), perf, "c1", "tok-p1"))

	v1 := newTestClient("conn-v1")
	require.NoError(t, f.svc.JoinConversation(context.Background(), v1, "c1", "tok-v1"))

	// Direct notification to the performer for the initiating join only.
	require.Len(t, f.caster.Directs, 1)
	assert.Equal(t, "conn-p", f.caster.Directs[0].ConnectionID)

	v2 := newTestClient("conn-v2")
	require.NoError(t, f.svc.JoinConversation(context.Background(), v2, "c1", "tok-v2"))
	assert.Len(t, f.caster.Directs, 1)
}

func TestLeaveIsIdempotent(t *testing.T) {
	f := newSessionFixture()
	f.repo.Put(domain.Conversation{ID: "c1", Type: domain.ConversationTypePublic, PerformerID: "perf-1"})
	f.resolver.Put("tok-v1", &domain.Identity{UserID: "viewer-1"})
	f.resolver.Put("tok-v2", &domain.Identity{UserID: "viewer-2"})

	c1 := newTestClient("conn-1")
	c2 := newTestClient("conn-2")
	require.NoError(t, f.svc.JoinConversation(context.Background(), c1, "c1", "tok-v1"))
	require.NoError(t, f.svc.JoinConversation(context.Background(), c2, "c1", "tok-v2"))
	f.caster.Reset()

	require.NoError(t, f.svc.LeaveConversation(context.Background(), c1, "c1"))
	assert.Equal(t, domain.JoinStateLeft, c1.Session.JoinStateFor("c1"))
	assert.Len(t, f.registry.Snapshot("public:c1"), 1)
	assert.Equal(t, 1, countBroadcastsOfType(f.caster, domain.MsgTypeMemberLeft))

	// Leaving twice changes nothing and emits nothing.
	require.NoError(t, f.svc.LeaveConversation(context.Background(), c1, "c1"))
	assert.Equal(t, 1, countBroadcastsOfType(f.caster, domain.MsgTypeMemberLeft))
}

func TestLeaveWithoutJoinIsNoop(t *testing.T) {
	f := newSessionFixture()
	c := newTestClient("conn-1")

	require.NoError(t, f.svc.LeaveConversation(context.Background(), c, "c1"))
	assert.Empty(t, f.caster.Broadcasts)
}

func TestRoomInfo(t *testing.T) {
	f := newSessionFixture()
	f.repo.Put(domain.Conversation{ID: "c1", Type: domain.ConversationTypePublic, PerformerID: "perf-1"})
	f.resolver.Put("tok-v1", &domain.Identity{UserID: "viewer-1", DisplayName: "Vera"})

	c := newTestClient("conn-1")
	require.NoError(t, f.svc.JoinConversation(context.Background(), c, "c1", "tok-v1"))

	info, err := f.svc.RoomInfo(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, info.MemberCount)
	require.Len(t, info.Members, 1)
	assert.Equal(t, "viewer-1", info.Members[0].UserID)

	_, err = f.svc.RoomInfo(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestAuthResult(t *testing.T) {
	f := newSessionFixture()
	f.resolver.Put("tok-v1", &domain.Identity{UserID: "viewer-1", DisplayName: "Vera"})

	c := newTestClient("conn-1")
	require.NoError(t, f.svc.HandleAuth(context.Background(), c, "tok-v1"))
	require.NotNil(t, c.Session.GetIdentity())

	msgs := drainMessages(t, c)
	result := lastMessageOfType(msgs, domain.MsgTypeAuthResult)
	require.NotNil(t, result)
	assert.Equal(t, true, result["success"])

	c2 := newTestClient("conn-2")
	err := f.svc.HandleAuth(context.Background(), c2, "bad")
	assert.Error(t, err)
	assert.Nil(t, c2.Session.GetIdentity())
}
