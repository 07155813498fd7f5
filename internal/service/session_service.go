package service

import (
	"context"
	"errors"

	"github.com/velvetcast/session-service/internal/audit"
	"github.com/velvetcast/session-service/internal/auth"
	"github.com/velvetcast/session-service/internal/client"
	"github.com/velvetcast/session-service/internal/domain"
	"github.com/velvetcast/session-service/internal/hub"
	"github.com/velvetcast/session-service/internal/log"
	"github.com/velvetcast/session-service/internal/registry"
	"github.com/velvetcast/session-service/internal/repository"
)

type sessionService struct {
	registry registry.Registry
	repo     repository.ConversationRepository
	resolver auth.IdentityResolver
	gateway  client.GatewayClient
	rank     client.RankService
	caster   Broadcaster
}

// NewSessionService creates the join/leave protocol handler.
func NewSessionService(
	reg registry.Registry,
	repo repository.ConversationRepository,
	resolver auth.IdentityResolver,
	gateway client.GatewayClient,
	rank client.RankService,
	caster Broadcaster,
) SessionService {
	return &sessionService{
		registry: reg,
		repo:     repo,
		resolver: resolver,
		gateway:  gateway,
		rank:     rank,
		caster:   caster,
	}
}

func (s *sessionService) HandleAuth(ctx context.Context, c *hub.Client, token string) error {
	identity, err := s.resolver.ResolveFromToken(ctx, token)
	if err != nil {
		c.SendMessage(&domain.AuthResultMessage{
			Type:    domain.MsgTypeAuthResult,
			Success: false,
			Message: "invalid token",
		})
		return err
	}

	c.Session.SetIdentity(identity)

	return c.SendMessage(&domain.AuthResultMessage{
		Type:        domain.MsgTypeAuthResult,
		Success:     true,
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
	})
}

// JoinConversation drives the per-(conversation, connection) state
// machine through joining → joined. All I/O (token, conversation,
// gateway status, ranks) happens before and after the registry
// mutation; no room lock is held across an await.
func (s *sessionService) JoinConversation(ctx context.Context, c *hub.Client, conversationID, token string) error {
	l := log.Ctx(ctx)

	c.Session.SetJoinState(conversationID, domain.JoinStateJoining)

	identity := c.Session.GetIdentity()
	if token != "" || identity == nil {
		resolved, err := s.resolver.ResolveFromToken(ctx, token)
		if err != nil {
			// Denied with no state change; the connection may retry
			// with a fresh token.
			c.Session.SetJoinState(conversationID, domain.JoinStateUnjoined)
			c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "invalid token"))
			return domain.ErrUnauthenticated
		}
		identity = resolved
		c.Session.SetIdentity(identity)
	}

	conv, err := s.repo.FindByID(ctx, conversationID)
	if err != nil {
		c.Session.SetJoinState(conversationID, domain.JoinStateUnjoined)
		if errors.Is(err, repository.ErrConversationNotFound) {
			c.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotFound, "conversation not found"))
			return domain.ErrConversationNotFound
		}
		c.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "failed to resolve conversation"))
		return err
	}

	// Private and group sessions ride on a gateway broadcast; a public
	// lobby conversation has no stream to verify.
	if conv.StreamID != "" {
		status, err := s.gateway.GetBroadcastStatus(ctx, conv.StreamID)
		if err != nil {
			if errors.Is(err, client.ErrBroadcastNotFound) {
				c.Session.SetJoinState(conversationID, domain.JoinStateLeft)
				c.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotJoinable, "broadcast not available"))
				return domain.ErrNotJoinable
			}
			c.Session.SetJoinState(conversationID, domain.JoinStateUnjoined)
			c.SendMessage(domain.NewErrorMessage(domain.ErrCodeGatewayError, "broadcast status unavailable, retry"))
			return domain.ErrGatewayUnavailable
		}
		if !status.Joinable() {
			c.Session.SetJoinState(conversationID, domain.JoinStateLeft)
			c.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotJoinable, "session has ended"))
			return domain.ErrNotJoinable
		}
	}

	role := domain.RoleFor(identity, conv)
	roomID := conv.RoomID()

	members, already := s.registry.Add(roomID, registry.Member{
		ConnectionID: c.ID,
		UserID:       identity.UserID,
		DisplayName:  identity.DisplayName,
		Role:         role,
	})
	c.Session.SetJoinState(conversationID, domain.JoinStateJoined)

	// A re-join of the same connection overwrites the role but emits
	// no second member_joined.
	if !already {
		s.caster.BroadcastToMembers(members, &domain.MemberJoinedMessage{
			Type:           domain.MsgTypeMemberJoined,
			ConversationID: conversationID,
			UserID:         identity.UserID,
			DisplayName:    identity.DisplayName,
			Role:           role,
			MemberCount:    len(members),
		})

		if conv.Type != domain.ConversationTypePublic && role == domain.RoleMember {
			s.notifyPerformerOfInitiatingJoin(conv, identity, members)
		}
	}

	views := s.buildMemberViews(ctx, conv, members)
	s.caster.BroadcastToMembers(members, &domain.RoomInformationMessage{
		Type:           domain.MsgTypeRoomInformation,
		ConversationID: conversationID,
		MemberCount:    len(members),
		Members:        views,
	})

	audit.Log(ctx, audit.ActionJoin, identity.UserID, "joined conversation "+conversationID)
	l.Info().
		Str(log.FieldConversationID, conversationID).
		Str(log.FieldConnectionID, c.ID).
		Str(log.FieldUserID, identity.UserID).
		Str("role", string(role)).
		Msg("conversation joined")

	return c.SendMessage(&domain.JoinedMessage{
		Type:           domain.MsgTypeJoined,
		ConversationID: conversationID,
		RoomID:         roomID,
		Role:           role,
		Members:        views,
	})
}

// notifyPerformerOfInitiatingJoin tells the performer directly that a
// paying session has started. Only the first member join of a
// private/group session counts as initiating.
func (s *sessionService) notifyPerformerOfInitiatingJoin(conv *domain.Conversation, joiner *domain.Identity, members []registry.Member) {
	memberCount := 0
	for _, m := range members {
		if m.Role == domain.RoleMember {
			memberCount++
		}
	}
	if memberCount != 1 {
		return
	}

	for _, m := range members {
		if m.Role == domain.RoleModel {
			s.caster.SendToConnection(m.ConnectionID, &domain.MemberJoinedMessage{
				Type:           domain.MsgTypeMemberJoined,
				ConversationID: conv.ID,
				UserID:         joiner.UserID,
				DisplayName:    joiner.DisplayName,
				Role:           domain.RoleMember,
				MemberCount:    memberCount,
			})
		}
	}
}

func (s *sessionService) LeaveConversation(ctx context.Context, c *hub.Client, conversationID string) error {
	l := log.Ctx(ctx)

	// Leaving twice is a no-op.
	if c.Session.JoinStateFor(conversationID) != domain.JoinStateJoined {
		return nil
	}

	conv, err := s.repo.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			c.Session.SetJoinState(conversationID, domain.JoinStateLeft)
			return nil
		}
		return err
	}

	roomID := conv.RoomID()
	remaining, removed := s.registry.Remove(roomID, c.ID)
	c.Session.SetJoinState(conversationID, domain.JoinStateLeft)
	if !removed {
		return nil
	}

	identity := c.Session.GetIdentity()
	userID := ""
	if identity != nil {
		userID = identity.UserID
	}

	s.caster.BroadcastToMembers(remaining, &domain.MemberLeftMessage{
		Type:           domain.MsgTypeMemberLeft,
		ConversationID: conversationID,
		UserID:         userID,
		MemberCount:    len(remaining),
	})

	views := s.buildMemberViews(ctx, conv, remaining)
	s.caster.BroadcastToMembers(remaining, &domain.RoomInformationMessage{
		Type:           domain.MsgTypeRoomInformation,
		ConversationID: conversationID,
		MemberCount:    len(remaining),
		Members:        views,
	})

	audit.Log(ctx, audit.ActionLeave, userID, "left conversation "+conversationID)
	l.Info().
		Str(log.FieldConversationID, conversationID).
		Str(log.FieldConnectionID, c.ID).
		Msg("conversation left")

	return nil
}

// RoomInfo serves the REST room snapshot.
func (s *sessionService) RoomInfo(ctx context.Context, conversationID string) (*domain.RoomInformationMessage, error) {
	conv, err := s.repo.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}

	members := s.registry.Snapshot(conv.RoomID())
	return &domain.RoomInformationMessage{
		Type:           domain.MsgTypeRoomInformation,
		ConversationID: conversationID,
		MemberCount:    len(members),
		Members:        s.buildMemberViews(ctx, conv, members),
	}, nil
}

// buildMemberViews decorates a member snapshot with ranks. Rank is
// best-effort: a failing rank service yields the unranked placeholder
// and never blocks membership flow.
func (s *sessionService) buildMemberViews(ctx context.Context, conv *domain.Conversation, members []registry.Member) []domain.MemberView {
	views := make([]domain.MemberView, 0, len(members))
	for _, m := range members {
		rank := domain.UnrankedPlaceholder()
		if m.Role == domain.RoleMember {
			if r, err := s.rank.ComputeRank(ctx, conv.PerformerID, m.UserID); err == nil {
				rank = r
			}
		}
		views = append(views, domain.MemberView{
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			Role:        m.Role,
			Rank:        rank,
		})
	}
	return views
}
