package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/velvetcast/session-service/internal/config"
	"github.com/velvetcast/session-service/internal/domain"
	"github.com/velvetcast/session-service/internal/hub"
	"github.com/velvetcast/session-service/internal/log"
	"github.com/velvetcast/session-service/internal/pubsub"
	"github.com/velvetcast/session-service/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades client connections and dispatches protocol
// messages to the session service. When a socket drops it publishes a
// disconnect event on the performer or viewer channel depending on who
// was behind the connection.
type WSHandler struct {
	hub     *hub.Hub
	service service.SessionService
	bus     pubsub.Publisher
	wsCfg   config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.SessionService, bus pubsub.Publisher, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		bus:     bus,
		wsCfg:   wsCfg,
	}
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)

	h.hub.Register(client)

	go client.WritePump()
	go func() {
		client.ReadPump(h.handleMessage)
		h.publishDisconnect(client)
	}()
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	ctx := log.WithConnection(context.Background(), client.ID)
	l := log.Ctx(ctx)

	switch base.Type {
	case domain.MsgTypeAuth:
		var msg domain.AuthMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid auth message"))
			return
		}
		if err := h.service.HandleAuth(ctx, client, msg.Token); err != nil {
			l.Debug().Err(err).Str(log.FieldConnectionID, client.ID).Msg("auth failed")
		}

	case domain.MsgTypeJoin:
		var msg domain.JoinMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid join_conversation message"))
			return
		}
		if msg.ConversationID == "" {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "conversation_id is required"))
			return
		}
		if err := h.service.JoinConversation(ctx, client, msg.ConversationID, msg.Token); err != nil {
			l.Debug().Err(err).Str(log.FieldConnectionID, client.ID).Msg("join failed")
		}

	case domain.MsgTypeLeave:
		var msg domain.LeaveMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid leave_conversation message"))
			return
		}
		if msg.ConversationID == "" {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "conversation_id is required"))
			return
		}
		if err := h.service.LeaveConversation(ctx, client, msg.ConversationID); err != nil {
			l.Debug().Err(err).Str(log.FieldConnectionID, client.ID).Msg("leave failed")
		}

	case domain.MsgTypePing:
		client.SendMessage(map[string]string{"type": domain.MsgTypePong})

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "unknown message type"))
	}
}

// publishDisconnect emits a disconnect event after the read pump exits.
// Unauthenticated connections never joined anything and are skipped.
func (h *WSHandler) publishDisconnect(client *hub.Client) {
	identity := client.Session.GetIdentity()
	if identity == nil {
		return
	}

	channel := pubsub.ChannelViewerDisconnect
	eventType := pubsub.EventViewerDisconnected
	if identity.IsPerformer {
		channel = pubsub.ChannelPerformerDisconnect
		eventType = pubsub.EventPerformerDisconnected
	}

	event, err := pubsub.NewEvent(eventType, "", pubsub.DisconnectPayload{
		SourceID:     identity.UserID,
		ConnectionID: client.ID,
		GhostMode:    identity.GhostMode,
	})
	if err != nil {
		return
	}

	l := log.L()
	if err := h.bus.Publish(context.Background(), channel, event); err != nil {
		l.Error().Err(err).
			Str(log.FieldConnectionID, client.ID).
			Str(log.FieldUserID, identity.UserID).
			Msg("failed to publish disconnect event")
		return
	}
	l.Debug().
		Str(log.FieldConnectionID, client.ID).
		Str(log.FieldUserID, identity.UserID).
		Str("channel", channel).
		Msg("disconnect event published")
}

// RegisterRoutes mounts the websocket endpoint.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/session/ws", h.HandleWebSocket)
}
