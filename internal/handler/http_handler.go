package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/velvetcast/session-service/internal/domain"
	"github.com/velvetcast/session-service/internal/response"
	"github.com/velvetcast/session-service/internal/service"
)

// HTTPHandler serves the REST surface: the gateway callback endpoint,
// room information snapshots and health.
type HTTPHandler struct {
	service    service.SessionService
	reconciler service.CallbackReconciler
}

func NewHTTPHandler(svc service.SessionService, rec service.CallbackReconciler) *HTTPHandler {
	return &HTTPHandler{
		service:    svc,
		reconciler: rec,
	}
}

// HandleBroadcastCallback receives media-gateway lifecycle callbacks.
// It always answers 200: the gateway retries on non-2xx, and a bad
// payload will not get better on retry.
func (h *HTTPHandler) HandleBroadcastCallback(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Success(c, gin.H{"accepted": false})
		return
	}

	h.reconciler.HandleBroadcastCallback(c.Request.Context(), body)
	response.Success(c, gin.H{"accepted": true})
}

// GetRoomInfo serves the room snapshot for a conversation.
func (h *HTTPHandler) GetRoomInfo(c *gin.Context) {
	conversationID := c.Param("id")
	if conversationID == "" {
		response.BadRequest(c, "conversation id is required")
		return
	}

	info, err := h.service.RoomInfo(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			response.NotFound(c, "conversation not found")
			return
		}
		response.InternalError(c, "failed to load room information")
		return
	}

	response.Success(c, info)
}

// Health is the liveness probe.
func (h *HTTPHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// RegisterRoutes mounts the REST endpoints.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Health)

	v1 := r.Group("/v1")
	{
		v1.POST("/callbacks/broadcast", h.HandleBroadcastCallback)
		v1.GET("/conversations/:id/room", h.GetRoomInfo)
	}
}
