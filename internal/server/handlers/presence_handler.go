package handlers

import (
	"net/http"

	"campus-chat/internal/service"
	"campus-chat/internal/ws"
	"campus-chat/pkg/response"

	"github.com/gin-gonic/gin"
)

// PresenceHandler surfaces who is online: the registry answers for this
// process, Redis for the cluster.
type PresenceHandler struct {
	registry *ws.Registry
	presence *service.PresenceService
}

func NewPresenceHandler(registry *ws.Registry, presence *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{registry: registry, presence: presence}
}

func (h *PresenceHandler) OnlineUsers(c *gin.Context) {
	cluster, err := h.presence.OnlineUsers(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "could not load presence")
		return
	}

	response.OK(c, http.StatusOK, gin.H{
		"local":   h.registry.OnlineUsers(),
		"cluster": cluster,
	})
}

func (h *PresenceHandler) RoomParticipants(c *gin.Context) {
	roomID, err := roomIDParam(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid room id")
		return
	}

	response.OK(c, http.StatusOK, gin.H{
		"room_id":      roomID,
		"participants": h.registry.RoomParticipants(roomID),
	})
}
