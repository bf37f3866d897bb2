package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"campus-chat/internal/service"
	"campus-chat/pkg/response"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	chats *service.ChatService
}

func NewMessageHandler(chats *service.ChatService) *MessageHandler {
	return &MessageHandler{chats: chats}
}

// RoomHistory pages a room's persisted messages, newest first.
func (h *MessageHandler) RoomHistory(c *gin.Context) {
	roomID, err := roomIDParam(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid room id")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	userID := c.GetUint("user_id")
	msgs, err := h.chats.RoomHistory(c.Request.Context(), userID, roomID, limit, offset)
	if err != nil {
		if errors.Is(err, service.ErrNotRoomMember) {
			response.Error(c, http.StatusForbidden, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, "could not load history")
		return
	}

	response.OK(c, http.StatusOK, msgs)
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID, err := strconv.ParseUint(c.Param("message_id"), 10, 64)
	if err != nil || messageID == 0 {
		response.Error(c, http.StatusBadRequest, "invalid message id")
		return
	}

	userID := c.GetUint("user_id")
	if err := h.chats.DeleteMessage(c.Request.Context(), userID, uint(messageID)); err != nil {
		switch {
		case errors.Is(err, service.ErrMessageNotFound):
			response.Error(c, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrNotAuthorized):
			response.Error(c, http.StatusForbidden, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "could not delete message")
		}
		return
	}

	c.Status(http.StatusNoContent)
}
