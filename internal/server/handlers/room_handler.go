package handlers

import (
	"net/http"
	"strconv"

	"campus-chat/internal/models"
	"campus-chat/internal/repository"
	"campus-chat/pkg/response"

	"github.com/gin-gonic/gin"
)

type RoomHandler struct {
	rooms *repository.RoomRepository
}

func NewRoomHandler(rooms *repository.RoomRepository) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	userID := c.GetUint("user_id")
	room := &models.Room{Name: req.Name, CreatedBy: userID}
	if err := h.rooms.Create(c.Request.Context(), room); err != nil {
		response.Error(c, http.StatusInternalServerError, "could not create room")
		return
	}
	// Creator is a member from the start.
	if err := h.rooms.AddMember(c.Request.Context(), room.ID, userID); err != nil {
		response.Error(c, http.StatusInternalServerError, "could not add creator to room")
		return
	}

	response.OK(c, http.StatusCreated, room.ToResponse())
}

func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID := c.GetUint("user_id")
	rooms, err := h.rooms.FindByUserID(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "could not list rooms")
		return
	}

	out := make([]models.RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.ToResponse())
	}
	response.OK(c, http.StatusOK, out)
}

func (h *RoomHandler) JoinRoom(c *gin.Context) {
	roomID, err := roomIDParam(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid room id")
		return
	}

	userID := c.GetUint("user_id")
	if _, err := h.rooms.FindByID(c.Request.Context(), roomID); err != nil {
		response.Error(c, http.StatusNotFound, "room not found")
		return
	}
	if err := h.rooms.AddMember(c.Request.Context(), roomID, userID); err != nil {
		response.Error(c, http.StatusInternalServerError, "could not join room")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	roomID, err := roomIDParam(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid room id")
		return
	}

	userID := c.GetUint("user_id")
	if err := h.rooms.RemoveMember(c.Request.Context(), roomID, userID); err != nil {
		response.Error(c, http.StatusInternalServerError, "could not leave room")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) Members(c *gin.Context) {
	roomID, err := roomIDParam(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid room id")
		return
	}

	members, err := h.rooms.Members(c.Request.Context(), roomID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "could not list members")
		return
	}

	out := make([]models.UserResponse, 0, len(members))
	for _, m := range members {
		out = append(out, m.User.ToResponse())
	}
	response.OK(c, http.StatusOK, out)
}

func roomIDParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("room_id"), 10, 64)
	if err != nil || id == 0 {
		return 0, strconv.ErrSyntax
	}
	return uint(id), nil
}
