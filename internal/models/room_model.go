package models

import (
	"time"

	"gorm.io/gorm"
)

/** --------------------ENTITIES-------------------- */

// Room is a durable chat room. Live subscription state is tracked
// separately by the websocket registry and is never persisted.
type Room struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	CreatedBy uint           `gorm:"not null" json:"createdBy"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Members []RoomMember `gorm:"foreignKey:RoomID" json:"members,omitempty"`
}

// RoomMember is the durable many-to-many between users and rooms.
type RoomMember struct {
	RoomID   uint      `gorm:"primaryKey" json:"roomId"`
	UserID   uint      `gorm:"primaryKey" json:"userId"`
	Role     string    `gorm:"default:member" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joinedAt"`

	User User `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
}

/** -------------------- DTOs -------------------- */

// Request
type CreateRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

// Response
type RoomResponse struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	CreatedBy uint      `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *Room) ToResponse() RoomResponse {
	return RoomResponse{
		ID:        r.ID,
		Name:      r.Name,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
	}
}
