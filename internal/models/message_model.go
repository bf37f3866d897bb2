package models

import (
	"time"

	"gorm.io/gorm"
)

// Message payload kinds
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
)

/** --------------------ENTITIES-------------------- */

// Message is one persisted chat message.
type Message struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID      uint           `gorm:"not null;index" json:"roomId"`
	SenderID    uint           `gorm:"not null;index" json:"senderId"`
	Content     string         `gorm:"not null" json:"content"`
	MessageType string         `gorm:"not null;default:text" json:"messageType"`
	CreatedAt   time.Time      `json:"createdAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Sender User `gorm:"foreignKey:SenderID;references:ID" json:"sender,omitempty"`
	Room   Room `gorm:"foreignKey:RoomID;references:ID" json:"-"`
}

// ReadMark is a per-user, per-room watermark of the last message read.
type ReadMark struct {
	UserID            uint      `gorm:"primaryKey" json:"userId"`
	RoomID            uint      `gorm:"primaryKey" json:"roomId"`
	LastReadMessageID uint      `gorm:"not null" json:"lastReadMessageId"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

/** -------------------- DTOs -------------------- */

// Response
type MessageResponse struct {
	ID          uint      `json:"id"`
	RoomID      uint      `json:"roomId"`
	SenderID    uint      `json:"senderId"`
	SenderName  string    `json:"senderName,omitempty"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (m *Message) ToResponse() MessageResponse {
	return MessageResponse{
		ID:          m.ID,
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		SenderName:  m.Sender.Name,
		Content:     m.Content,
		MessageType: m.MessageType,
		CreatedAt:   m.CreatedAt,
	}
}
