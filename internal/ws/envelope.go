package ws

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies the shape of an outbound envelope.
type EventType string

const (
	EventChat        EventType = "chat"
	EventSystem      EventType = "system"
	EventTyping      EventType = "typing"
	EventReadReceipt EventType = "read_receipt"
	EventError       EventType = "error"
	EventUserJoined  EventType = "user_joined"
	EventUserLeft    EventType = "user_left"
)

func (e EventType) String() string {
	return string(e)
}

// ChatEnvelope carries one persisted chat message to room subscribers.
type ChatEnvelope struct {
	Type        EventType `json:"type"`
	MessageID   uint      `json:"message_id"`
	RoomID      uint      `json:"room_id"`
	SenderID    uint      `json:"sender_id"`
	SenderName  *string   `json:"sender_name"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	Timestamp   string    `json:"timestamp"`
}

// SystemEnvelope carries a service-generated notice. RoomID is null for
// process-wide notices.
type SystemEnvelope struct {
	Type      EventType `json:"type"`
	Content   string    `json:"content"`
	RoomID    *uint     `json:"room_id"`
	Timestamp string    `json:"timestamp"`
}

type TypingEnvelope struct {
	Type      EventType `json:"type"`
	UserID    uint      `json:"user_id"`
	RoomID    uint      `json:"room_id"`
	IsTyping  bool      `json:"is_typing"`
	Timestamp string    `json:"timestamp"`
}

type ReadReceiptEnvelope struct {
	Type              EventType `json:"type"`
	UserID            uint      `json:"user_id"`
	RoomID            uint      `json:"room_id"`
	LastReadMessageID uint      `json:"last_read_message_id"`
	Timestamp         string    `json:"timestamp"`
}

type ErrorEnvelope struct {
	Type      EventType `json:"type"`
	Error     string    `json:"error"`
	Timestamp string    `json:"timestamp"`
}

// PresenceEnvelope announces a user joining or leaving a room.
type PresenceEnvelope struct {
	Type      EventType `json:"type"`
	UserID    uint      `json:"user_id"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
}

// NewChatEnvelope builds a chat envelope. senderName may be empty, in
// which case the field is null on the wire.
func NewChatEnvelope(messageID, roomID, senderID uint, senderName, content, messageType string) ChatEnvelope {
	env := ChatEnvelope{
		Type:        EventChat,
		MessageID:   messageID,
		RoomID:      roomID,
		SenderID:    senderID,
		Content:     content,
		MessageType: messageType,
		Timestamp:   nowUTC(),
	}
	if senderName != "" {
		env.SenderName = &senderName
	}
	return env
}

// NewSystemEnvelope builds a system notice. roomID zero means the notice
// is not scoped to a room and room_id is null on the wire.
func NewSystemEnvelope(content string, roomID uint) SystemEnvelope {
	env := SystemEnvelope{
		Type:      EventSystem,
		Content:   content,
		Timestamp: nowUTC(),
	}
	if roomID != 0 {
		env.RoomID = &roomID
	}
	return env
}

func NewTypingEnvelope(userID, roomID uint, isTyping bool) TypingEnvelope {
	return TypingEnvelope{
		Type:      EventTyping,
		UserID:    userID,
		RoomID:    roomID,
		IsTyping:  isTyping,
		Timestamp: nowUTC(),
	}
}

func NewReadReceiptEnvelope(userID, roomID, lastReadMessageID uint) ReadReceiptEnvelope {
	return ReadReceiptEnvelope{
		Type:              EventReadReceipt,
		UserID:            userID,
		RoomID:            roomID,
		LastReadMessageID: lastReadMessageID,
		Timestamp:         nowUTC(),
	}
}

func NewErrorEnvelope(message string) ErrorEnvelope {
	return ErrorEnvelope{
		Type:      EventError,
		Error:     message,
		Timestamp: nowUTC(),
	}
}

func NewUserJoinedEnvelope(userID uint) PresenceEnvelope {
	return PresenceEnvelope{
		Type:      EventUserJoined,
		UserID:    userID,
		Message:   fmt.Sprintf("user %d joined the room", userID),
		Timestamp: nowUTC(),
	}
}

func NewUserLeftEnvelope(userID uint) PresenceEnvelope {
	return PresenceEnvelope{
		Type:      EventUserLeft,
		UserID:    userID,
		Message:   fmt.Sprintf("user %d left the room", userID),
		Timestamp: nowUTC(),
	}
}

func (e ChatEnvelope) Encode() []byte        { return encode(e) }
func (e SystemEnvelope) Encode() []byte      { return encode(e) }
func (e TypingEnvelope) Encode() []byte      { return encode(e) }
func (e ReadReceiptEnvelope) Encode() []byte { return encode(e) }
func (e ErrorEnvelope) Encode() []byte       { return encode(e) }
func (e PresenceEnvelope) Encode() []byte    { return encode(e) }

// nowUTC is the default timestamp. Callers that carry their own instant
// overwrite the Timestamp field before encoding.
func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// encode never fails for the envelope types above; they contain nothing
// json.Marshal can reject.
func encode(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
