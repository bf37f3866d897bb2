package service

import (
	"context"
	"errors"
	"log/slog"

	"campus-chat/internal/models"
	"campus-chat/internal/repository"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotRoomMember   = errors.New("user is not a member of the room")
	ErrNotAuthorized   = errors.New("not authorized")
)

// EventPublisher pushes persisted chat events to the message broker for
// downstream consumers. Implemented by the kafka adapter.
type EventPublisher interface {
	PublishMessage(msg *models.Message) error
}

type ChatService struct {
	messages  *repository.MessageRepository
	rooms     *repository.RoomRepository
	users     *repository.UserRepository
	publisher EventPublisher
	logger    *slog.Logger
}

func NewChatService(messages *repository.MessageRepository, rooms *repository.RoomRepository, users *repository.UserRepository, publisher EventPublisher, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		messages:  messages,
		rooms:     rooms,
		users:     users,
		publisher: publisher,
		logger:    logger,
	}
}

// SaveMessage persists one chat message after checking durable room
// membership, then hands it to the broker. A publish failure is logged
// and swallowed; the message is already stored and will be broadcast.
func (s *ChatService) SaveMessage(ctx context.Context, senderID, roomID uint, content, messageType string) (*models.Message, error) {
	member, err := s.rooms.IsMember(ctx, roomID, senderID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotRoomMember
	}

	msg := &models.Message{
		RoomID:      roomID,
		SenderID:    senderID,
		Content:     content,
		MessageType: messageType,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	if sender, err := s.users.FindByID(ctx, senderID); err == nil {
		msg.Sender = *sender
	}

	if s.publisher != nil {
		if err := s.publisher.PublishMessage(msg); err != nil {
			s.logger.Error("failed to publish message event", "messageID", msg.ID, "error", err)
		}
	}

	return msg, nil
}

// MarkRead advances the caller's read watermark for a room.
func (s *ChatService) MarkRead(ctx context.Context, userID, roomID, messageID uint) error {
	return s.messages.UpsertReadMark(ctx, &models.ReadMark{
		UserID:            userID,
		RoomID:            roomID,
		LastReadMessageID: messageID,
	})
}

// RoomHistory pages a room's messages for members only.
func (s *ChatService) RoomHistory(ctx context.Context, userID, roomID uint, limit, offset int) ([]*models.MessageResponse, error) {
	member, err := s.rooms.IsMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotRoomMember
	}

	msgs, err := s.messages.FindByRoomID(ctx, roomID, limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]*models.MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp := m.ToResponse()
		out = append(out, &resp)
	}
	return out, nil
}

// DeleteMessage removes a message; only the sender may delete.
func (s *ChatService) DeleteMessage(ctx context.Context, userID, messageID uint) error {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return ErrMessageNotFound
	}
	if msg.SenderID != userID {
		return ErrNotAuthorized
	}
	return s.messages.Delete(ctx, messageID)
}
