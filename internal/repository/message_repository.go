package repository

import (
	"context"

	"campus-chat/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db}
}

func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *MessageRepository) FindByID(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).Preload("Sender").First(&msg, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindByRoomID pages room history, newest first.
func (r *MessageRepository) FindByRoomID(ctx context.Context, roomID uint, limit, offset int) ([]*models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var msgs []*models.Message
	err := r.db.WithContext(ctx).Preload("Sender").
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&msgs).Error
	return msgs, err
}

// UpsertReadMark advances the user's last-read watermark for a room.
func (r *MessageRepository) UpsertReadMark(ctx context.Context, mark *models.ReadMark) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_read_message_id", "updated_at"}),
	}).Create(mark).Error
}

func (r *MessageRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Message{}, "id = ?", id).Error
}
