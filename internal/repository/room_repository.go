package repository

import (
	"context"
	"errors"

	"campus-chat/internal/models"

	"gorm.io/gorm"
)

type RoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db}
}

func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *RoomRepository) FindByID(ctx context.Context, id uint) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *RoomRepository) FindByUserID(ctx context.Context, userID uint) ([]*models.Room, error) {
	var rooms []*models.Room
	err := r.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ?", userID).
		Find(&rooms).Error
	return rooms, err
}

func (r *RoomRepository) AddMember(ctx context.Context, roomID, userID uint) error {
	member := models.RoomMember{RoomID: roomID, UserID: userID}
	err := r.db.WithContext(ctx).Create(&member).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

func (r *RoomRepository) RemoveMember(ctx context.Context, roomID, userID uint) error {
	return r.db.WithContext(ctx).
		Delete(&models.RoomMember{}, "room_id = ? AND user_id = ?", roomID, userID).Error
}

// IsMember reports whether the user belongs to the durable room roster.
// The websocket gateway checks this before allowing a live subscription.
func (r *RoomRepository) IsMember(ctx context.Context, roomID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *RoomRepository) Members(ctx context.Context, roomID uint) ([]*models.RoomMember, error) {
	var members []*models.RoomMember
	err := r.db.WithContext(ctx).Preload("User").
		Where("room_id = ?", roomID).
		Find(&members).Error
	return members, err
}
