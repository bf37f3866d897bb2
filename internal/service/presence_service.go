package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"campus-chat/internal/database"
)

const (
	onlineUsersKey   = "online_users"
	userStatusKeyFmt = "user:%d:status"

	onlineStatusTTL  = 5 * time.Minute
	offlineStatusTTL = 24 * time.Hour
)

// PresenceService mirrors per-process registry state into Redis so every
// instance (and the REST surface) shares one view of who is online.
type PresenceService struct {
	redis  *database.RedisClient
	logger *slog.Logger
}

func NewPresenceService(redis *database.RedisClient, logger *slog.Logger) *PresenceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PresenceService{redis: redis, logger: logger}
}

func (s *PresenceService) SetUserOnline(ctx context.Context, userID uint) error {
	pipe := s.redis.GetClient().Pipeline()

	pipe.SAdd(ctx, onlineUsersKey, userID)
	pipe.HSet(ctx, fmt.Sprintf(userStatusKeyFmt, userID), map[string]interface{}{
		"status":     "online",
		"last_seen":  time.Now().Unix(),
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, fmt.Sprintf(userStatusKeyFmt, userID), onlineStatusTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("failed to set user online", "userID", userID, "error", err)
		return err
	}
	return nil
}

func (s *PresenceService) SetUserOffline(ctx context.Context, userID uint) error {
	pipe := s.redis.GetClient().Pipeline()

	pipe.SRem(ctx, onlineUsersKey, userID)
	pipe.HSet(ctx, fmt.Sprintf(userStatusKeyFmt, userID), map[string]interface{}{
		"status":     "offline",
		"last_seen":  time.Now().Unix(),
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, fmt.Sprintf(userStatusKeyFmt, userID), offlineStatusTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("failed to set user offline", "userID", userID, "error", err)
		return err
	}
	return nil
}

// OnlineUsers returns the cluster-wide online set from Redis.
func (s *PresenceService) OnlineUsers(ctx context.Context) ([]string, error) {
	return s.redis.GetClient().SMembers(ctx, onlineUsersKey).Result()
}

// UserStatus returns the stored status hash for one user, or nil when
// nothing is recorded.
func (s *PresenceService) UserStatus(ctx context.Context, userID uint) (map[string]string, error) {
	status, err := s.redis.GetClient().HGetAll(ctx, fmt.Sprintf(userStatusKeyFmt, userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(status) == 0 {
		return nil, nil
	}
	return status, nil
}
