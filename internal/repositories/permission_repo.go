package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/models"
	"github.com/redis/go-redis/v9"
)

const permissionKeyPrefix = "notify_permission:"

type RedisPermissionRepository struct {
	client *redis.Client
}

func NewRedisPermissionRepository(client *redis.Client) *RedisPermissionRepository {
	return &RedisPermissionRepository{client: client}
}

// Get returns the stored permission. An account that never answered the
// prompt is PermissionDefault.
func (r *RedisPermissionRepository) Get(ctx context.Context, accountID uuid.UUID) (models.NotificationPermission, error) {
	value, err := r.client.Get(ctx, permissionKey(accountID)).Result()
	if err == redis.Nil {
		return models.PermissionDefault, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get permission: %w", err)
	}

	switch p := models.NotificationPermission(value); p {
	case models.PermissionGranted, models.PermissionDenied:
		return p, nil
	default:
		return models.PermissionDefault, nil
	}
}

func (r *RedisPermissionRepository) Set(ctx context.Context, accountID uuid.UUID, permission models.NotificationPermission) error {
	if err := r.client.Set(ctx, permissionKey(accountID), string(permission), 0).Err(); err != nil {
		return fmt.Errorf("failed to set permission: %w", err)
	}
	return nil
}

func permissionKey(accountID uuid.UUID) string {
	return permissionKeyPrefix + accountID.String()
}
