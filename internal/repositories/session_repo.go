package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	sessionPrefix         = "session:"
	accountSessionsPrefix = "account:%s:sessions"
)

type RedisSessionRepository struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisSessionRepository(client *redis.Client, logger *slog.Logger) *RedisSessionRepository {
	return &RedisSessionRepository{client: client, logger: logger.With("component", "session_repo")}
}

// Create stores the session with a TTL matching its expiry and indexes it
// under the owning account.
func (r *RedisSessionRepository) Create(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), data, ttl)
	pipe.SAdd(ctx, accountSessionsKey(session.AccountID), session.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// ListByAccountID returns live sessions and prunes index entries whose
// session key already expired.
func (r *RedisSessionRepository) ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Session, error) {
	indexKey := accountSessionsKey(accountID)
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get account sessions: %w", err)
	}

	var sessions []*models.Session
	var expired []any
	for _, id := range ids {
		session, err := r.GetByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			expired = append(expired, id)
			continue
		}
		if err != nil {
			r.logger.Warn("skipping unreadable session", "session_id", id, "error", err)
			continue
		}
		sessions = append(sessions, session)
	}

	if len(expired) > 0 {
		if err := r.client.SRem(ctx, indexKey, expired...).Err(); err != nil {
			return nil, fmt.Errorf("failed to remove expired sessions: %w", err)
		}
	}
	return sessions, nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, id string) error {
	session, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.SRem(ctx, accountSessionsKey(session.AccountID), id)
	pipe.Del(ctx, sessionKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) DeleteAllForAccount(ctx context.Context, accountID uuid.UUID) error {
	ids, err := r.client.SMembers(ctx, accountSessionsKey(accountID)).Result()
	if err != nil {
		return fmt.Errorf("failed to get account sessions: %w", err)
	}
	for _, id := range ids {
		if err := r.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			r.logger.Warn("failed to delete session", "session_id", id, "error", err)
		}
	}
	return r.client.Del(ctx, accountSessionsKey(accountID)).Err()
}

func sessionKey(id string) string {
	return sessionPrefix + id
}

func accountSessionsKey(accountID uuid.UUID) string {
	return fmt.Sprintf(accountSessionsPrefix, accountID)
}
