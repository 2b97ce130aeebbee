package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/evalubot/evalubot/internal/domain"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "session:"

// redisStore implements Store on Redis with JSON values. Keys expire
// after the configured TTL; the TTL is refreshed on every read so an
// active conversation never goes stale mid-interview.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// Get implements Store.
func (s *redisStore) Get(ctx context.Context, key string) (*domain.ViewerSession, error) {
	val, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", key, err)
	}

	var sess domain.ViewerSession
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", key, err)
	}

	// Refresh TTL on read.
	_ = s.client.Expire(ctx, redisKeyPrefix+key, s.ttl).Err()

	return &sess, nil
}

// Save implements Store.
func (s *redisStore) Save(ctx context.Context, session *domain.ViewerSession) error {
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	val, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	key := redisKeyPrefix + domain.Key(session.ViewerID, session.CreatorName)
	if err := s.client.Set(ctx, key, val, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	return nil
}

// Close implements Store.
func (s *redisStore) Close() error {
	return s.client.Close()
}
