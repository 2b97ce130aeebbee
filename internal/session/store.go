// Package session provides the injected viewer-session store. Sessions
// are keyed by (viewer, creator) and hold the full conversation state;
// drivers exist for in-process memory and Redis so the server can run
// single-node or multi-process.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/evalubot/evalubot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Common errors for session store operations.
var (
	ErrInvalidConfig    = errors.New("invalid session store configuration")
	ErrInvalidStoreType = errors.New("invalid session store type")
)

// Store defines the interface for viewer session storage.
type Store interface {
	// Get retrieves a session by key.
	// Returns nil if the session is not found (not an error).
	Get(ctx context.Context, key string) (*domain.ViewerSession, error)

	// Save persists the session under domain.Key(session.ViewerID, session.CreatorName).
	Save(ctx context.Context, session *domain.ViewerSession) error

	// Delete removes a session by key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// StoreType selects the session store driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// StoreOption is a functional option for configuring a session store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	redisTTL    time.Duration
}

// WithRedisClient sets the Redis client for the Redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisTTL sets the expiry applied to Redis session keys.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.redisTTL = ttl
	}
}

// NewStore creates a Store for the given driver type. The Redis driver
// requires WithRedisClient.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{}
	for _, opt := range opts {
		opt(config)
	}

	switch storeType {
	case StoreTypeMemory:
		return newMemoryStore(), nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		ttl := config.redisTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		return &redisStore{client: config.redisClient, ttl: ttl}, nil

	default:
		return nil, ErrInvalidStoreType
	}
}
