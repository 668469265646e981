// Package session keeps per-conversation state (files, transcript, current
// file) behind a pluggable store.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/a3tai/pdf-assistant/internal/models"
)

var (
	ErrNotFound         = errors.New("session not found")
	ErrExists           = errors.New("session already exists")
	ErrInvalidStoreType = errors.New("invalid session store type")
	ErrInvalidConfig    = errors.New("invalid session store configuration")
)

// Store persists SessionState values.
type Store interface {
	// Create stores a new session. Returns ErrExists when the id is taken.
	Create(ctx context.Context, state *models.SessionState) error

	// Get returns a copy of the session or ErrNotFound.
	Get(ctx context.Context, id string) (*models.SessionState, error)

	// Update applies fn to the stored session atomically and returns the
	// new state. Returns ErrNotFound when the session does not exist.
	Update(ctx context.Context, id string, fn func(*models.SessionState) error) (*models.SessionState, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the ids of all stored sessions.
	List(ctx context.Context) ([]string, error)

	// Close releases the store's resources.
	Close() error
}

// StoreType selects a Store driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// StoreOption configures NewStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	redisTTL    time.Duration
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisTTL sets the idle lifetime of redis session keys.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.redisTTL = ttl
	}
}

// NewStore creates a Store of the given type.
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
		return newRedisStore(config.redisClient, config.redisTTL), nil
	default:
		return nil, ErrInvalidStoreType
	}
}

func clone(s *models.SessionState) *models.SessionState {
	out := *s
	out.PDFFiles = append([]models.PDFFileInfo(nil), s.PDFFiles...)
	out.ChatHistory = append([]models.ChatMessage(nil), s.ChatHistory...)
	if out.PDFFiles == nil {
		out.PDFFiles = []models.PDFFileInfo{}
	}
	if out.ChatHistory == nil {
		out.ChatHistory = []models.ChatMessage{}
	}
	return &out
}
