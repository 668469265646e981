package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/a3tai/pdf-assistant/internal/models"
)

const (
	sessionKeyPrefix = "pdf-session:"
	defaultTTL       = 24 * time.Hour
	maxUpdateRetries = 5
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisStore(client *redis.Client, ttl time.Duration) *redisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisStore{client: client, ttl: ttl}
}

func (s *redisStore) key(id string) string {
	return sessionKeyPrefix + id
}

func (s *redisStore) Create(ctx context.Context, state *models.SessionState) error {
	val, err := json.Marshal(clone(state))
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.key(state.SessionID), val, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, id string) (*models.SessionState, error) {
	key := s.key(id)
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var state models.SessionState
	if err := json.Unmarshal(val, &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}

	// Refresh TTL on read
	_ = s.client.Expire(ctx, key, s.ttl).Err()

	return clone(&state), nil
}

// Update uses WATCH/MULTI/EXEC and retries when another writer wins the race.
func (s *redisStore) Update(ctx context.Context, id string, fn func(*models.SessionState) error) (*models.SessionState, error) {
	key := s.key(id)
	var result *models.SessionState

	txf := func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var state models.SessionState
		if err := json.Unmarshal(val, &state); err != nil {
			return fmt.Errorf("decode session %s: %w", id, err)
		}

		next := clone(&state)
		if err := fn(next); err != nil {
			return err
		}

		newVal, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return clone(result), nil
	}
	return nil, fmt.Errorf("update session %s: too much contention", id)
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *redisStore) List(ctx context.Context) ([]string, error) {
	ids := []string{}
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), sessionKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
