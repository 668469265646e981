// Package session keeps the client's session id in an injected Storage.
package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultKey is the storage key holding the session id.
const DefaultKey = "pdf_assistant_session_id"

// Store hands out the persisted session id and replaces it on request.
type Store struct {
	storage Storage
	key     string
	logger  *zap.Logger

	mu      sync.Mutex
	current string
	hooks   []func(id string)
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Store over storage.
func New(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		key:     DefaultKey,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the stored session id, creating and persisting one when none exists.
func (s *Store) ID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != "" {
		return s.current, nil
	}

	id, ok, err := s.storage.Get(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to read session id: %w", err)
	}
	if ok && strings.TrimSpace(id) != "" {
		s.current = id
		return id, nil
	}

	id = uuid.NewString()
	if err := s.storage.Set(s.key, id); err != nil {
		return "", fmt.Errorf("failed to store session id: %w", err)
	}
	s.logger.Debug("created session", zap.String("session_id", id))
	s.current = id
	return id, nil
}

// NewSession replaces the stored id and runs the reset hooks with the new id.
func (s *Store) NewSession() (string, error) {
	id := uuid.NewString()

	s.mu.Lock()
	if err := s.storage.Set(s.key, id); err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("failed to store session id: %w", err)
	}
	s.current = id
	hooks := make([]func(string), len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	s.logger.Info("started new session", zap.String("session_id", id))
	for _, fn := range hooks {
		fn(id)
	}
	return id, nil
}

// OnReset registers fn to run after NewSession. Hooks run in registration order.
func (s *Store) OnReset(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}
