package session

import (
	"context"
	"sort"
	"sync"

	"github.com/a3tai/pdf-assistant/internal/models"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.SessionState
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]*models.SessionState)}
}

func (s *memoryStore) Create(_ context.Context, state *models.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[state.SessionID]; exists {
		return ErrExists
	}
	s.sessions[state.SessionID] = clone(state)
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (*models.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.sessions[id]
	if !exists {
		return nil, ErrNotFound
	}
	return clone(state), nil
}

func (s *memoryStore) Update(_ context.Context, id string, fn func(*models.SessionState) error) (*models.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.sessions[id]
	if !exists {
		return nil, ErrNotFound
	}

	next := clone(stored)
	if err := fn(next); err != nil {
		return nil, err
	}
	s.sessions[id] = next
	return clone(next), nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *memoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string]*models.SessionState)
	return nil
}
