package session

import (
	"context"
	"sync"
	"time"

	"github.com/evalubot/evalubot/internal/domain"
)

// memoryStore implements Store with an in-process map. Suitable for
// single-node deployments and tests.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.ViewerSession
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]*domain.ViewerSession)}
}

// Get implements Store.
func (s *memoryStore) Get(ctx context.Context, key string) (*domain.ViewerSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	return sess, nil
}

// Save implements Store.
func (s *memoryStore) Save(ctx context.Context, session *domain.ViewerSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	s.sessions[domain.Key(session.ViewerID, session.CreatorName)] = session
	return nil
}

// Delete implements Store.
func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, key)
	return nil
}

// Close implements Store.
func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	return nil
}
