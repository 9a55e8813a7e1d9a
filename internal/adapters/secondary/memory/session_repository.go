package memory

import (
	"context"
	"fmt"
	"sync"

	"go-video-recorder/internal/core/domain"
)

type SessionRepository struct {
	sessions map[string]domain.Session
	mu       sync.RWMutex
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]domain.Session),
	}
}

func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	r.sessions[session.ID] = session
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[sessionID]
	if !exists {
		return domain.Session{}, domain.ErrNotFound
	}
	return session, nil
}

func (r *SessionRepository) Update(ctx context.Context, sessionID string, fn func(*domain.Session) error) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[sessionID]
	if !exists {
		return domain.Session{}, domain.ErrNotFound
	}
	if err := fn(&session); err != nil {
		return domain.Session{}, err
	}
	r.sessions[sessionID] = session
	return session, nil
}
