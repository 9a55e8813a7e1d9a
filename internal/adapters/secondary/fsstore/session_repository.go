package fsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go-video-recorder/internal/core/domain"
)

const sessionFile = "session.json"

// SessionRepository persists each session record as JSON in its session
// directory, next to the chunks.
type SessionRepository struct {
	root string
	mu   sync.Mutex
}

func NewSessionRepository(root string) (*SessionRepository, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create session store root: %w", err)
	}
	return &SessionRepository{root: root}, nil
}

func (r *SessionRepository) path(sessionID string) string {
	return filepath.Join(r.root, sessionID, sessionFile)
}

func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	if !validID(session.ID) {
		return fmt.Errorf("invalid session id %q", session.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.path(session.ID)); err == nil {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	return r.save(session)
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	if !validID(sessionID) {
		return domain.Session{}, domain.ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(sessionID)
}

func (r *SessionRepository) Update(ctx context.Context, sessionID string, fn func(*domain.Session) error) (domain.Session, error) {
	if !validID(sessionID) {
		return domain.Session{}, domain.ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, err := r.load(sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if err := fn(&session); err != nil {
		return domain.Session{}, err
	}
	if err := r.save(session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (r *SessionRepository) load(sessionID string) (domain.Session, error) {
	data, err := os.ReadFile(r.path(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("%w: read session: %v", domain.ErrIO, err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return domain.Session{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return session, nil
}

// save writes to a temp file and renames it so readers never see a
// partially written record.
func (r *SessionRepository) save(session domain.Session) error {
	dir := filepath.Dir(r.path(session.ID))
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"session-*")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	tmpName := tmp.Name()
	if err := writeAndSync(tmp, data); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write session: %v", domain.ErrIO, err)
	}
	if err := os.Rename(tmpName, r.path(session.ID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: commit session: %v", domain.ErrIO, err)
	}
	return nil
}
