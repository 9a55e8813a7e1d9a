package fsstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"go-video-recorder/internal/core/domain"
)

// TestSessionRepositoryPersists verifies records survive a new repository instance.
func TestSessionRepositoryPersists(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	repo, err := NewSessionRepository(root)
	if err != nil {
		t.Fatalf("NewSessionRepository: %v", err)
	}

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	session := domain.NewSession(uuid.NewString(), created)
	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, session); err == nil {
		t.Fatal("duplicate Create should fail")
	}

	_, err = repo.Update(ctx, session.ID, func(s *domain.Session) error {
		if err := s.Transition(domain.StateStopping, created.Add(time.Minute)); err != nil {
			return err
		}
		s.ChunkCount = 3
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	reopened, err := NewSessionRepository(root)
	if err != nil {
		t.Fatalf("NewSessionRepository: %v", err)
	}
	got, err := reopened.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != domain.StateStopping || got.ChunkCount != 3 {
		t.Fatalf("got %+v, want stopping with 3 chunks", got)
	}
	if got.StoppedAt == nil || !got.StoppedAt.Equal(created.Add(time.Minute)) {
		t.Fatalf("StoppedAt = %v", got.StoppedAt)
	}
}

// TestSessionRepositoryUpdateErrorLeavesRecord checks a failing update is not persisted.
func TestSessionRepositoryUpdateErrorLeavesRecord(t *testing.T) {
	ctx := context.Background()
	repo, err := NewSessionRepository(t.TempDir())
	if err != nil {
		t.Fatalf("NewSessionRepository: %v", err)
	}
	session := domain.NewSession(uuid.NewString(), time.Now())
	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = repo.Update(ctx, session.ID, func(s *domain.Session) error {
		s.TranscriptionText = "should not stick"
		return s.Transition(domain.StateTranscribed, time.Now())
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}

	got, err := repo.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != domain.StateOpen || got.TranscriptionText != "" {
		t.Fatalf("record changed after failed update: %+v", got)
	}
}

func TestSessionRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo, err := NewSessionRepository(t.TempDir())
	if err != nil {
		t.Fatalf("NewSessionRepository: %v", err)
	}

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		if _, err := repo.Get(ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Get(%q) error = %v, want ErrNotFound", id, err)
		}
		_, err := repo.Update(ctx, id, func(*domain.Session) error { return nil })
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Update(%q) error = %v, want ErrNotFound", id, err)
		}
	}
}
