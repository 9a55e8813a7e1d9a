package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-video-recorder/internal/core/domain"
)

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get missing error = %v, want ErrNotFound", err)
	}

	session := domain.NewSession("s1", time.Now())
	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, session); err == nil {
		t.Fatal("duplicate Create should fail")
	}

	updated, err := repo.Update(ctx, "s1", func(s *domain.Session) error {
		return s.Transition(domain.StateStopping, time.Now())
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.State != domain.StateStopping {
		t.Fatalf("updated state = %s, want stopping", updated.State)
	}

	_, err = repo.Update(ctx, "s1", func(s *domain.Session) error {
		s.FinalArtifactPath = "ignored"
		return errors.New("abort")
	})
	if err == nil {
		t.Fatal("expected update error")
	}

	got, err := repo.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != domain.StateStopping || got.FinalArtifactPath != "" {
		t.Fatalf("got %+v after aborted update", got)
	}
}
