package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go-video-recorder/internal/core/domain"
	"go-video-recorder/internal/core/ports"

	"github.com/google/uuid"
)

type Options struct {
	// StopWait bounds how long StopSession waits for join and
	// transcription before returning.
	StopWait      time.Duration
	MaxChunkBytes int
	PollInterval  time.Duration
	PollMaxDelay  time.Duration
}

type recordingService struct {
	sessions ports.SessionRepository
	chunks   ports.ChunkStore
	queue    ports.JobQueue
	observer ports.PipelineObserver
	logger   *slog.Logger
	opts     Options
	now      func() time.Time
}

func NewRecordingService(
	sessions ports.SessionRepository,
	chunks ports.ChunkStore,
	queue ports.JobQueue,
	observer ports.PipelineObserver,
	logger *slog.Logger,
	opts Options,
) ports.RecordingService {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	if opts.PollMaxDelay < opts.PollInterval {
		opts.PollMaxDelay = 2 * time.Second
	}
	return &recordingService{
		sessions: sessions,
		chunks:   chunks,
		queue:    queue,
		observer: observer,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

func (s *recordingService) StartSession(ctx context.Context) (domain.Session, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: generate id: %v", domain.ErrAllocation, err)
	}

	if err := s.chunks.Provision(ctx, id.String()); err != nil {
		return domain.Session{}, fmt.Errorf("%w: provision chunk store: %v", domain.ErrAllocation, err)
	}

	session := domain.NewSession(id.String(), s.now())
	if err := s.sessions.Create(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("%w: store session: %v", domain.ErrAllocation, err)
	}
	s.observer.SessionStateChanged(domain.StateOpen)

	s.logger.Info("Session started", slog.String("session_id", session.ID))
	return session, nil
}

// SubmitChunk queues the chunk for persistence and returns without waiting
// for it to be written.
func (s *recordingService) SubmitChunk(ctx context.Context, sessionID string, chunk []byte) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(chunk) == 0 {
		return domain.ErrEmptyChunk
	}
	if s.opts.MaxChunkBytes > 0 && len(chunk) > s.opts.MaxChunkBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrChunkTooLarge, len(chunk), s.opts.MaxChunkBytes)
	}
	if session.State != domain.StateOpen {
		return fmt.Errorf("%w: session %s is %s", domain.ErrSessionClosed, sessionID, session.State)
	}

	data := make([]byte, len(chunk))
	copy(data, chunk)

	_, err = s.queue.Enqueue(ctx, domain.Job{
		Kind:      domain.JobAppend,
		SessionID: sessionID,
		Chunk:     data,
	})
	if err != nil {
		return fmt.Errorf("enqueue append: %w", err)
	}
	return nil
}

// StopSession closes the session to new chunks and queues join followed by
// transcription. It waits at most Options.StopWait; callers poll
// GetSession or WaitSession for the outcome.
func (s *recordingService) StopSession(ctx context.Context, sessionID string) (domain.Session, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return domain.Session{}, err
	}
	if !s.chunks.Exists(ctx, sessionID) {
		return domain.Session{}, fmt.Errorf("%w: no chunk store for session %s", domain.ErrNotFound, sessionID)
	}

	session, err := s.sessions.Update(ctx, sessionID, func(sess *domain.Session) error {
		return sess.Transition(domain.StateStopping, s.now())
	})
	if err != nil {
		return domain.Session{}, err
	}
	s.observer.SessionStateChanged(domain.StateStopping)

	ticket, err := s.queue.Enqueue(ctx, domain.Job{
		Kind:      domain.JobJoin,
		SessionID: sessionID,
		Next: &domain.Job{
			Kind:         domain.JobTranscribe,
			SessionID:    sessionID,
			ArtifactPath: s.chunks.ArtifactPath(sessionID),
		},
	})
	if err != nil {
		return session, fmt.Errorf("enqueue join: %w", err)
	}

	s.logger.Info("Session stopping", slog.String("session_id", sessionID))

	if s.opts.StopWait > 0 {
		timer := time.NewTimer(s.opts.StopWait)
		defer timer.Stop()

		select {
		case <-ticket.Done():
			if err := ticket.Err(); err != nil {
				s.logger.Warn("Post-processing finished with error",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
			}
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	latest, err := s.sessions.Get(context.WithoutCancel(ctx), sessionID)
	if err != nil {
		return session, nil
	}
	return latest, nil
}

func (s *recordingService) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// GetSessionDetail returns the joined artifact and, once available, its
// transcript. It fails with ErrNotReady until Join has completed.
func (s *recordingService) GetSessionDetail(ctx context.Context, sessionID string) (domain.SessionDetail, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.SessionDetail{}, err
	}
	if !session.HasArtifact() || !s.chunks.ArtifactExists(ctx, sessionID) {
		return domain.SessionDetail{}, fmt.Errorf("%w: session %s is %s", domain.ErrNotReady, sessionID, session.State)
	}

	detail := domain.SessionDetail{
		SessionID:         session.ID,
		State:             session.State,
		FinalArtifactPath: session.FinalArtifactPath,
	}
	if session.State == domain.StateTranscribed {
		detail.TranscriptionText = session.TranscriptionText
		detail.Transcribed = true
	}
	return detail, nil
}

// WaitSession polls with exponential backoff until the session reaches one
// of states or ctx is done.
func (s *recordingService) WaitSession(ctx context.Context, sessionID string, states ...domain.SessionState) (domain.Session, error) {
	delay := s.opts.PollInterval
	for {
		session, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return domain.Session{}, err
		}
		for _, want := range states {
			if session.State == want {
				return session, nil
			}
		}

		select {
		case <-ctx.Done():
			return session, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.opts.PollMaxDelay {
			delay = s.opts.PollMaxDelay
		}
	}
}
