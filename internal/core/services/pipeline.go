package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go-video-recorder/internal/core/domain"
	"go-video-recorder/internal/core/ports"
)

// Pipeline executes the background jobs of a recording session: chunk
// append, join into the final artifact, and transcription.
type Pipeline struct {
	sessions    ports.SessionRepository
	chunks      ports.ChunkStore
	extractor   ports.AudioExtractor
	transcriber ports.Transcriber
	observer    ports.PipelineObserver
	logger      *slog.Logger
	now         func() time.Time
	stat        func(name string) (os.FileInfo, error)
}

func NewPipeline(
	sessions ports.SessionRepository,
	chunks ports.ChunkStore,
	extractor ports.AudioExtractor,
	transcriber ports.Transcriber,
	observer ports.PipelineObserver,
	logger *slog.Logger,
) *Pipeline {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		sessions:    sessions,
		chunks:      chunks,
		extractor:   extractor,
		transcriber: transcriber,
		observer:    observer,
		logger:      logger,
		now:         time.Now,
		stat:        os.Stat,
	}
}

// Handle dispatches one queued job to its worker.
func (p *Pipeline) Handle(ctx context.Context, job domain.Job) error {
	switch job.Kind {
	case domain.JobAppend:
		return p.AppendChunk(ctx, job.SessionID, job.Chunk)
	case domain.JobJoin:
		return p.JoinChunks(ctx, job.SessionID)
	case domain.JobTranscribe:
		return p.Transcribe(ctx, job.SessionID, job.ArtifactPath)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// Abandon records a job that failed for good.
func (p *Pipeline) Abandon(ctx context.Context, job domain.Job, cause error) {
	p.logger.Error("Background job abandoned",
		slog.String("session_id", job.SessionID),
		slog.String("job", string(job.Kind)),
		slog.Int("attempt", job.Attempt),
		slog.String("error", cause.Error()),
	)

	var msg string
	switch job.Kind {
	case domain.JobAppend:
		msg = fmt.Sprintf("chunk dropped: %v", cause)
	case domain.JobJoin:
		msg = fmt.Sprintf("join failed: %v", cause)
	case domain.JobTranscribe:
		msg = fmt.Sprintf("transcription failed: %v", cause)
	default:
		return
	}

	failed := false
	_, err := p.sessions.Update(ctx, job.SessionID, func(s *domain.Session) error {
		s.LastError = msg
		s.UpdatedAt = p.now()
		// A failed join leaves nothing for transcription to work on.
		if job.Kind == domain.JobJoin && s.State == domain.StateStopping {
			if err := s.Transition(domain.StateFailed, p.now()); err != nil {
				return err
			}
			failed = true
		}
		return nil
	})
	if err != nil {
		p.logger.Warn("Failed to record job failure",
			slog.String("session_id", job.SessionID),
			slog.String("error", err.Error()),
		)
		return
	}
	if failed {
		p.observer.SessionStateChanged(domain.StateFailed)
	}
}

// AppendChunk persists one chunk at the end of the session's chunk sequence.
// Executing the same job twice appends the chunk twice.
func (p *Pipeline) AppendChunk(ctx context.Context, sessionID string, chunk []byte) error {
	if len(chunk) == 0 {
		return domain.ErrEmptyChunk
	}
	if _, err := p.sessions.Get(ctx, sessionID); err != nil {
		return err
	}

	index, err := p.chunks.Append(ctx, sessionID, chunk)
	if err != nil {
		return fmt.Errorf("append chunk: %w", err)
	}
	p.observer.ChunkAppended(len(chunk))

	p.logger.Debug("Chunk appended",
		slog.String("session_id", sessionID),
		slog.Int("index", index),
		slog.Int("bytes", len(chunk)),
	)
	return nil
}

// JoinChunks concatenates every chunk currently stored for the session into
// the final artifact. Appends still in flight when it runs are not included.
func (p *Pipeline) JoinChunks(ctx context.Context, sessionID string) error {
	session, err := p.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	switch session.State {
	case domain.StateStopping:
	case domain.StateJoined, domain.StateTranscribed:
		p.logger.Info("Join already applied, skipping redelivery",
			slog.String("session_id", sessionID),
			slog.String("state", string(session.State)),
		)
		return nil
	default:
		return &domain.TransitionError{From: session.State, To: domain.StateJoined}
	}

	result, err := p.chunks.Join(ctx, sessionID)
	if err != nil {
		p.logger.Warn("Join failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("join session %s: %w", sessionID, err)
	}

	applied := false
	_, err = p.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
		// Another join for the same stop got here first.
		if s.State == domain.StateJoined || s.State == domain.StateTranscribed {
			return nil
		}
		if err := s.Transition(domain.StateJoined, p.now()); err != nil {
			return err
		}
		s.FinalArtifactPath = result.Path
		s.ChunkCount = result.Chunks
		s.ArtifactSize = result.Size
		s.LastError = ""
		applied = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("record join: %w", err)
	}
	if !applied {
		p.logger.Info("Join already recorded by a concurrent job",
			slog.String("session_id", sessionID),
		)
		return nil
	}
	p.observer.SessionStateChanged(domain.StateJoined)

	p.logger.Info("Chunks joined",
		slog.String("session_id", sessionID),
		slog.String("path", result.Path),
		slog.Int("chunks", result.Chunks),
		slog.Int64("bytes", result.Size),
	)
	return nil
}

// Transcribe extracts the audio of the final artifact and stores its
// transcript. It refuses to run until Join has recorded the artifact.
func (p *Pipeline) Transcribe(ctx context.Context, sessionID, artifactPath string) error {
	session, err := p.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	switch session.State {
	case domain.StateJoined:
	case domain.StateTranscribed:
		p.logger.Info("Transcription already applied, skipping redelivery",
			slog.String("session_id", sessionID),
		)
		return nil
	default:
		return fmt.Errorf("%w: session %s is %s", domain.ErrArtifactNotFound, sessionID, session.State)
	}

	if artifactPath == "" {
		artifactPath = session.FinalArtifactPath
	}
	if artifactPath != session.FinalArtifactPath {
		return fmt.Errorf("%w: %s is not the joined artifact of session %s", domain.ErrArtifactNotFound, artifactPath, sessionID)
	}
	if _, err := p.stat(artifactPath); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrArtifactNotFound, artifactPath, err)
	}

	audio, err := p.extractor.Extract(ctx, artifactPath)
	if err != nil {
		p.recordError(ctx, sessionID, fmt.Sprintf("audio extraction failed: %v", err))
		return domain.Retryable(fmt.Errorf("extract audio: %w", err))
	}
	defer func() {
		if audio.Cleanup == nil {
			return
		}
		if err := audio.Cleanup(); err != nil {
			p.logger.Warn("Failed to remove extracted audio",
				slog.String("path", audio.Path),
				slog.String("error", err.Error()),
			)
		}
	}()

	started := p.now()
	text, err := p.transcriber.Transcribe(ctx, audio.Path)
	if err != nil {
		p.recordError(ctx, sessionID, fmt.Sprintf("transcription failed: %v", err))
		return domain.Retryable(fmt.Errorf("transcribe: %w", err))
	}

	_, err = p.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
		if err := s.Transition(domain.StateTranscribed, p.now()); err != nil {
			return err
		}
		s.TranscriptionText = text
		s.AudioDuration = audio.Duration
		s.LastError = ""
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Stop was re-triggered while transcribing; the new chain will redo it.
			p.logger.Info("Discarding stale transcript", slog.String("session_id", sessionID))
			return nil
		}
		return fmt.Errorf("record transcript: %w", err)
	}
	p.observer.SessionStateChanged(domain.StateTranscribed)

	p.logger.Info("Transcription stored",
		slog.String("session_id", sessionID),
		slog.Float64("audio_seconds", audio.Duration),
		slog.Int("chars", len(text)),
		slog.Duration("took", p.now().Sub(started)),
	)
	return nil
}

func (p *Pipeline) recordError(ctx context.Context, sessionID, msg string) {
	_, err := p.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
		s.LastError = msg
		s.UpdatedAt = p.now()
		return nil
	})
	if err != nil {
		p.logger.Warn("Failed to record error",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}
