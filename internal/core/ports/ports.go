package ports

import (
	"context"

	"go-video-recorder/internal/core/domain"
)

// Primary Port (Driving) - implemented by Service
type RecordingService interface {
	StartSession(ctx context.Context) (domain.Session, error)
	SubmitChunk(ctx context.Context, sessionID string, chunk []byte) error
	StopSession(ctx context.Context, sessionID string) (domain.Session, error)
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	GetSessionDetail(ctx context.Context, sessionID string) (domain.SessionDetail, error)
	WaitSession(ctx context.Context, sessionID string, states ...domain.SessionState) (domain.Session, error)
}

// Secondary Port (Driven) - key-value session records
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, sessionID string) (domain.Session, error)
	// Update applies fn to the stored record atomically. Returning an error
	// from fn leaves the record untouched.
	Update(ctx context.Context, sessionID string, fn func(*domain.Session) error) (domain.Session, error)
}

// Secondary Port (Driven) - append-only chunk buckets and final artifacts
type ChunkStore interface {
	Provision(ctx context.Context, sessionID string) error
	Exists(ctx context.Context, sessionID string) bool
	Append(ctx context.Context, sessionID string, chunk []byte) (int, error)
	Count(ctx context.Context, sessionID string) (int, error)
	// Join concatenates every chunk present at call time into the final
	// artifact, replacing any previous one.
	Join(ctx context.Context, sessionID string) (JoinResult, error)
	ArtifactPath(sessionID string) string
	ArtifactExists(ctx context.Context, sessionID string) bool
}

type JoinResult struct {
	Path   string
	Chunks int
	Size   int64
}

// Secondary Port (Driven) - background job execution
type JobQueue interface {
	Enqueue(ctx context.Context, job domain.Job) (Ticket, error)
}

// Ticket resolves when a job and every job chained after it have finished.
type Ticket interface {
	Done() <-chan struct{}
	Err() error
}

// Secondary Port (Driven)
type AudioExtractor interface {
	// Extract writes the audio track of videoPath to a mono 16kHz WAV.
	Extract(ctx context.Context, videoPath string) (Audio, error)
}

type Audio struct {
	Path     string
	Duration float64 // seconds
	Cleanup  func() error
}

// Secondary Port (Driven)
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// PipelineObserver receives background job outcomes for metrics.
type PipelineObserver interface {
	JobEnqueued(kind domain.JobKind)
	JobFinished(kind domain.JobKind, seconds float64, err error)
	JobRetried(kind domain.JobKind)
	ChunkAppended(size int)
	SessionStateChanged(state domain.SessionState)
}

// NopObserver discards pipeline events.
type NopObserver struct{}

func (NopObserver) JobEnqueued(domain.JobKind) {}
func (NopObserver) JobFinished(domain.JobKind, float64, error) {}
func (NopObserver) JobRetried(domain.JobKind) {}
func (NopObserver) ChunkAppended(int) {}
func (NopObserver) SessionStateChanged(domain.SessionState) {}
