package domain

import "time"

// JobKind identifies which background worker handles a job.
type JobKind string

const (
	JobAppend     JobKind = "append"
	JobJoin       JobKind = "join"
	JobTranscribe JobKind = "transcribe"
)

// Job is one unit of background work. Jobs are delivered at least once and
// in no particular order; Next is enqueued only after the job succeeds.
type Job struct {
	ID           string
	Kind         JobKind
	SessionID    string
	Chunk        []byte
	ArtifactPath string
	Attempt      int
	EnqueuedAt   time.Time
	Next         *Job
}
