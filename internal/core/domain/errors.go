package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown session identifiers.
	ErrNotFound = errors.New("session not found")
	// ErrEmptyChunk is returned when a submitted chunk carries no bytes.
	ErrEmptyChunk = errors.New("no video data received")
	// ErrChunkTooLarge is returned when a chunk exceeds the configured limit.
	ErrChunkTooLarge = errors.New("video chunk too large")
	// ErrSessionClosed is returned when chunks arrive after stop was requested.
	ErrSessionClosed = errors.New("session is not accepting chunks")
	// ErrEmptyChunkStore is reported by Join when the session has no chunks.
	ErrEmptyChunkStore = errors.New("chunk store is empty")
	// ErrArtifactNotFound is reported by Transcription when Join has not produced the artifact.
	ErrArtifactNotFound = errors.New("final artifact not found")
	// ErrNotReady is returned when session detail is requested before the artifact exists.
	ErrNotReady = errors.New("video not ready")
	// ErrIO wraps durable storage failures.
	ErrIO = errors.New("storage i/o failure")
	// ErrAllocation is returned when a new session cannot be provisioned.
	ErrAllocation = errors.New("cannot allocate session")
	// ErrInvalidTransition is matched by every TransitionError.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrQueueClosed is returned when jobs are enqueued after shutdown began.
	ErrQueueClosed = errors.New("job queue closed")
)

// TransitionError records a rejected state machine edge.
type TransitionError struct {
	From SessionState
	To   SessionState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// retryableError marks an error the job queue should redeliver.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err as eligible for queue-level retry.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether a background job failure may succeed on redelivery.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r *retryableError
	if errors.As(err, &r) {
		return true
	}
	return errors.Is(err, ErrEmptyChunkStore) ||
		errors.Is(err, ErrArtifactNotFound) ||
		errors.Is(err, ErrIO)
}
