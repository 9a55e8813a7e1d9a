package domain

import (
	"time"
)

type SessionState string

const (
	StateOpen        SessionState = "open"
	StateStopping    SessionState = "stopping"
	StateJoined      SessionState = "joined"
	StateTranscribed SessionState = "transcribed"
	StateFailed      SessionState = "failed"
)

type Session struct {
	ID                string       `json:"sessionId"`
	State             SessionState `json:"state"`
	FinalArtifactPath string       `json:"finalArtifactPath,omitempty"`
	TranscriptionText string       `json:"transcriptionText,omitempty"`
	ChunkCount        int          `json:"chunkCount"`
	ArtifactSize      int64        `json:"artifactSize,omitempty"`
	AudioDuration     float64      `json:"audioDuration,omitempty"` // seconds
	LastError         string       `json:"lastError,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
	StoppedAt         *time.Time   `json:"stoppedAt,omitempty"`
}

// SessionDetail is the client-facing view of a session whose artifact exists.
type SessionDetail struct {
	SessionID         string
	State             SessionState
	FinalArtifactPath string
	TranscriptionText string
	Transcribed       bool
}

func NewSession(id string, now time.Time) Session {
	return Session{
		ID:        id,
		State:     StateOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasArtifact reports whether Join has recorded a final artifact.
func (s Session) HasArtifact() bool {
	return s.FinalArtifactPath != "" && (s.State == StateJoined || s.State == StateTranscribed)
}

// Transition moves the session to the next state, rejecting edges the
// lifecycle does not allow.
func (s *Session) Transition(to SessionState, now time.Time) error {
	if !CanTransition(s.State, to) {
		return &TransitionError{From: s.State, To: to}
	}
	s.State = to
	s.UpdatedAt = now
	if to == StateStopping {
		stopped := now
		s.StoppedAt = &stopped
	}
	return nil
}

// CanTransition enforces the session state machine edges.
func CanTransition(from, to SessionState) bool {
	switch from {
	case StateOpen:
		return to == StateStopping
	case StateStopping:
		return to == StateStopping || to == StateJoined || to == StateFailed
	case StateJoined:
		return to == StateTranscribed || to == StateStopping
	case StateTranscribed, StateFailed:
		return to == StateStopping
	default:
		return false
	}
}
