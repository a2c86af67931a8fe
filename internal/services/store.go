package services

import (
	"context"
	"time"
)

// SessionStore persists sessions and their participants.
// Lookups return (nil, nil) when the row does not exist.
type SessionStore interface {
	// CreateSession inserts the session and all of its participants atomically.
	CreateSession(ctx context.Context, s *Session, ps []*Participant) error
	GetSession(ctx context.Context, id string) (*Session, error)
	GetParticipantByToken(ctx context.Context, token string) (*Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]*Participant, error)
}

// QuestionStore reads and maintains the question bank.
type QuestionStore interface {
	ListActiveQuestions(ctx context.Context) ([]*Question, error)
	ListQuestions(ctx context.Context) ([]*Question, error)
	ListChoices(ctx context.Context, questionIDs []string) ([]*Choice, error)
	CreateQuestion(ctx context.Context, q *Question, choices []*Choice) error
	// SetQuestionActive returns ErrNotFound for an unknown question id.
	SetQuestionActive(ctx context.Context, id string, active bool) error
}

// ProgressStore persists answers and free text.
type ProgressStore interface {
	// SaveProgress upserts every answer and the optional free text in one
	// transaction. It returns ErrParticipantCompleted when the participant
	// completed before the write was applied; nothing is written in that case.
	SaveProgress(ctx context.Context, w ProgressWrite) error
	ListResponses(ctx context.Context, participantID string) ([]*Response, error)
	ListSessionResponses(ctx context.Context, sessionID string) ([]*Response, error)
	GetFreeText(ctx context.Context, participantID string) (*FreeText, error)
}

// CompletionStore holds the reads and conditional writes of the completion gate.
type CompletionStore interface {
	CountActiveQuestions(ctx context.Context) (int, error)
	CountResponses(ctx context.Context, participantID string) (int, error)
	// MarkCompleted sets completed_at only while it is still null and reports
	// whether this call performed the transition. A non-nil w.FreeText is
	// upserted in the same transaction, so nothing is written for a
	// participant that is already completed. Free text failures wrap
	// ErrFreeTextWrite and leave the participant open.
	MarkCompleted(ctx context.Context, w CompletionWrite) (bool, error)
	// UpdateSessionStatus writes status and updated_at. A session already
	// ready is never moved back to an earlier status.
	UpdateSessionStatus(ctx context.Context, sessionID string, status SessionStatus, at time.Time) error
}

// ReportStore tracks report runs handed to the downstream generator.
type ReportStore interface {
	// CreateReportRun inserts a run unless one exists for the session and
	// reports whether a row was inserted.
	CreateReportRun(ctx context.Context, run *ReportRun) (bool, error)
	GetReportRun(ctx context.Context, sessionID string) (*ReportRun, error)
	// ListCompletedSessionsWithoutRun returns ids of sessions whose
	// participants have all completed and that have no report run yet,
	// regardless of the stored session status.
	ListCompletedSessionsWithoutRun(ctx context.Context, limit int) ([]string, error)
}

// Store is the full persistence surface implemented by internal/db.
type Store interface {
	SessionStore
	QuestionStore
	ProgressStore
	CompletionStore
	ReportStore
}
