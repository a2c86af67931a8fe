package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/soaringjerry/dyad/internal/metrics"
)

// CompletionRequest is a validated complete-session call.
type CompletionRequest struct {
	Token    string
	FreeText *string
}

// ReadyNotifier is told about sessions that just became ready. Failures are
// logged by the caller and never undo the completion.
type ReadyNotifier interface {
	SessionReady(ctx context.Context, sessionID string) error
}

type completionBackend interface {
	SessionStore
	ProgressStore
	CompletionStore
}

type CompletionService struct {
	store      completionBackend
	aggregator *StatusAggregator
	notifier   ReadyNotifier
	now        func() time.Time
}

func NewCompletionService(store completionBackend, notifier ReadyNotifier) *CompletionService {
	now := func() time.Time { return time.Now().UTC() }
	return &CompletionService{
		store:      store,
		aggregator: NewStatusAggregator(store),
		notifier:   notifier,
		now:        now,
	}
}

// Complete runs the completion gate for the participant behind req.Token and
// returns the session status computed afterwards.
func (s *CompletionService) Complete(ctx context.Context, req CompletionRequest) (status SessionStatus, err error) {
	ctx, span := tracer.Start(ctx, "CompletionService.Complete")
	defer span.End()
	defer func() { metrics.Completions.WithLabelValues(outcome(err)).Inc() }()

	p, err := resolveParticipant(ctx, s.store, req.Token)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("session_id", p.SessionID), attribute.String("role", string(p.Role)))
	if p.Completed() {
		return "", NewAlreadyCompletedError()
	}

	if err := CheckCompleteness(ctx, s.store, p.ID); err != nil {
		return "", err
	}

	// Snapshot the other participants before committing so a failed
	// recompute can still report the status this completion produced.
	peers, err := s.store.ListParticipants(ctx, p.SessionID)
	if err != nil {
		slog.WarnContext(ctx, "participant snapshot failed", "session_id", p.SessionID, "error", err)
		peers = nil
	}

	changed, err := s.store.MarkCompleted(ctx, CompletionWrite{
		ParticipantID: p.ID,
		SessionID:     p.SessionID,
		FreeText:      req.FreeText,
		At:            s.now(),
	})
	switch {
	case errors.Is(err, ErrFreeTextWrite):
		slog.ErrorContext(ctx, "free text upsert failed", "participant_id", p.ID, "error", err)
		return "", NewFreeTextPersistenceError(err)
	case err != nil:
		slog.ErrorContext(ctx, "mark completed failed", "participant_id", p.ID, "error", err)
		return "", NewCompletionPersistenceError(err)
	case !changed:
		return "", NewConcurrentCompletionError()
	}
	slog.InfoContext(ctx, "participant completed", "session_id", p.SessionID, "role", p.Role)

	status, err = s.aggregator.Recompute(ctx, p.SessionID)
	if err != nil {
		// The participant's completion is committed; the stored status is
		// repaired on the next aggregator run.
		slog.WarnContext(ctx, "session status recompute failed", "session_id", p.SessionID, "error", err)
		if status == "" {
			status = statusAfter(peers, p.ID)
		}
	}
	if status == StatusReady && s.notifier != nil {
		if nerr := s.notifier.SessionReady(ctx, p.SessionID); nerr != nil {
			metrics.SecondaryFailures.WithLabelValues("ready_notify").Inc()
			slog.WarnContext(ctx, "ready notification failed", "session_id", p.SessionID, "error", nerr)
		}
	}
	return status, nil
}

// statusAfter derives the session status from a pre-commit snapshot with
// participantID counted as completed. It never reports in_progress.
func statusAfter(snapshot []*Participant, participantID string) SessionStatus {
	ps := make([]*Participant, 0, len(snapshot))
	for _, p := range snapshot {
		cp := *p
		if cp.ID == participantID && cp.CompletedAt == nil {
			done := time.Time{}
			cp.CompletedAt = &done
		}
		ps = append(ps, &cp)
	}
	if status := AggregateStatus(ps); status == StatusReady {
		return status
	}
	return StatusWaiting
}

// CheckCompleteness compares the participant's answer count with the number
// of currently active questions. Counts are compared, not question ids.
func CheckCompleteness(ctx context.Context, store CompletionStore, participantID string) error {
	expected, err := store.CountActiveQuestions(ctx)
	if err != nil {
		return NewPersistenceError("count active questions", err)
	}
	received, err := store.CountResponses(ctx, participantID)
	if err != nil {
		return NewPersistenceError("count responses", err)
	}
	if expected <= 0 || received != expected {
		return NewIncompleteAnswersError(expected, received)
	}
	return nil
}
