package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/soaringjerry/dyad/internal/metrics"
)

// ProgressRequest is a validated save-progress call.
type ProgressRequest struct {
	Token    string
	Answers  []Answer
	FreeText *string
}

type ProgressService struct {
	store interface {
		SessionStore
		ProgressStore
	}
	now func() time.Time
}

func NewProgressService(store interface {
	SessionStore
	ProgressStore
}) *ProgressService {
	return &ProgressService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Save upserts the submitted answers (and free text, if any) for an open
// participant. It never checks completeness and never touches session status.
func (s *ProgressService) Save(ctx context.Context, req ProgressRequest) (err error) {
	ctx, span := tracer.Start(ctx, "ProgressService.Save")
	defer span.End()
	defer func() { metrics.ProgressSaves.WithLabelValues(outcome(err)).Inc() }()

	p, err := resolveParticipant(ctx, s.store, req.Token)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("session_id", p.SessionID), attribute.Int("answers", len(req.Answers)))
	if p.Completed() {
		return NewAlreadyCompletedError()
	}

	err = s.store.SaveProgress(ctx, ProgressWrite{
		ParticipantID: p.ID,
		SessionID:     p.SessionID,
		Answers:       dedupeAnswers(req.Answers),
		FreeText:      req.FreeText,
		At:            s.now(),
	})
	switch {
	case errors.Is(err, ErrParticipantCompleted):
		return NewAlreadyCompletedError()
	case err != nil:
		slog.ErrorContext(ctx, "save progress failed", "participant_id", p.ID, "error", err)
		return NewPersistenceError("save progress", err)
	}
	return nil
}

// dedupeAnswers keeps the last answer per question, preserving first-seen order.
func dedupeAnswers(in []Answer) []Answer {
	if len(in) < 2 {
		return in
	}
	idx := make(map[string]int, len(in))
	out := make([]Answer, 0, len(in))
	for _, a := range in {
		if i, ok := idx[a.QuestionID]; ok {
			out[i] = a
			continue
		}
		idx[a.QuestionID] = len(out)
		out = append(out, a)
	}
	return out
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if se, ok := AsServiceError(err); ok {
		return string(se.Code)
	}
	return "error"
}
