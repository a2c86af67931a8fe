package services

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/soaringjerry/dyad/internal/metrics"
)

// RunOutcome describes what EnsureRun did for a session.
type RunOutcome string

const (
	RunCreated  RunOutcome = "created"
	RunExists   RunOutcome = "exists"
	RunNotReady RunOutcome = "not_ready"
)

type reportBackend interface {
	SessionStore
	CompletionStore
	ReportStore
}

// ReportService hands ready sessions to the downstream report generator by
// recording one report run per session.
type ReportService struct {
	store       reportBackend
	aggregator  *StatusAggregator
	now         func() time.Time
	idGenerator func() string
}

func NewReportService(store reportBackend) *ReportService {
	return &ReportService{
		store:       store,
		aggregator:  NewStatusAggregator(store),
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: newID,
	}
}

// EnsureRun creates the session's report run once every participant has
// completed. Calling it again is a no-op success.
func (s *ReportService) EnsureRun(ctx context.Context, sessionID string) (outcome RunOutcome, err error) {
	ctx, span := tracer.Start(ctx, "ReportService.EnsureRun")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))
	defer func() {
		if err != nil {
			metrics.ReportRuns.WithLabelValues("error").Inc()
			return
		}
		metrics.ReportRuns.WithLabelValues(string(outcome)).Inc()
	}()

	ps, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return "", NewPersistenceError("list participants", err)
	}
	if len(ps) == 0 {
		return "", NewNotFoundError("session not found")
	}
	if AggregateStatus(ps) != StatusReady {
		return RunNotReady, nil
	}
	created, err := s.store.CreateReportRun(ctx, &ReportRun{ID: s.idGenerator(), SessionID: sessionID, CreatedAt: s.now()})
	if err != nil {
		return "", NewPersistenceError("create report run", err)
	}
	if !created {
		return RunExists, nil
	}
	slog.InfoContext(ctx, "report run created", "session_id", sessionID)
	return RunCreated, nil
}

// SessionReady implements ReadyNotifier by ensuring the run inline.
func (s *ReportService) SessionReady(ctx context.Context, sessionID string) error {
	_, err := s.EnsureRun(ctx, sessionID)
	return err
}

type BackfillResult struct {
	Scanned   int  `json:"scanned"`
	Created   int  `json:"created"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	OutOfTime bool `json:"out_of_time"`
}

// Backfill processes up to limit fully completed sessions that have no report
// run, repairing their status and ensuring the run. It stops before starting
// a session once budget has elapsed; every processed session is committed on
// its own.
func (s *ReportService) Backfill(ctx context.Context, limit int, budget time.Duration) (*BackfillResult, error) {
	ctx, span := tracer.Start(ctx, "ReportService.Backfill")
	defer span.End()
	if limit <= 0 {
		return nil, NewInvalidError("limit must be positive")
	}
	if budget <= 0 {
		return nil, NewInvalidError("budget must be positive")
	}
	deadline := s.now().Add(budget)

	ids, err := s.store.ListCompletedSessionsWithoutRun(ctx, limit)
	if err != nil {
		return nil, NewPersistenceError("list sessions", err)
	}
	res := &BackfillResult{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			res.OutOfTime = true
			break
		}
		if !s.now().Before(deadline) {
			res.OutOfTime = true
			break
		}
		res.Scanned++
		if _, err := s.aggregator.Recompute(ctx, id); err != nil {
			slog.WarnContext(ctx, "backfill status recompute failed", "session_id", id, "error", err)
		}
		outcome, err := s.EnsureRun(ctx, id)
		switch {
		case err != nil:
			res.Failed++
			slog.ErrorContext(ctx, "backfill ensure run failed", "session_id", id, "error", err)
		case outcome == RunCreated:
			res.Created++
		default:
			res.Skipped++
		}
	}
	span.SetAttributes(attribute.Int("scanned", res.Scanned), attribute.Int("created", res.Created))
	return res, nil
}
