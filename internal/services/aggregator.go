package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/soaringjerry/dyad/internal/metrics"
)

// AggregateStatus derives a session status from its participants: ready when
// every participant completed, waiting when at least one did.
func AggregateStatus(ps []*Participant) SessionStatus {
	done := 0
	for _, p := range ps {
		if p.Completed() {
			done++
		}
	}
	switch {
	case len(ps) > 0 && done == len(ps):
		return StatusReady
	case done > 0:
		return StatusWaiting
	default:
		return StatusInProgress
	}
}

// StatusAggregator is the only writer of Session.Status after creation.
type StatusAggregator struct {
	store interface {
		SessionStore
		CompletionStore
	}
	now func() time.Time
}

func NewStatusAggregator(store interface {
	SessionStore
	CompletionStore
}) *StatusAggregator {
	return &StatusAggregator{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Recompute reloads every participant of sessionID and writes the derived
// status. It must be called after a participant completion has committed.
// A failed write returns the computed status together with the error.
func (a *StatusAggregator) Recompute(ctx context.Context, sessionID string) (SessionStatus, error) {
	ps, err := a.store.ListParticipants(ctx, sessionID)
	if err != nil {
		metrics.SecondaryFailures.WithLabelValues("status_read").Inc()
		return "", fmt.Errorf("list participants: %w", err)
	}
	status := AggregateStatus(ps)
	if status == StatusInProgress {
		// Only reachable when called without a committed completion.
		status = StatusWaiting
	}
	if err := a.store.UpdateSessionStatus(ctx, sessionID, status, a.now()); err != nil {
		metrics.SecondaryFailures.WithLabelValues("status_write").Inc()
		return status, fmt.Errorf("update session status: %w", err)
	}
	metrics.SessionStatus.WithLabelValues(string(status)).Inc()
	return status, nil
}

// Reconcile repairs a session whose stored status lags its participants,
// which happens when a best-effort status write failed. The returned session
// carries the derived status even if the repair write fails.
func (a *StatusAggregator) Reconcile(ctx context.Context, sess *Session) (*Session, error) {
	ps, err := a.store.ListParticipants(ctx, sess.ID)
	if err != nil {
		return sess, fmt.Errorf("list participants: %w", err)
	}
	derived := AggregateStatus(ps)
	if derived == StatusInProgress || derived == sess.Status || sess.Status == StatusReady {
		return sess, nil
	}
	out := *sess
	out.Status = derived
	out.UpdatedAt = a.now()
	if err := a.store.UpdateSessionStatus(ctx, sess.ID, derived, out.UpdatedAt); err != nil {
		metrics.SecondaryFailures.WithLabelValues("status_repair").Inc()
		slog.WarnContext(ctx, "session status repair failed", "session_id", sess.ID, "error", err)
		return &out, nil
	}
	slog.InfoContext(ctx, "session status repaired", "session_id", sess.ID, "status", derived)
	return &out, nil
}
