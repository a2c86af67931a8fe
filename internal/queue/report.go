// Package queue moves report-run creation onto an asynq worker when Redis is
// configured.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/soaringjerry/dyad/internal/services"
)

const (
	TypeEnsureReport = "report:ensure"
	QueueReports     = "reports"
)

type ensureReportPayload struct {
	SessionID string `json:"session_id"`
}

// NewEnsureReportTask builds the task for sessionID. The task id is derived
// from the session so repeated notifications collapse while one is pending.
func NewEnsureReportTask(sessionID string) (*asynq.Task, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("queue: session id is required")
	}
	payload, err := json.Marshal(ensureReportPayload{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEnsureReport, payload,
		asynq.TaskID("report:"+sessionID),
		asynq.Queue(QueueReports),
		asynq.MaxRetry(10),
		asynq.Retention(24*time.Hour),
	), nil
}

// Enqueuer is the part of *asynq.Client used by ReportNotifier.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ReportNotifier implements services.ReadyNotifier by enqueueing a task.
type ReportNotifier struct {
	client Enqueuer
}

var _ services.ReadyNotifier = (*ReportNotifier)(nil)

func NewReportNotifier(client Enqueuer) *ReportNotifier {
	return &ReportNotifier{client: client}
}

func (n *ReportNotifier) SessionReady(ctx context.Context, sessionID string) error {
	task, err := NewEnsureReportTask(sessionID)
	if err != nil {
		return err
	}
	info, err := n.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeEnsureReport, err)
	}
	slog.InfoContext(ctx, "report task enqueued", "session_id", sessionID, "task_id", info.ID)
	return nil
}

// ReportEnsurer is satisfied by *services.ReportService.
type ReportEnsurer interface {
	EnsureRun(ctx context.Context, sessionID string) (services.RunOutcome, error)
}

// NewEnsureReportHandler handles TypeEnsureReport tasks. Malformed payloads
// and unknown sessions are not retried.
func NewEnsureReportHandler(ensurer ReportEnsurer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p ensureReportPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil || p.SessionID == "" {
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		outcome, err := ensurer.EnsureRun(ctx, p.SessionID)
		if services.IsCode(err, services.ErrorNotFound) {
			return fmt.Errorf("session %s: %w", p.SessionID, asynq.SkipRetry)
		}
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "report task handled", "session_id", p.SessionID, "outcome", outcome)
		return nil
	}
}
