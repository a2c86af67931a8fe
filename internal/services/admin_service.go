package services

import (
	"context"
	"strings"
	"time"
)

type adminBackend interface {
	SessionStore
	QuestionStore
	ProgressStore
	ReportStore
}

// AdminService backs the operator views of sessions. It never exposes tokens.
type AdminService struct {
	store adminBackend
}

func NewAdminService(store adminBackend) *AdminService {
	return &AdminService{store: store}
}

type ParticipantSummary struct {
	Role          Role       `json:"role"`
	DisplayName   *string    `json:"display_name"`
	CompletedAt   *time.Time `json:"completed_at"`
	AnsweredCount int        `json:"answered_count"`
}

type SessionDetail struct {
	Session      *Session              `json:"session"`
	Participants []*ParticipantSummary `json:"participants"`
	ReportRun    *ReportRun            `json:"report_run"`
}

func (s *AdminService) SessionDetail(ctx context.Context, sessionID string) (*SessionDetail, error) {
	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ps, err := s.store.ListParticipants(ctx, sess.ID)
	if err != nil {
		return nil, NewPersistenceError("list participants", err)
	}
	out := &SessionDetail{Session: sess, Participants: make([]*ParticipantSummary, 0, len(ps))}
	for _, p := range ps {
		rs, err := s.store.ListResponses(ctx, p.ID)
		if err != nil {
			return nil, NewPersistenceError("list responses", err)
		}
		out.Participants = append(out.Participants, &ParticipantSummary{
			Role:          p.Role,
			DisplayName:   p.DisplayName,
			CompletedAt:   p.CompletedAt,
			AnsweredCount: len(rs),
		})
	}
	run, err := s.store.GetReportRun(ctx, sess.ID)
	if err != nil {
		return nil, NewPersistenceError("load report run", err)
	}
	out.ReportRun = run
	return out, nil
}

// Export renders the session's responses as CSV in "long" or "wide" format.
func (s *AdminService) Export(ctx context.Context, sessionID, format string) ([]byte, error) {
	if format == "" {
		format = "long"
	}
	if format != "long" && format != "wide" {
		return nil, NewInvalidError("unsupported format")
	}
	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ps, err := s.store.ListParticipants(ctx, sess.ID)
	if err != nil {
		return nil, NewPersistenceError("list participants", err)
	}
	roles := make(map[string]Role, len(ps))
	for _, p := range ps {
		roles[p.ID] = p.Role
	}
	rs, err := s.store.ListSessionResponses(ctx, sess.ID)
	if err != nil {
		return nil, NewPersistenceError("list responses", err)
	}

	if format == "wide" {
		mp := map[Role]map[string]int{}
		for _, p := range ps {
			mp[p.Role] = map[string]int{}
		}
		for _, r := range rs {
			mp[roles[r.ParticipantID]][r.QuestionID] = r.ChoiceValue
		}
		return ExportWideCSV(mp)
	}

	qs, err := s.store.ListQuestions(ctx)
	if err != nil {
		return nil, NewPersistenceError("list questions", err)
	}
	dims := make(map[string]string, len(qs))
	for _, q := range qs {
		dims[q.ID] = q.Dimension
	}
	rows := make([]LongRow, 0, len(rs))
	for _, r := range rs {
		rows = append(rows, LongRow{
			SessionID:   sess.ID,
			Role:        roles[r.ParticipantID],
			QuestionID:  r.QuestionID,
			Dimension:   dims[r.QuestionID],
			ChoiceValue: r.ChoiceValue,
			UpdatedAt:   r.UpdatedAt,
		})
	}
	return ExportLongCSV(rows)
}

func (s *AdminService) loadSession(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, NewInvalidError("session id required")
	}
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, NewPersistenceError("load session", err)
	}
	if sess == nil {
		return nil, NewNotFoundError("session not found")
	}
	return sess, nil
}
