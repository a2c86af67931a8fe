package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soaringjerry/dyad/internal/services"
)

type responseKey struct {
	participantID string
	questionID    string
}

// MemoryStore is a process-local services.Store. It enforces the same
// uniqueness, reference and conditional-update rules as the SQL stores.
type MemoryStore struct {
	mu           sync.RWMutex
	sessions     map[string]*services.Session
	participants map[string]*services.Participant
	byToken      map[string]string
	questions    map[string]*services.Question
	choices      map[string][]*services.Choice
	responses    map[responseKey]*services.Response
	freeTexts    map[string]*services.FreeText
	reportRuns   map[string]*services.ReportRun
}

var _ services.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:     map[string]*services.Session{},
		participants: map[string]*services.Participant{},
		byToken:      map[string]string{},
		questions:    map[string]*services.Question{},
		choices:      map[string][]*services.Choice{},
		responses:    map[responseKey]*services.Response{},
		freeTexts:    map[string]*services.FreeText{},
		reportRuns:   map[string]*services.ReportRun{},
	}
}

func (m *MemoryStore) Close() error { return nil }

func copyParticipant(p *services.Participant) *services.Participant {
	cp := *p
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func (m *MemoryStore) CreateSession(_ context.Context, sess *services.Session, ps []*services.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sess.ID]; ok {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	roles := map[services.Role]bool{}
	for _, p := range ps {
		if _, ok := m.byToken[p.Token]; ok {
			return fmt.Errorf("participant token already exists")
		}
		if _, ok := m.participants[p.ID]; ok {
			return fmt.Errorf("participant %s already exists", p.ID)
		}
		if roles[p.Role] {
			return fmt.Errorf("duplicate role %s", p.Role)
		}
		roles[p.Role] = true
	}
	cs := *sess
	m.sessions[sess.ID] = &cs
	for _, p := range ps {
		cp := copyParticipant(p)
		cp.SessionID = sess.ID
		m.participants[cp.ID] = cp
		m.byToken[cp.Token] = cp.ID
	}
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*services.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cs := *s
	return &cs, nil
}

func (m *MemoryStore) GetParticipantByToken(_ context.Context, token string) (*services.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byToken[token]
	if !ok {
		return nil, nil
	}
	return copyParticipant(m.participants[id]), nil
}

func (m *MemoryStore) ListParticipants(_ context.Context, sessionID string) ([]*services.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.participantsOf(sessionID), nil
}

func (m *MemoryStore) participantsOf(sessionID string) []*services.Participant {
	var out []*services.Participant
	for _, p := range m.participants {
		if p.SessionID == sessionID {
			out = append(out, copyParticipant(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

func (m *MemoryStore) listQuestions(activeOnly bool) []*services.Question {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*services.Question
	for _, q := range m.questions {
		if activeOnly && !q.IsActive {
			continue
		}
		cq := *q
		out = append(out, &cq)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemoryStore) ListActiveQuestions(context.Context) ([]*services.Question, error) {
	return m.listQuestions(true), nil
}

func (m *MemoryStore) ListQuestions(context.Context) ([]*services.Question, error) {
	return m.listQuestions(false), nil
}

func (m *MemoryStore) ListChoices(_ context.Context, questionIDs []string) ([]*services.Choice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := append([]string(nil), questionIDs...)
	sort.Strings(ids)
	var out []*services.Choice
	for _, id := range ids {
		for _, c := range m.choices[id] {
			cc := *c
			out = append(out, &cc)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateQuestion(_ context.Context, q *services.Question, choices []*services.Choice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[q.ID]; ok {
		return fmt.Errorf("question %s already exists", q.ID)
	}
	values := map[int]bool{}
	list := make([]*services.Choice, 0, len(choices))
	for _, c := range choices {
		if values[c.Value] {
			return fmt.Errorf("duplicate choice value %d", c.Value)
		}
		values[c.Value] = true
		cc := *c
		cc.QuestionID = q.ID
		list = append(list, &cc)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].SortOrder != list[j].SortOrder {
			return list[i].SortOrder < list[j].SortOrder
		}
		return list[i].Value < list[j].Value
	})
	cq := *q
	m.questions[q.ID] = &cq
	m.choices[q.ID] = list
	return nil
}

func (m *MemoryStore) SetQuestionActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return services.ErrNotFound
	}
	q.IsActive = active
	return nil
}

func (m *MemoryStore) SaveProgress(_ context.Context, w services.ProgressWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[w.ParticipantID]
	if !ok {
		return services.ErrNotFound
	}
	if p.CompletedAt != nil {
		return services.ErrParticipantCompleted
	}
	// Validate the whole batch before applying any of it.
	for _, a := range w.Answers {
		if _, ok := m.questions[a.QuestionID]; !ok {
			return fmt.Errorf("unknown question %s", a.QuestionID)
		}
	}
	for _, a := range w.Answers {
		m.responses[responseKey{w.ParticipantID, a.QuestionID}] = &services.Response{
			ParticipantID: w.ParticipantID,
			QuestionID:    a.QuestionID,
			SessionID:     w.SessionID,
			ChoiceValue:   a.ChoiceValue,
			UpdatedAt:     w.At,
		}
	}
	if w.FreeText != nil {
		m.freeTexts[w.ParticipantID] = &services.FreeText{
			ParticipantID: w.ParticipantID,
			SessionID:     w.SessionID,
			Text:          *w.FreeText,
			UpdatedAt:     w.At,
		}
	}
	return nil
}

func (m *MemoryStore) filterResponses(keep func(*services.Response) bool) []*services.Response {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*services.Response
	for _, r := range m.responses {
		if keep(r) {
			cr := *r
			out = append(out, &cr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ParticipantID != out[j].ParticipantID {
			return out[i].ParticipantID < out[j].ParticipantID
		}
		return out[i].QuestionID < out[j].QuestionID
	})
	return out
}

func (m *MemoryStore) ListResponses(_ context.Context, participantID string) ([]*services.Response, error) {
	return m.filterResponses(func(r *services.Response) bool { return r.ParticipantID == participantID }), nil
}

func (m *MemoryStore) ListSessionResponses(_ context.Context, sessionID string) ([]*services.Response, error) {
	return m.filterResponses(func(r *services.Response) bool { return r.SessionID == sessionID }), nil
}

func (m *MemoryStore) GetFreeText(_ context.Context, participantID string) (*services.FreeText, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ft, ok := m.freeTexts[participantID]
	if !ok {
		return nil, nil
	}
	cp := *ft
	return &cp, nil
}

func (m *MemoryStore) CountActiveQuestions(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, q := range m.questions {
		if q.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountResponses(_ context.Context, participantID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for k := range m.responses {
		if k.participantID == participantID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) MarkCompleted(_ context.Context, w services.CompletionWrite) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[w.ParticipantID]
	if !ok || p.CompletedAt != nil {
		return false, nil
	}
	if w.FreeText != nil {
		m.freeTexts[w.ParticipantID] = &services.FreeText{
			ParticipantID: w.ParticipantID,
			SessionID:     p.SessionID,
			Text:          *w.FreeText,
			UpdatedAt:     w.At,
		}
	}
	t := w.At
	p.CompletedAt = &t
	return true, nil
}

func (m *MemoryStore) UpdateSessionStatus(_ context.Context, sessionID string, status services.SessionStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	if s.Status == services.StatusReady && status != services.StatusReady {
		return nil
	}
	s.Status = status
	s.UpdatedAt = at
	return nil
}

func (m *MemoryStore) CreateReportRun(_ context.Context, run *services.ReportRun) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[run.SessionID]; !ok {
		return false, fmt.Errorf("unknown session %s", run.SessionID)
	}
	if _, ok := m.reportRuns[run.SessionID]; ok {
		return false, nil
	}
	cp := *run
	m.reportRuns[run.SessionID] = &cp
	return true, nil
}

func (m *MemoryStore) GetReportRun(_ context.Context, sessionID string) (*services.ReportRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.reportRuns[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (m *MemoryStore) ListCompletedSessionsWithoutRun(_ context.Context, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sessions []*services.Session
	for id, s := range m.sessions {
		if _, ok := m.reportRuns[id]; ok {
			continue
		}
		ps := m.participantsOf(id)
		if len(ps) == 0 || services.AggregateStatus(ps) != services.StatusReady {
			continue
		}
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].UpdatedAt.Before(sessions[j].UpdatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
	var ids []string
	for _, s := range sessions {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, s.ID)
	}
	return ids, nil
}
