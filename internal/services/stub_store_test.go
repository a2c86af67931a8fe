package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var errStub = errors.New("stub failure")

// stubStore is a minimal in-package Store. The fail* fields inject errors
// into single operations.
type stubStore struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	participants map[string]*Participant
	questions    map[string]*Question
	choices      map[string][]*Choice
	responses    map[string]map[string]*Response
	freeTexts    map[string]*FreeText
	runs         map[string]*ReportRun

	failCreate       bool
	failSaveProgress bool
	failFreeText     bool
	failMark         bool
	failStatus       bool
	failCreateRun    bool
	// beforeMark runs inside MarkCompleted before the conditional update.
	beforeMark   func(participantID string)
	statusWrites []SessionStatus
	// listFailures makes the next n ListParticipants calls fail.
	listFailures int
}

func newStubStore() *stubStore {
	return &stubStore{
		sessions:     map[string]*Session{},
		participants: map[string]*Participant{},
		questions:    map[string]*Question{},
		choices:      map[string][]*Choice{},
		responses:    map[string]map[string]*Response{},
		freeTexts:    map[string]*FreeText{},
		runs:         map[string]*ReportRun{},
	}
}

// addQuestions adds n active questions q1..qn with choice values 1..3.
func (s *stubStore) addQuestions(n int) {
	for i := 1; i <= n; i++ {
		id := "q" + string(rune('0'+i))
		s.questions[id] = &Question{ID: id, Dimension: "d", Prompt: "p", SortOrder: i, IsActive: true}
		for v := 1; v <= 3; v++ {
			s.choices[id] = append(s.choices[id], &Choice{ID: id + "-c", QuestionID: id, Label: "l", Value: v, SortOrder: v})
		}
	}
}

func (s *stubStore) CreateSession(_ context.Context, sess *Session, ps []*Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return errStub
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	for _, p := range ps {
		pc := *p
		s.participants[p.ID] = &pc
	}
	return nil
}

func (s *stubStore) GetSession(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *stubStore) GetParticipantByToken(_ context.Context, token string) (*Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.Token == token {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubStore) ListParticipants(_ context.Context, sessionID string) ([]*Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listFailures > 0 {
		s.listFailures--
		return nil, errStub
	}
	var out []*Participant
	for _, p := range s.participants {
		if p.SessionID == sessionID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out, nil
}

func (s *stubStore) listQuestions(activeOnly bool) []*Question {
	var out []*Question
	for _, q := range s.questions {
		if activeOnly && !q.IsActive {
			continue
		}
		cp := *q
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

func (s *stubStore) ListActiveQuestions(context.Context) ([]*Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listQuestions(true), nil
}

func (s *stubStore) ListQuestions(context.Context) ([]*Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listQuestions(false), nil
}

func (s *stubStore) ListChoices(_ context.Context, ids []string) ([]*Choice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Choice
	for _, id := range ids {
		out = append(out, s.choices[id]...)
	}
	return out, nil
}

func (s *stubStore) CreateQuestion(_ context.Context, q *Question, cs []*Choice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.ID]; ok {
		return errors.New("duplicate question")
	}
	cp := *q
	s.questions[q.ID] = &cp
	s.choices[q.ID] = append([]*Choice(nil), cs...)
	return nil
}

func (s *stubStore) SetQuestionActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return ErrNotFound
	}
	q.IsActive = active
	return nil
}

func (s *stubStore) SaveProgress(_ context.Context, w ProgressWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaveProgress {
		return errStub
	}
	if p := s.participants[w.ParticipantID]; p != nil && p.CompletedAt != nil {
		return ErrParticipantCompleted
	}
	for _, a := range w.Answers {
		if _, ok := s.questions[a.QuestionID]; !ok {
			return errors.New("unknown question")
		}
	}
	m := s.responses[w.ParticipantID]
	if m == nil {
		m = map[string]*Response{}
		s.responses[w.ParticipantID] = m
	}
	for _, a := range w.Answers {
		m[a.QuestionID] = &Response{ParticipantID: w.ParticipantID, QuestionID: a.QuestionID, SessionID: w.SessionID, ChoiceValue: a.ChoiceValue, UpdatedAt: w.At}
	}
	if w.FreeText != nil {
		s.freeTexts[w.ParticipantID] = &FreeText{ParticipantID: w.ParticipantID, SessionID: w.SessionID, Text: *w.FreeText, UpdatedAt: w.At}
	}
	return nil
}

func (s *stubStore) ListResponses(_ context.Context, participantID string) ([]*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Response
	for _, r := range s.responses[participantID] {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (s *stubStore) ListSessionResponses(_ context.Context, sessionID string) ([]*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Response
	for _, m := range s.responses {
		for _, r := range m {
			if r.SessionID == sessionID {
				cp := *r
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (s *stubStore) GetFreeText(_ context.Context, participantID string) (*FreeText, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ft, ok := s.freeTexts[participantID]
	if !ok {
		return nil, nil
	}
	cp := *ft
	return &cp, nil
}

func (s *stubStore) CountActiveQuestions(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listQuestions(true)), nil
}

func (s *stubStore) CountResponses(_ context.Context, participantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses[participantID]), nil
}

func (s *stubStore) MarkCompleted(_ context.Context, w CompletionWrite) (bool, error) {
	if s.beforeMark != nil {
		s.beforeMark(w.ParticipantID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMark {
		return false, errStub
	}
	p, ok := s.participants[w.ParticipantID]
	if !ok || p.CompletedAt != nil {
		return false, nil
	}
	if w.FreeText != nil {
		if s.failFreeText {
			return false, fmt.Errorf("%w: %w", ErrFreeTextWrite, errStub)
		}
		s.freeTexts[w.ParticipantID] = &FreeText{ParticipantID: w.ParticipantID, SessionID: w.SessionID, Text: *w.FreeText, UpdatedAt: w.At}
	}
	t := w.At
	p.CompletedAt = &t
	return true, nil
}

func (s *stubStore) UpdateSessionStatus(_ context.Context, sessionID string, status SessionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStatus {
		return errStub
	}
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.statusWrites = append(s.statusWrites, status)
	if sess.Status == StatusReady && status != StatusReady {
		return nil
	}
	sess.Status = status
	sess.UpdatedAt = at
	return nil
}

func (s *stubStore) CreateReportRun(_ context.Context, run *ReportRun) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateRun {
		return false, errStub
	}
	if _, ok := s.runs[run.SessionID]; ok {
		return false, nil
	}
	cp := *run
	s.runs[run.SessionID] = &cp
	return true, nil
}

func (s *stubStore) GetReportRun(_ context.Context, sessionID string) (*ReportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (s *stubStore) ListCompletedSessionsWithoutRun(_ context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySession := map[string][]*Participant{}
	for _, p := range s.participants {
		bySession[p.SessionID] = append(bySession[p.SessionID], p)
	}
	var out []string
	for id, ps := range bySession {
		if _, ok := s.runs[id]; ok {
			continue
		}
		if AggregateStatus(ps) == StatusReady {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Store = (*stubStore)(nil)

func newTestSession(store *stubStore) *CreatedSession {
	out, err := NewSessionService(store).Create(context.Background())
	if err != nil {
		panic(err)
	}
	return out
}

func allAnswers(n int) []Answer {
	out := make([]Answer, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Answer{QuestionID: "q" + string(rune('0'+i)), ChoiceValue: 2})
	}
	return out
}
