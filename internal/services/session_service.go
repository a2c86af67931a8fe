package services

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/soaringjerry/dyad/internal/metrics"
)

var tracer = otel.Tracer("github.com/soaringjerry/dyad/internal/services")

// SessionReader is the store surface needed to create and render sessions.
type SessionReader interface {
	SessionStore
	QuestionStore
	ProgressStore
	CompletionStore
}

type SessionService struct {
	store       SessionReader
	aggregator  *StatusAggregator
	now         func() time.Time
	idGenerator func() string
	entropy     io.Reader
}

func NewSessionService(store SessionReader) *SessionService {
	return &SessionService{
		store:       store,
		aggregator:  NewStatusAggregator(store),
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: newID,
		entropy:     tokenEntropy,
	}
}

// CreatedSession is returned once at creation; it is the only time tokens leave the service.
type CreatedSession struct {
	SessionID string
	Status    SessionStatus
	TokenA    string
	TokenB    string
}

// Create opens a new in-progress session and issues one token per role.
func (s *SessionService) Create(ctx context.Context) (*CreatedSession, error) {
	ctx, span := tracer.Start(ctx, "SessionService.Create")
	defer span.End()

	now := s.now()
	sess := &Session{ID: s.idGenerator(), Status: StatusInProgress, CreatedAt: now, UpdatedAt: now}
	participants, err := IssueTokens(s.entropy, sess.ID, s.idGenerator)
	if err != nil {
		return nil, NewPersistenceError("issue tokens", err)
	}
	if err := s.store.CreateSession(ctx, sess, participants); err != nil {
		return nil, NewPersistenceError("create session", err)
	}
	span.SetAttributes(attribute.String("session_id", sess.ID))
	metrics.SessionsCreated.Inc()
	slog.InfoContext(ctx, "session created", "session_id", sess.ID)

	out := &CreatedSession{SessionID: sess.ID, Status: sess.Status}
	for _, p := range participants {
		switch p.Role {
		case RoleA:
			out.TokenA = p.Token
		case RoleB:
			out.TokenB = p.Token
		}
	}
	return out, nil
}

// SessionView is everything a participant needs to render and resume the questionnaire.
type SessionView struct {
	Session     *Session     `json:"session"`
	Participant *Participant `json:"participant"`
	Questions   []*Question  `json:"questions"`
	Choices     []*Choice    `json:"choices"`
	Responses   []*Response  `json:"responses"`
	FreeText    *FreeText    `json:"free_text"`
}

// Get resolves token and loads the participant's view of its session.
func (s *SessionService) Get(ctx context.Context, token string) (*SessionView, error) {
	ctx, span := tracer.Start(ctx, "SessionService.Get")
	defer span.End()

	p, err := resolveParticipant(ctx, s.store, token)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("session_id", p.SessionID))
	sess, err := s.store.GetSession(ctx, p.SessionID)
	if err != nil {
		return nil, NewPersistenceError("load session", err)
	}
	if sess == nil {
		return nil, NewInvalidTokenError()
	}
	if sess, err = s.aggregator.Reconcile(ctx, sess); err != nil {
		slog.WarnContext(ctx, "session status reconcile failed", "session_id", sess.ID, "error", err)
	}
	questions, err := s.store.ListActiveQuestions(ctx)
	if err != nil {
		return nil, NewPersistenceError("load questions", err)
	}
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	choices, err := s.store.ListChoices(ctx, ids)
	if err != nil {
		return nil, NewPersistenceError("load choices", err)
	}
	responses, err := s.store.ListResponses(ctx, p.ID)
	if err != nil {
		return nil, NewPersistenceError("load responses", err)
	}
	ft, err := s.store.GetFreeText(ctx, p.ID)
	if err != nil {
		return nil, NewPersistenceError("load free text", err)
	}
	return &SessionView{
		Session:     sess,
		Participant: p,
		Questions:   nonNil(questions),
		Choices:     nonNil(choices),
		Responses:   nonNil(responses),
		FreeText:    ft,
	}, nil
}

// resolveParticipant maps a bearer token to its participant. Malformed tokens
// are rejected without a store lookup.
func resolveParticipant(ctx context.Context, store interface {
	GetParticipantByToken(ctx context.Context, token string) (*Participant, error)
}, token string) (*Participant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, NewMissingTokenError()
	}
	if !LooksLikeToken(token) {
		return nil, NewInvalidTokenError()
	}
	p, err := store.GetParticipantByToken(ctx, token)
	if err != nil {
		return nil, NewPersistenceError("resolve token", err)
	}
	if p == nil {
		return nil, NewInvalidTokenError()
	}
	return p, nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
