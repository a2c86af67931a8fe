package services

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// QuestionInput describes a question and its choices for the admin API and
// the seed command.
type QuestionInput struct {
	ID        string        `json:"id,omitempty"`
	Dimension string        `json:"dimension" validate:"required,max=64"`
	Prompt    string        `json:"prompt" validate:"required,max=1000"`
	SortOrder int           `json:"sort_order"`
	Inactive  bool          `json:"inactive,omitempty"`
	Choices   []ChoiceInput `json:"choices" validate:"required,min=2,max=20,dive"`
}

type ChoiceInput struct {
	Label     string `json:"label" validate:"required,max=200"`
	Value     int    `json:"value"`
	SortOrder int    `json:"sort_order"`
}

// QuestionWithChoices is the admin listing shape.
type QuestionWithChoices struct {
	*Question
	Choices []*Choice `json:"choices"`
}

type QuestionService struct {
	store       QuestionStore
	idGenerator func() string
}

func NewQuestionService(store QuestionStore) *QuestionService {
	return &QuestionService{store: store, idGenerator: func() string { return "q" + shortID(10) }}
}

// Create adds a question to the bank. New questions are active unless
// Inactive is set; activating one raises the completeness denominator for
// every open participant.
func (s *QuestionService) Create(ctx context.Context, in QuestionInput) (*QuestionWithChoices, error) {
	in.Dimension = strings.TrimSpace(in.Dimension)
	in.Prompt = strings.TrimSpace(in.Prompt)
	if in.Dimension == "" || in.Prompt == "" {
		return nil, NewInvalidError("dimension and prompt required")
	}
	if len(in.Choices) < 2 {
		return nil, NewInvalidError("at least two choices required")
	}
	seen := map[int]bool{}
	for _, c := range in.Choices {
		if seen[c.Value] {
			return nil, NewInvalidError("choice values must be unique")
		}
		seen[c.Value] = true
	}
	q := &Question{
		ID:        strings.TrimSpace(in.ID),
		Dimension: in.Dimension,
		Prompt:    in.Prompt,
		SortOrder: in.SortOrder,
		IsActive:  !in.Inactive,
	}
	if q.ID == "" {
		q.ID = s.idGenerator()
	}
	choices := make([]*Choice, 0, len(in.Choices))
	for i, c := range in.Choices {
		order := c.SortOrder
		if order == 0 {
			order = i + 1
		}
		choices = append(choices, &Choice{ID: q.ID + "-" + shortID(6), QuestionID: q.ID, Label: strings.TrimSpace(c.Label), Value: c.Value, SortOrder: order})
	}
	if err := s.store.CreateQuestion(ctx, q, choices); err != nil {
		return nil, NewPersistenceError("create question", err)
	}
	return &QuestionWithChoices{Question: q, Choices: choices}, nil
}

// List returns the whole bank, active or not, ordered by sort_order.
func (s *QuestionService) List(ctx context.Context) ([]*QuestionWithChoices, error) {
	qs, err := s.store.ListQuestions(ctx)
	if err != nil {
		return nil, NewPersistenceError("list questions", err)
	}
	ids := make([]string, 0, len(qs))
	for _, q := range qs {
		ids = append(ids, q.ID)
	}
	cs, err := s.store.ListChoices(ctx, ids)
	if err != nil {
		return nil, NewPersistenceError("list choices", err)
	}
	byQuestion := map[string][]*Choice{}
	for _, c := range cs {
		byQuestion[c.QuestionID] = append(byQuestion[c.QuestionID], c)
	}
	out := make([]*QuestionWithChoices, 0, len(qs))
	for _, q := range qs {
		choices := byQuestion[q.ID]
		sort.SliceStable(choices, func(i, j int) bool { return choices[i].SortOrder < choices[j].SortOrder })
		out = append(out, &QuestionWithChoices{Question: q, Choices: nonNil(choices)})
	}
	return out, nil
}

// SetActive toggles a question in or out of the active set.
func (s *QuestionService) SetActive(ctx context.Context, id string, active bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return NewInvalidError("question id required")
	}
	err := s.store.SetQuestionActive(ctx, id, active)
	if errors.Is(err, ErrNotFound) {
		return NewNotFoundError("question not found")
	}
	if err != nil {
		return NewPersistenceError("update question", err)
	}
	return nil
}

// Seed creates every question in bank, skipping ids that already exist.
func (s *QuestionService) Seed(ctx context.Context, bank []QuestionInput) (int, error) {
	existing, err := s.store.ListQuestions(ctx)
	if err != nil {
		return 0, NewPersistenceError("list questions", err)
	}
	have := map[string]bool{}
	for _, q := range existing {
		have[q.ID] = true
	}
	created := 0
	for _, in := range bank {
		if in.ID != "" && have[in.ID] {
			continue
		}
		if _, err := s.Create(ctx, in); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
