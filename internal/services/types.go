package services

import "time"

// SessionStatus is the aggregate completion state of a session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusWaiting    SessionStatus = "waiting"
	StatusReady      SessionStatus = "ready"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusInProgress, StatusWaiting, StatusReady:
		return true
	}
	return false
}

// Role identifies which side of a session a participant answers for.
type Role string

const (
	RoleA Role = "A"
	RoleB Role = "B"
)

// Roles lists the roles issued for every session, in issue order.
var Roles = []Role{RoleA, RoleB}

type Session struct {
	ID        string        `json:"id"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Participant is one side of a session. Token is the participant's only credential.
type Participant struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Role        Role       `json:"role"`
	Token       string     `json:"-"`
	DisplayName *string    `json:"display_name"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Completed reports whether the participant has passed the completion gate.
func (p *Participant) Completed() bool {
	return p != nil && p.CompletedAt != nil
}

type Question struct {
	ID        string `json:"id"`
	Dimension string `json:"dimension"`
	Prompt    string `json:"prompt"`
	SortOrder int    `json:"sort_order"`
	IsActive  bool   `json:"is_active"`
}

type Choice struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Label      string `json:"label"`
	Value      int    `json:"value"`
	SortOrder  int    `json:"sort_order"`
}

// Response is the latest answer a participant gave to one question.
type Response struct {
	ParticipantID string    `json:"participant_id"`
	QuestionID    string    `json:"question_id"`
	SessionID     string    `json:"session_id"`
	ChoiceValue   int       `json:"choice_value"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type FreeText struct {
	ParticipantID string    `json:"participant_id"`
	SessionID     string    `json:"session_id"`
	Text          string    `json:"text"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Answer is one (question, choice value) pair submitted by a participant.
type Answer struct {
	QuestionID  string
	ChoiceValue int
}

// ProgressWrite is the unit of work persisted by a single save-progress call.
type ProgressWrite struct {
	ParticipantID string
	SessionID     string
	Answers       []Answer
	FreeText      *string
	At            time.Time
}

// CompletionWrite closes a participant, optionally storing its final free text.
type CompletionWrite struct {
	ParticipantID string
	SessionID     string
	FreeText      *string
	At            time.Time
}

// ReportRun marks a ready session as handed to the report generator.
type ReportRun struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}
