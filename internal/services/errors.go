package services

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalid               ErrorCode = "invalid_request"
	ErrorMissingToken          ErrorCode = "missing_token"
	ErrorInvalidToken          ErrorCode = "invalid_token"
	ErrorAlreadyCompleted      ErrorCode = "already_completed"
	ErrorIncompleteAnswers     ErrorCode = "incomplete_answers"
	ErrorConcurrentCompletion  ErrorCode = "concurrent_completion"
	ErrorPersistence           ErrorCode = "persistence_failure"
	ErrorFreeTextPersistence   ErrorCode = "free_text_persistence_failure"
	ErrorCompletionPersistence ErrorCode = "completion_persistence_failure"
	ErrorNotFound              ErrorCode = "not_found"
	ErrorUnauthorized          ErrorCode = "unauthorized"
	ErrorMethodNotAllowed      ErrorCode = "method_not_allowed"
	ErrorTooManyRequests       ErrorCode = "too_many_requests"
)

// ServiceError is the client-facing failure of a service call. Err carries the
// underlying cause for logs and is never rendered to clients.
type ServiceError struct {
	Code    ErrorCode
	Message string
	Err     error

	// Set only for ErrorIncompleteAnswers.
	Expected int
	Received int
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

func NewInvalidError(msg string) error {
	return &ServiceError{Code: ErrorInvalid, Message: msg}
}

func NewMissingTokenError() error {
	return &ServiceError{Code: ErrorMissingToken, Message: "token required"}
}

func NewInvalidTokenError() error {
	return &ServiceError{Code: ErrorInvalidToken, Message: "invalid token"}
}

func NewAlreadyCompletedError() error {
	return &ServiceError{Code: ErrorAlreadyCompleted, Message: "already completed"}
}

func NewConcurrentCompletionError() error {
	return &ServiceError{Code: ErrorConcurrentCompletion, Message: "completed concurrently"}
}

func NewNotFoundError(msg string) error {
	return &ServiceError{Code: ErrorNotFound, Message: msg}
}

func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func NewIncompleteAnswersError(expected, received int) error {
	return &ServiceError{
		Code:     ErrorIncompleteAnswers,
		Message:  fmt.Sprintf("answered %d of %d questions", received, expected),
		Expected: expected,
		Received: received,
	}
}

func NewPersistenceError(op string, err error) error {
	return &ServiceError{Code: ErrorPersistence, Message: op + " failed", Err: err}
}

func NewFreeTextPersistenceError(err error) error {
	return &ServiceError{Code: ErrorFreeTextPersistence, Message: "save free text failed", Err: err}
}

func NewCompletionPersistenceError(err error) error {
	return &ServiceError{Code: ErrorCompletionPersistence, Message: "mark completion failed", Err: err}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsCode reports whether err is a ServiceError with the given code.
func IsCode(err error, code ErrorCode) bool {
	se, ok := AsServiceError(err)
	return ok && se.Code == code
}

var (
	// ErrParticipantCompleted is returned by stores when a write targets a
	// participant whose completed_at is already set.
	ErrParticipantCompleted = errors.New("participant already completed")
	// ErrFreeTextWrite wraps a failed free text write inside MarkCompleted.
	ErrFreeTextWrite = errors.New("free text write failed")
	// ErrNotFound is returned by stores for updates that matched no row.
	ErrNotFound = errors.New("not found")
)
