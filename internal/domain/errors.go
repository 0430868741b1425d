package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the root of every user-correctable input failure.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition is returned when an action is not allowed in the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNoCategoriesAvailable is returned when a random pick has nothing left to choose from.
	ErrNoCategoriesAvailable = errors.New("no categories available")
	// ErrCategoryUsed is returned when a category was already played in this session.
	ErrCategoryUsed = errors.New("category already used")
	// ErrRoundNotFound is returned when an outcome is recorded before any round began.
	ErrRoundNotFound = errors.New("round not found")
	// ErrSessionNotFound is returned when a tab has no live session.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrFetch indicates the trivia source could not be reached or rejected the request.
	ErrFetch = errors.New("trivia fetch failed")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// TransitionError reports which action was refused and from which status.
type TransitionError struct {
	Action string
	From   string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition: %s not allowed in %s", e.Action, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// FetchError wraps failures from the trivia source. Code is the source's
// response code when the request reached it, Status the HTTP status.
type FetchError struct {
	Op     string
	Status int
	Code   int
	Err    error
}

func (e *FetchError) Error() string {
	msg := "fetch " + e.Op
	if e.Status != 0 {
		msg += fmt.Sprintf(": http %d", e.Status)
	}
	if e.Code != 0 {
		msg += fmt.Sprintf(": response code %d", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
