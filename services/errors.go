package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for the transport layer.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindUnauthenticated
	KindNotFound
	KindInvalidState
)

// BoxError is returned by every service in this package. Message is safe to show to callers;
// Err carries the underlying cause and is only logged.
type BoxError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *BoxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *BoxError) Unwrap() error { return e.Err }

// Is matches on Code so wrapped copies of a sentinel still compare equal.
func (e *BoxError) Is(target error) bool {
	t, ok := target.(*BoxError)
	return ok && t.Code == e.Code
}

var (
	ErrUnauthenticated         = &BoxError{Kind: KindUnauthenticated, Code: "unauthenticated", Message: "Unauthorized"}
	ErrNoActiveUser            = &BoxError{Kind: KindInvalidState, Code: "no_active_user", Message: "User not found."}
	ErrUserNotFound            = &BoxError{Kind: KindNotFound, Code: "user_not_found", Message: "User not found"}
	ErrTemplateNotFound        = &BoxError{Kind: KindNotFound, Code: "template_not_found", Message: "Box template not found"}
	ErrTemplateUnavailable     = &BoxError{Kind: KindInvalidState, Code: "template_unavailable", Message: "No box available."}
	ErrDuplicateActiveInstance = &BoxError{Kind: KindInvalidState, Code: "duplicate_active_instance", Message: "You already have an active box mining."}
	ErrNoActiveInstance        = &BoxError{Kind: KindInvalidState, Code: "no_active_instance", Message: "No active box found."}
	ErrNotReadyYet             = &BoxError{Kind: KindInvalidState, Code: "not_ready_yet", Message: "Box is not ready yet."}
	ErrMissionIncomplete       = &BoxError{Kind: KindInvalidState, Code: "mission_incomplete", Message: "Mission not completed yet."}
	ErrCreditFailure           = &BoxError{Kind: KindInternal, Code: "credit_failure", Message: "Internal server error."}
	ErrInvalidAmount           = &BoxError{Kind: KindInternal, Code: "invalid_amount", Message: "Internal server error."}
)

// internalError wraps an unexpected store failure. The cause never reaches the caller.
func internalError(op string, err error) error {
	return &BoxError{
		Kind:    KindInternal,
		Code:    "internal",
		Message: "Internal server error.",
		Err:     fmt.Errorf("%s: %w", op, err),
	}
}

// KindOf returns the kind of err, treating anything unrecognised as internal.
func KindOf(err error) ErrorKind {
	var be *BoxError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// PublicMessage is the caller-facing text for err.
func PublicMessage(err error) string {
	var be *BoxError
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return "Internal server error."
}
