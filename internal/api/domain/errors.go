package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies domain errors for transport mapping.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindInvalidInput
	KindInsufficientCredits
	KindRateLimited
	KindInvalidState
	KindUpstreamFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindInsufficientCredits:
		return "insufficient_credits"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidState:
		return "invalid_state"
	case KindUpstreamFailure:
		return "upstream_failure"
	default:
		return "internal"
	}
}

// Error is a classified error with a stable code and a human readable message.
type Error struct {
	Kind       ErrorKind
	Code       string
	Message    string
	Err        error
	RetryAfter time.Duration
	Balance    *int64
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind and code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

var (
	ErrUnauthenticated     = &Error{Kind: KindUnauthenticated, Code: "UNAUTHENTICATED", Message: "authentication required"}
	ErrForbidden           = &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: "not allowed"}
	ErrNotFound            = &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: "not found"}
	ErrInsufficientCredits = &Error{Kind: KindInsufficientCredits, Code: "NO_CREDITS", Message: "no credits left"}
	ErrInvalidState        = &Error{Kind: KindInvalidState, Code: "INVALID_STATE", Message: "invalid state"}
	ErrRateLimited         = &Error{Kind: KindRateLimited, Code: "RATE_LIMITED", Message: "too many requests"}
)

// NewNotFound reports an absent entity.
func NewNotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: entity + " not found"}
}

// NewInvalidInput reports a validation failure.
func NewInvalidInput(code, message string) *Error {
	return &Error{Kind: KindInvalidInput, Code: code, Message: message}
}

// NewInvalidState reports an illegal lifecycle transition.
func NewInvalidState(from, to JobStatus) *Error {
	return &Error{
		Kind:    KindInvalidState,
		Code:    "INVALID_STATE",
		Message: fmt.Sprintf("job cannot move from %s to %s", from, to),
	}
}

// NewInsufficientCredits reports an exhausted balance.
func NewInsufficientCredits(balance int64) *Error {
	return &Error{Kind: KindInsufficientCredits, Code: "NO_CREDITS", Message: "no credits left", Balance: &balance}
}

// NewRateLimited reports a rejected admission.
func NewRateLimited(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Code: "RATE_LIMITED", Message: message, RetryAfter: retryAfter}
}

// NewUpstreamFailure wraps a synthesis or storage failure.
func NewUpstreamFailure(code, message string, err error) *Error {
	return &Error{Kind: KindUpstreamFailure, Code: code, Message: message, Err: err}
}

// KindOf extracts the kind of err, KindInternal when unclassified.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
