// Package apperr defines the error taxonomy shared by the conversation core.
// Every typed error carries a message that is safe to show to the user.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for reply formatting and metrics.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindInsufficientGas   Kind = "insufficient_gas"
	KindAuthentication    Kind = "authentication"
	KindCollaborator      Kind = "collaborator"
	KindExecution         Kind = "execution"
)

// Error is a classified, user-presentable error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed user input. The message should echo the expected format.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing recipient, coupon or pending action.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InsufficientFunds reports a balance shortfall.
func InsufficientFunds(format string, args ...any) error {
	return &Error{Kind: KindInsufficientFunds, Message: fmt.Sprintf(format, args...)}
}

// InsufficientGas reports that the sender cannot pay network fees.
func InsufficientGas(format string, args ...any) error {
	return &Error{Kind: KindInsufficientGas, Message: fmt.Sprintf(format, args...)}
}

// Authentication reports a wrong PIN.
func Authentication(format string, args ...any) error {
	return &Error{Kind: KindAuthentication, Message: fmt.Sprintf(format, args...)}
}

// Collaborator wraps a failure of an external dependency (LLM, price feed, chain RPC).
func Collaborator(err error, format string, args ...any) error {
	return &Error{Kind: KindCollaborator, Message: fmt.Sprintf(format, args...), Err: err}
}

// Execution wraps a failed transfer at the wallet or chain layer.
func Execution(err error, format string, args ...any) error {
	return &Error{Kind: KindExecution, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of a classified error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// UserMessage extracts the user-facing message of a classified error.
func UserMessage(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message, true
	}
	return "", false
}
