package agent

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies agent failures.
type ErrorKind string

const (
	// KindConnection means the provider could not be reached or the stream
	// broke mid-flight.
	KindConnection ErrorKind = "connection"

	// KindProvider means the provider answered with an error (bad model,
	// rate limit, malformed response).
	KindProvider ErrorKind = "provider"

	// KindCancelled means the caller's context was cancelled.
	KindCancelled ErrorKind = "cancelled"
)

// Error is returned by clients and streams for every failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Provider == "" {
		return fmt.Sprintf("agent %s error: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s agent %s error: %s", e.Provider, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ConnectionError wraps err as a KindConnection error, or as KindCancelled
// when err stems from context cancellation.
func ConnectionError(provider string, err error) *Error {
	if IsCancellation(err) {
		return &Error{Kind: KindCancelled, Provider: provider, Err: err}
	}
	return &Error{Kind: KindConnection, Provider: provider, Err: err}
}

// ProviderError builds a KindProvider error.
func ProviderError(provider, message string) *Error {
	return &Error{Kind: KindProvider, Provider: provider, Message: message}
}

// IsCancellation reports whether err was caused by context cancellation or
// deadline.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// KindOf returns the kind of an agent error, or "" when err is not one.
func KindOf(err error) ErrorKind {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr.Kind
	}
	return ""
}
