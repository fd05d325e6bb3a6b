// Package provider defines the outbound SMS vendor client contract and the
// error classification the dispatch worker uses to decide retryability.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass buckets provider failures for retry decisions.
type ErrorClass string

const (
	ErrorAuthentication ErrorClass = "authentication"
	ErrorValidation     ErrorClass = "validation"
	ErrorTimeout        ErrorClass = "timeout"
	ErrorRateLimited    ErrorClass = "rate_limited"
	ErrorUnknown        ErrorClass = "unknown"
)

// Retryable reports whether a failure of this class should drive queue
// backoff. Authentication and validation failures are terminal.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ErrorTimeout, ErrorRateLimited, ErrorUnknown:
		return true
	}
	return false
}

// Error is a classified provider failure.
type Error struct {
	Class   ErrorClass
	Code    string
	Message string
	cause   error
}

func NewError(class ErrorClass, code, message string, cause error) *Error {
	return &Error{Class: class, Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("provider error (%s): %s: %v", e.Class, e.Message, e.cause)
	}
	return fmt.Sprintf("provider error (%s): %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether this failure should be retried.
func (e *Error) Retryable() bool { return e.Class.Retryable() }

// Classify extracts the error class from err, defaulting to unknown so that
// unclassified failures stay retryable.
func Classify(err error) ErrorClass {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	return ErrorUnknown
}

// SendRequest carries one message to the vendor.
type SendRequest struct {
	MessageID string
	Sender    string
	Recipient string
	Body      string
	Channel   string
}

// SendResult is the vendor's acknowledgment of submission. ExternalID is the
// provider-assigned message id used to correlate later callbacks.
type SendResult struct {
	ExternalID     string
	ProviderStatus string
	Cost           *float64
}

// Client is an outbound SMS vendor adapter.
type Client interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
	Name() string
}
