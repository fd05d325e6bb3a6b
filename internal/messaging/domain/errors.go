package domain

import "errors"

var (
	// ErrValidation marks bad input from the immediate caller. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrMessageNotFound is returned when a message id or external id does
	// not resolve. Webhook callers should treat it as a 4xx-equivalent.
	ErrMessageNotFound = errors.New("message not found")

	// ErrDeliveryNotFound is returned when no delivery record exists for a
	// message yet.
	ErrDeliveryNotFound = errors.New("delivery not found")

	// ErrInvalidTransition marks a status change not present in the
	// transition table. The stored status stays unchanged.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicateMessage is returned when a message with the same external
	// id already exists.
	ErrDuplicateMessage = errors.New("duplicate message")

	// ErrQueueUnavailable marks an enqueue failure after the message record
	// was already persisted in queued state. Distinguishable from
	// validation and creation errors so the caller can reconcile.
	ErrQueueUnavailable = errors.New("queue unavailable")

	// ErrRateLimited is returned when the rate limiter denies a send.
	ErrRateLimited = errors.New("rate limit exceeded")
)
