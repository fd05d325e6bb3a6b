// Package queue defines the dispatch job envelope and the contract for
// handing a rate-limit-cleared message to an asynchronous worker.
package queue

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/novasms/gateway/internal/messaging/domain"
)

// MessageSnapshot carries the fields a worker needs to call the provider
// without re-reading the message row.
type MessageSnapshot struct {
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient"`
	Body      string          `json:"body"`
	Channel   domain.Channel  `json:"channel"`
	Priority  domain.Priority `json:"priority"`
}

// DispatchJob is the transient envelope handed to the queue. The queue owns
// it exclusively between enqueue and completion; the pipeline holds no
// reference after handoff.
type DispatchJob struct {
	MessageID      uuid.UUID       `json:"message_id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	ProviderConfig string          `json:"provider_config"`
	Message        MessageSnapshot `json:"message"`
	RetryAttempt   int             `json:"retry_attempt"`
}

// SchedulerPriority maps the 4-level business priority to a numeric
// scheduler priority. Highest business priority gets the highest number.
func SchedulerPriority(p domain.Priority) int {
	switch p {
	case domain.PriorityUrgent:
		return 4
	case domain.PriorityHigh:
		return 3
	case domain.PriorityNormal:
		return 2
	case domain.PriorityLow:
		return 1
	default:
		return 2
	}
}

// EnqueueOptions control scheduling and redelivery for one job.
type EnqueueOptions struct {
	Priority    domain.Priority
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultEnqueueOptions returns the standard retry policy: 3 attempts with
// exponential backoff.
func DefaultEnqueueOptions(priority domain.Priority) EnqueueOptions {
	return EnqueueOptions{
		Priority:    priority,
		MaxAttempts: domain.DefaultMaxDeliveryAttempts,
		Backoff:     2 * time.Second,
	}
}

// Queue is the durable at-least-once queue substrate.
type Queue interface {
	Enqueue(ctx context.Context, job DispatchJob, opts EnqueueOptions) error
}

// BackoffFor computes the delay before retry number attempt (1-based),
// exponential on the base with ±20% jitter to avoid thundering herds.
func BackoffFor(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = time.Second
	}
	backoff := base * time.Duration(1<<(attempt-1))
	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(backoff) * jitter)
}
