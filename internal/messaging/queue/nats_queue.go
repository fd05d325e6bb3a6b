package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/novasms/gateway/internal/messaging/domain"
	"github.com/novasms/gateway/internal/platform/messagebroker"
)

// NATSQueue publishes dispatch jobs to priority-suffixed NATS subjects.
// Workers subscribe to the full prefix wildcard under a shared queue group,
// which gives at-least-once handoff; redelivery on failure is driven by the
// worker re-publishing with an incremented attempt after backoff.
type NATSQueue struct {
	client        *messagebroker.NATSClient
	subjectPrefix string
	logger        *slog.Logger
}

// NewNATSQueue creates a queue on the given subject prefix, e.g.
// "dispatch.jobs" yields subjects "dispatch.jobs.p1".."dispatch.jobs.p4".
func NewNATSQueue(client *messagebroker.NATSClient, subjectPrefix string, logger *slog.Logger) *NATSQueue {
	return &NATSQueue{
		client:        client,
		subjectPrefix: subjectPrefix,
		logger:        logger.With("component", "dispatch_queue"),
	}
}

// SubjectFor returns the NATS subject for a business priority.
func (q *NATSQueue) SubjectFor(priority domain.Priority) string {
	return fmt.Sprintf("%s.p%d", q.subjectPrefix, SchedulerPriority(priority))
}

func (q *NATSQueue) Enqueue(ctx context.Context, job DispatchJob, opts EnqueueOptions) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal dispatch job: %w", err)
	}
	subject := q.SubjectFor(opts.Priority)
	if err := q.client.Publish(ctx, subject, data); err != nil {
		q.logger.ErrorContext(ctx, "failed to enqueue dispatch job",
			"error", err,
			"message_id", job.MessageID,
			"subject", subject,
			"retry_attempt", job.RetryAttempt,
		)
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	q.logger.DebugContext(ctx, "dispatch job enqueued",
		"message_id", job.MessageID,
		"subject", subject,
		"retry_attempt", job.RetryAttempt,
	)
	return nil
}
