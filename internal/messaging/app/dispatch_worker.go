package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/novasms/gateway/internal/messaging/domain"
	"github.com/novasms/gateway/internal/messaging/provider"
	"github.com/novasms/gateway/internal/messaging/queue"
	"github.com/novasms/gateway/internal/platform/messagebroker"
)

// jobTimeout bounds the processing of one dispatch job end to end.
const jobTimeout = 60 * time.Second

// statusReconciler is the slice of the status updater the worker invokes.
type statusReconciler interface {
	UpdateStatus(ctx context.Context, tenantID, messageID uuid.UUID, newStatus domain.MessageStatus) (*domain.Message, error)
	UpdateWithExternalID(ctx context.Context, tenantID, messageID uuid.UUID, newStatus domain.MessageStatus, externalID string) (*domain.Message, error)
	UpdateWithError(ctx context.Context, tenantID, messageID uuid.UUID, newStatus domain.MessageStatus, errorCode, errorMessage string) (*domain.Message, error)
}

// DispatchWorker consumes dispatch jobs, calls the provider, and reports
// every outcome to the status updater exactly once per attempt. Retryable
// failures are re-enqueued with exponential backoff until the maximum number
// of attempts is reached.
type DispatchWorker struct {
	broker          *messagebroker.NATSClient
	updater         statusReconciler
	provider        provider.Client
	dispatchQ       queue.Queue
	logger          *slog.Logger
	providerTimeout time.Duration
	maxAttempts     int
	retryBackoff    time.Duration

	sub      *nats.Subscription
	wg       sync.WaitGroup
	shutdown chan struct{}
	stopOnce sync.Once
}

func NewDispatchWorker(broker *messagebroker.NATSClient, updater statusReconciler, providerClient provider.Client, dispatchQ queue.Queue, logger *slog.Logger, providerTimeout time.Duration, maxAttempts int, retryBackoff time.Duration) *DispatchWorker {
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxDeliveryAttempts
	}
	if retryBackoff <= 0 {
		retryBackoff = 2 * time.Second
	}
	return &DispatchWorker{
		broker:          broker,
		updater:         updater,
		provider:        providerClient,
		dispatchQ:       dispatchQ,
		logger:          logger.With("component", "dispatch_worker"),
		providerTimeout: providerTimeout,
		maxAttempts:     maxAttempts,
		retryBackoff:    retryBackoff,
		shutdown:        make(chan struct{}),
	}
}

// Start subscribes to all priority subjects under subjectPrefix as part of
// queueGroup. Members of the group share the job stream.
func (w *DispatchWorker) Start(ctx context.Context, subjectPrefix, queueGroup string) error {
	subject := subjectPrefix + ".*"
	w.logger.Info("starting dispatch job consumer", "subject", subject, "queue_group", queueGroup)

	handler := func(msg *nats.Msg) {
		var job queue.DispatchJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			w.logger.Error("failed to unmarshal dispatch job", "error", err, "subject", msg.Subject)
			return
		}

		jobCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if err := w.HandleJob(jobCtx, job); err != nil {
			w.logger.ErrorContext(jobCtx, "dispatch job failed",
				"error", err,
				"message_id", job.MessageID,
				"retry_attempt", job.RetryAttempt,
			)
		}
	}

	sub, err := w.broker.Subscribe(ctx, subject, queueGroup, handler)
	if err != nil {
		return err
	}
	w.sub = sub
	return nil
}

// HandleJob processes one dispatch attempt. On any outcome after the
// provider call, including a panic, the status updater is invoked so the
// message cannot be left stuck in sending.
func (w *DispatchWorker) HandleJob(ctx context.Context, job queue.DispatchJob) (err error) {
	start := time.Now()
	defer func() {
		dispatchProcessingDurationHist.WithLabelValues(w.provider.Name()).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			w.logger.ErrorContext(ctx, "panic in dispatch job", "panic", r, "message_id", job.MessageID)
			if _, uerr := w.updater.UpdateWithError(ctx, job.TenantID, job.MessageID, domain.MessageStatusFailed, "WORKER_PANIC", fmt.Sprint(r)); uerr != nil {
				w.logger.ErrorContext(ctx, "failed to record panic outcome", "error", uerr, "message_id", job.MessageID)
			}
			err = fmt.Errorf("dispatch job panicked: %v", r)
		}
	}()

	if _, err := w.updater.UpdateStatus(ctx, job.TenantID, job.MessageID, domain.MessageStatusSending); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidTransition):
			// Canceled before send, or another worker already owns it.
			dispatchJobsProcessedCounter.WithLabelValues("skipped").Inc()
			w.logger.WarnContext(ctx, "skipping job, message not in a dispatchable state",
				"message_id", job.MessageID, "error", err)
			return nil
		case errors.Is(err, domain.ErrMessageNotFound):
			dispatchJobsProcessedCounter.WithLabelValues("skipped").Inc()
			w.logger.ErrorContext(ctx, "skipping job, message not found", "message_id", job.MessageID)
			return nil
		default:
			return fmt.Errorf("transition to sending: %w", err)
		}
	}

	providerCtx, cancel := context.WithTimeout(ctx, w.providerTimeout)
	defer cancel()
	result, sendErr := w.provider.Send(providerCtx, provider.SendRequest{
		MessageID: job.MessageID.String(),
		Sender:    job.Message.Sender,
		Recipient: job.Message.Recipient,
		Body:      job.Message.Body,
		Channel:   string(job.Message.Channel),
	})

	if sendErr == nil {
		if _, err := w.updater.UpdateWithExternalID(ctx, job.TenantID, job.MessageID, domain.MessageStatusSent, result.ExternalID); err != nil {
			return fmt.Errorf("record sent outcome: %w", err)
		}
		dispatchJobsProcessedCounter.WithLabelValues("sent").Inc()
		w.logger.InfoContext(ctx, "message submitted to provider",
			"message_id", job.MessageID,
			"external_id", result.ExternalID,
			"provider", w.provider.Name(),
		)
		return nil
	}

	class := provider.Classify(sendErr)
	code := string(class)
	var perr *provider.Error
	if errors.As(sendErr, &perr) && perr.Code != "" {
		code = perr.Code
	}
	if _, err := w.updater.UpdateWithError(ctx, job.TenantID, job.MessageID, domain.MessageStatusFailed, code, sendErr.Error()); err != nil {
		return fmt.Errorf("record failed outcome: %w", err)
	}

	attempts := job.RetryAttempt + 1
	if class.Retryable() && domain.CanRetryDelivery(domain.DeliveryStatusFailed, attempts, w.maxAttempts) {
		if _, err := w.updater.UpdateStatus(ctx, job.TenantID, job.MessageID, domain.MessageStatusQueued); err != nil {
			return fmt.Errorf("requeue for retry: %w", err)
		}
		retryJob := job
		retryJob.RetryAttempt = attempts
		w.requeueAfter(retryJob, queue.BackoffFor(attempts, w.retryBackoff))
		dispatchJobsProcessedCounter.WithLabelValues("retried").Inc()
		w.logger.WarnContext(ctx, "provider send failed, retry scheduled",
			"message_id", job.MessageID,
			"error", sendErr,
			"class", class,
			"attempt", attempts,
		)
		return nil
	}

	dispatchJobsProcessedCounter.WithLabelValues("failed").Inc()
	w.logger.ErrorContext(ctx, "provider send failed permanently",
		"message_id", job.MessageID,
		"error", sendErr,
		"class", class,
		"attempt", attempts,
	)
	return nil
}

// requeueAfter re-enqueues the job after the backoff delay without blocking
// the consumer callback. The goroutine outlives the per-job context; on
// Stop the remaining delay is skipped and the job is published immediately
// so a scheduled retry is never lost to shutdown.
func (w *DispatchWorker) requeueAfter(job queue.DispatchJob, delay time.Duration) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-w.shutdown:
		}
		enqueueCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := w.dispatchQ.Enqueue(enqueueCtx, job, queue.DefaultEnqueueOptions(job.Message.Priority)); err != nil {
			w.logger.Error("failed to re-enqueue retry job",
				"error", err,
				"message_id", job.MessageID,
				"retry_attempt", job.RetryAttempt,
			)
		}
	}()
}

// Stop unsubscribes, flushes pending retry re-publishes, and waits for them.
func (w *DispatchWorker) Stop() {
	if w.sub != nil && w.sub.IsValid() {
		if err := w.sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe dispatch consumer", "error", err)
		}
	}
	w.stopOnce.Do(func() { close(w.shutdown) })
	w.wg.Wait()
}
