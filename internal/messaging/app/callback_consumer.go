package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/novasms/gateway/internal/messaging/domain"
	"github.com/novasms/gateway/internal/platform/messagebroker"
)

// callbackTimeout bounds the processing of one provider callback.
const callbackTimeout = 30 * time.Second

// StatusCallback is the envelope published by the webhook endpoint for a
// provider delivery status report. The external id correlates back to the
// message that was handed to the provider.
type StatusCallback struct {
	TenantID     uuid.UUID `json:"tenant_id"`
	Provider     string    `json:"provider"`
	ExternalID   string    `json:"external_id"`
	Status       string    `json:"status"`
	ErrorCode    *string   `json:"error_code,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	ReportedAt   time.Time `json:"reported_at"`
}

// InboundCallback is the envelope for a mobile-originated message relayed by
// the provider.
type InboundCallback struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	Provider   string    `json:"provider"`
	ExternalID string    `json:"external_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// callbackApplier is the slice of the status updater the consumer invokes.
type callbackApplier interface {
	ApplyCallback(ctx context.Context, tenantID uuid.UUID, externalID, status string, errorCode, errorMessage *string) (*domain.Message, error)
	IngestInbound(ctx context.Context, tenantID uuid.UUID, in InboundMessage) (*domain.Message, bool, error)
}

// CallbackConsumer drains the status and inbound callback subjects and routes
// each envelope to the status updater. Envelopes that cannot apply, such as
// an unknown external id or an out-of-order status, are logged and dropped
// rather than
// redelivered, since replaying them cannot succeed.
type CallbackConsumer struct {
	broker  *messagebroker.NATSClient
	updater callbackApplier
	logger  *slog.Logger

	subs []*nats.Subscription
}

func NewCallbackConsumer(broker *messagebroker.NATSClient, updater callbackApplier, logger *slog.Logger) *CallbackConsumer {
	return &CallbackConsumer{
		broker:  broker,
		updater: updater,
		logger:  logger.With("component", "callback_consumer"),
	}
}

// Start subscribes to both callback subjects as part of queueGroup.
func (c *CallbackConsumer) Start(ctx context.Context, statusSubject, inboundSubject, queueGroup string) error {
	c.logger.Info("starting callback consumer",
		"status_subject", statusSubject,
		"inbound_subject", inboundSubject,
		"queue_group", queueGroup,
	)

	statusSub, err := c.broker.Subscribe(ctx, statusSubject, queueGroup, c.handleStatusMsg)
	if err != nil {
		return err
	}
	c.subs = append(c.subs, statusSub)

	inboundSub, err := c.broker.Subscribe(ctx, inboundSubject, queueGroup, c.handleInboundMsg)
	if err != nil {
		return err
	}
	c.subs = append(c.subs, inboundSub)
	return nil
}

func (c *CallbackConsumer) handleStatusMsg(msg *nats.Msg) {
	var cb StatusCallback
	if err := json.Unmarshal(msg.Data, &cb); err != nil {
		callbacksProcessedCounter.WithLabelValues("status", "malformed").Inc()
		c.logger.Error("failed to unmarshal status callback", "error", err, "subject", msg.Subject)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()
	c.HandleStatus(ctx, cb)
}

// HandleStatus applies one provider status report.
func (c *CallbackConsumer) HandleStatus(ctx context.Context, cb StatusCallback) {
	updated, err := c.updater.ApplyCallback(ctx, cb.TenantID, cb.ExternalID, cb.Status, cb.ErrorCode, cb.ErrorMessage)
	switch {
	case err == nil:
		callbacksProcessedCounter.WithLabelValues("status", "applied").Inc()
		c.logger.InfoContext(ctx, "status callback applied",
			"external_id", cb.ExternalID,
			"message_id", updated.ID,
			"status", updated.Status,
			"provider", cb.Provider,
		)
	case errors.Is(err, domain.ErrMessageNotFound):
		callbacksProcessedCounter.WithLabelValues("status", "unknown_message").Inc()
		c.logger.WarnContext(ctx, "status callback for unknown external id",
			"external_id", cb.ExternalID,
			"provider", cb.Provider,
		)
	case errors.Is(err, domain.ErrInvalidTransition):
		callbacksProcessedCounter.WithLabelValues("status", "stale").Inc()
		c.logger.WarnContext(ctx, "status callback out of order, dropped",
			"external_id", cb.ExternalID,
			"status", cb.Status,
			"error", err,
		)
	case errors.Is(err, domain.ErrValidation):
		callbacksProcessedCounter.WithLabelValues("status", "malformed").Inc()
		c.logger.WarnContext(ctx, "status callback rejected",
			"external_id", cb.ExternalID,
			"status", cb.Status,
			"error", err,
		)
	default:
		callbacksProcessedCounter.WithLabelValues("status", "error").Inc()
		c.logger.ErrorContext(ctx, "failed to apply status callback",
			"external_id", cb.ExternalID,
			"error", err,
		)
	}
}

func (c *CallbackConsumer) handleInboundMsg(msg *nats.Msg) {
	var cb InboundCallback
	if err := json.Unmarshal(msg.Data, &cb); err != nil {
		callbacksProcessedCounter.WithLabelValues("inbound", "malformed").Inc()
		c.logger.Error("failed to unmarshal inbound callback", "error", err, "subject", msg.Subject)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()
	c.HandleInbound(ctx, cb)
}

// HandleInbound stores one mobile-originated message. Redelivered callbacks
// for the same provider external id land on the already stored record.
func (c *CallbackConsumer) HandleInbound(ctx context.Context, cb InboundCallback) {
	msg, created, err := c.updater.IngestInbound(ctx, cb.TenantID, InboundMessage{
		ExternalID: cb.ExternalID,
		Sender:     cb.From,
		Recipient:  cb.To,
		Body:       cb.Body,
		ReceivedAt: cb.ReceivedAt,
	})
	switch {
	case err != nil:
		callbacksProcessedCounter.WithLabelValues("inbound", "error").Inc()
		c.logger.ErrorContext(ctx, "failed to ingest inbound message",
			"external_id", cb.ExternalID,
			"error", err,
		)
	case !created:
		callbacksProcessedCounter.WithLabelValues("inbound", "duplicate").Inc()
		c.logger.InfoContext(ctx, "duplicate inbound callback ignored",
			"external_id", cb.ExternalID,
			"message_id", msg.ID,
		)
	default:
		callbacksProcessedCounter.WithLabelValues("inbound", "stored").Inc()
		c.logger.InfoContext(ctx, "inbound message stored",
			"external_id", cb.ExternalID,
			"message_id", msg.ID,
			"from", cb.From,
		)
	}
}

// Stop unsubscribes from all callback subjects.
func (c *CallbackConsumer) Stop() {
	for _, sub := range c.subs {
		if sub.IsValid() {
			if err := sub.Unsubscribe(); err != nil {
				c.logger.Error("failed to unsubscribe callback consumer", "error", err)
			}
		}
	}
}
