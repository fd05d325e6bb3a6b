package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/novasms/gateway/internal/messaging/domain"
	"github.com/novasms/gateway/internal/messaging/notifier"
	"github.com/novasms/gateway/internal/messaging/queue"
	"github.com/novasms/gateway/internal/ratelimit"
)

// RateLimiter is the slice of the limiter the send path needs.
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, tenantID string, messageType ratelimit.MessageType) *ratelimit.Result
	CheckOnly(ctx context.Context, tenantID string, messageType ratelimit.MessageType) *ratelimit.Result
	Reset(ctx context.Context, tenantID string, messageType ratelimit.MessageType) error
}

// RateLimitError carries the denial detail so transports can surface the
// limiting window and reset time.
type RateLimitError struct {
	Result *ratelimit.Result
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: window=%s current=%d limit=%d",
		e.Result.LimitingWindow, e.Result.Current, e.Result.Limit)
}

func (e *RateLimitError) Is(target error) bool { return target == domain.ErrRateLimited }

// SendRequest is a validated send submission. TenantID comes from the
// authenticated caller, not the request body.
type SendRequest struct {
	TenantID  uuid.UUID         `validate:"required"`
	Sender    string            `validate:"required,max=32"`
	Recipient string            `validate:"required,e164"`
	Body      string            `validate:"required,max=1600"`
	Channel   domain.Channel    `validate:"required,oneof=sms mms"`
	Priority  domain.Priority   `validate:"omitempty,oneof=urgent high normal low"`
	Metadata  map[string]string `validate:"omitempty,max=20"`
}

// SendService runs the synchronous half of the pipeline: rate-limit gate,
// message persistence in queued status, dispatch-job enqueue. It returns as
// soon as the job is handed off and never blocks on provider latency.
type SendService struct {
	db           DB
	messages     domain.MessageRepository
	limiter      RateLimiter
	dispatchQ    queue.Queue
	notifier     notifier.ChangeNotifier
	providerName string
	logger       *slog.Logger
	validate     *validator.Validate
}

func NewSendService(db DB, messages domain.MessageRepository, limiter RateLimiter, dispatchQ queue.Queue, changeNotifier notifier.ChangeNotifier, providerName string, logger *slog.Logger) *SendService {
	return &SendService{
		db:           db,
		messages:     messages,
		limiter:      limiter,
		dispatchQ:    dispatchQ,
		notifier:     changeNotifier,
		providerName: providerName,
		logger:       logger.With("component", "send_service"),
		validate:     validator.New(),
	}
}

// Send validates the request, clears it through the rate limiter, persists
// the message in queued status, and enqueues a dispatch job.
//
// An enqueue failure is returned as ErrQueueUnavailable together with the
// persisted message: the record already exists in queued state and awaits
// reconciliation, which is distinguishable from validation and creation
// failures.
func (s *SendService) Send(ctx context.Context, req SendRequest) (*domain.Message, error) {
	if req.Priority == "" {
		req.Priority = domain.PriorityNormal
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		sendRejectedCounter.WithLabelValues("validation").Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	res := s.limiter.CheckAndIncrement(ctx, req.TenantID.String(), messageTypeFor(req.Channel))
	if !res.Allowed {
		sendRejectedCounter.WithLabelValues("rate_limited").Inc()
		return nil, &RateLimitError{Result: res}
	}

	msg := domain.NewOutboundMessage(req.TenantID, req.Channel, req.Sender, req.Recipient, req.Body, req.Priority, req.Metadata)
	if err := s.messages.Create(ctx, s.db, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	job := queue.DispatchJob{
		MessageID:      msg.ID,
		TenantID:       msg.TenantID,
		ProviderConfig: s.providerName,
		Message: queue.MessageSnapshot{
			Sender:    msg.Sender,
			Recipient: msg.Recipient,
			Body:      msg.Body,
			Channel:   msg.Channel,
			Priority:  msg.Priority,
		},
	}
	if err := s.dispatchQ.Enqueue(ctx, job, queue.DefaultEnqueueOptions(msg.Priority)); err != nil {
		sendRejectedCounter.WithLabelValues("queue_error").Inc()
		s.logger.ErrorContext(ctx, "message persisted but enqueue failed",
			"error", err,
			"message_id", msg.ID,
		)
		return msg, err
	}

	messagesSubmittedCounter.WithLabelValues(string(msg.Channel)).Inc()
	s.logger.InfoContext(ctx, "message queued for dispatch",
		"message_id", msg.ID,
		"tenant_id", msg.TenantID,
		"channel", msg.Channel,
		"priority", msg.Priority,
	)
	s.notifier.Emit(ctx, "message", notifier.ActionCreated, notifier.Change{
		RecordID: msg.ID.String(),
		After:    msg,
	})
	return msg, nil
}

// GetMessage loads a message for the tenant.
func (s *SendService) GetMessage(ctx context.Context, tenantID, messageID uuid.UUID) (*domain.Message, error) {
	if tenantID == uuid.Nil || messageID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant and message ids must not be empty", domain.ErrValidation)
	}
	return s.messages.GetByID(ctx, s.db, tenantID, messageID)
}

func messageTypeFor(c domain.Channel) ratelimit.MessageType {
	if c == domain.ChannelMMS {
		return ratelimit.MessageTypeMMS
	}
	return ratelimit.MessageTypeSMS
}
