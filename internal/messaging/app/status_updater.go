package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/novasms/gateway/internal/messaging/domain"
	"github.com/novasms/gateway/internal/messaging/notifier"
)

// DB is the database handle the app services run on: direct queries plus
// transaction begin. Satisfied by *pgxpool.Pool and by pgxmock pools.
type DB interface {
	domain.Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// StatusUpdater is the single legitimate writer of message and delivery
// status. Every entry point is idempotent and safe under concurrent,
// redundant invocation: a repeated update requesting the current status is a
// no-op with no write and no notification.
type StatusUpdater struct {
	db         DB
	messages   domain.MessageRepository
	deliveries domain.DeliveryRepository
	notifier   notifier.ChangeNotifier
	logger     *slog.Logger
}

func NewStatusUpdater(db DB, messages domain.MessageRepository, deliveries domain.DeliveryRepository, changeNotifier notifier.ChangeNotifier, logger *slog.Logger) *StatusUpdater {
	return &StatusUpdater{
		db:         db,
		messages:   messages,
		deliveries: deliveries,
		notifier:   changeNotifier,
		logger:     logger.With("component", "status_updater"),
	}
}

type applyOptions struct {
	externalID   *string
	errorCode    *string
	errorMessage *string
	countAttempt bool
	fromCallback bool
}

// UpdateStatus applies a plain status transition.
func (u *StatusUpdater) UpdateStatus(ctx context.Context, tenantID, messageID uuid.UUID, newStatus domain.MessageStatus) (*domain.Message, error) {
	return u.apply(ctx, tenantID, messageID, newStatus, applyOptions{})
}

// UpdateWithExternalID applies a transition and binds the provider-assigned
// id. The external id is set at most once; a conflicting re-bind keeps the
// stored value and logs a warning.
func (u *StatusUpdater) UpdateWithExternalID(ctx context.Context, tenantID, messageID uuid.UUID, newStatus domain.MessageStatus, externalID string) (*domain.Message, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: external id must not be empty", domain.ErrValidation)
	}
	return u.apply(ctx, tenantID, messageID, newStatus, applyOptions{externalID: &externalID})
}

// UpdateWithError applies a transition, captures the failure detail, and
// increments the correlated delivery's attempt counter.
func (u *StatusUpdater) UpdateWithError(ctx context.Context, tenantID, messageID uuid.UUID, newStatus domain.MessageStatus, errorCode, errorMessage string) (*domain.Message, error) {
	if errorCode == "" {
		return nil, fmt.Errorf("%w: error code must not be empty", domain.ErrValidation)
	}
	return u.apply(ctx, tenantID, messageID, newStatus, applyOptions{
		errorCode:    &errorCode,
		errorMessage: &errorMessage,
		countAttempt: true,
	})
}

// ApplyCallback reconciles a provider status callback. The external id is
// the sole correlation key; the status string comes from the provider
// payload after (external) signature verification.
func (u *StatusUpdater) ApplyCallback(ctx context.Context, tenantID uuid.UUID, externalID, status string, errorCode, errorMessage *string) (*domain.Message, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: external id must not be empty", domain.ErrValidation)
	}
	newStatus, err := domain.ParseMessageStatus(status)
	if err != nil {
		return nil, err
	}

	msg, err := u.messages.GetByExternalID(ctx, u.db, tenantID, externalID)
	if err != nil {
		return nil, err
	}

	opts := applyOptions{fromCallback: true}
	if errorCode != nil && *errorCode != "" {
		opts.errorCode = errorCode
		opts.errorMessage = errorMessage
		opts.countAttempt = true
	}
	return u.apply(ctx, tenantID, msg.ID, newStatus, opts)
}

// apply runs the shared reconciliation algorithm: validate, load, idempotency
// short-circuit, transition check, message write, delivery load-or-create,
// change notification. The message and delivery writes share one
// transaction scoped to the tenant; a partial failure rolls both back so a
// redelivered invocation can retry the whole update.
func (u *StatusUpdater) apply(ctx context.Context, tenantID, messageID uuid.UUID, newStatus domain.MessageStatus, opts applyOptions) (*domain.Message, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant id must not be empty", domain.ErrValidation)
	}
	if messageID == uuid.Nil {
		return nil, fmt.Errorf("%w: message id must not be empty", domain.ErrValidation)
	}
	if !newStatus.IsValid() {
		return nil, fmt.Errorf("%w: unknown message status %q", domain.ErrValidation, newStatus)
	}

	var (
		result *domain.Message
		before *domain.Message
		noop   bool
	)

	txErr := pgx.BeginFunc(ctx, u.db, func(tx pgx.Tx) error {
		msg, err := u.messages.GetByID(ctx, tx, tenantID, messageID)
		if err != nil {
			return err
		}

		// Idempotency short-circuit: duplicate webhook deliveries and
		// duplicate job-completion callbacks land here.
		if msg.Status == newStatus {
			idempotentHitsCounter.Inc()
			u.logger.DebugContext(ctx, "status already current, skipping update",
				"message_id", messageID,
				"status", newStatus,
			)
			result = msg
			noop = true
			return nil
		}

		// Callbacks may outrun the worker's own writes, so a callback is
		// also allowed to jump forward across intermediate statuses. Plain
		// worker updates stay on direct edges only.
		allowed := domain.CanTransition(msg.Status, newStatus)
		if !allowed && opts.fromCallback && domain.CanAdvance(msg.Status, newStatus) {
			allowed = true
			u.logger.InfoContext(ctx, "callback jumped message forward",
				"message_id", messageID,
				"from", msg.Status,
				"to", newStatus,
			)
		}
		if !allowed {
			transitionRejectedCounter.WithLabelValues(string(msg.Status), string(newStatus)).Inc()
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, msg.Status, newStatus)
		}

		snapshot := *msg
		before = &snapshot

		if newStatus == domain.MessageStatusQueued && msg.Status.CanRetry() {
			msg.RetryCount++
		}
		msg.Status = newStatus
		if opts.externalID != nil {
			if msg.ExternalID == nil {
				msg.ExternalID = opts.externalID
			} else if *msg.ExternalID != *opts.externalID {
				u.logger.WarnContext(ctx, "refusing to overwrite external id",
					"message_id", messageID,
					"existing", *msg.ExternalID,
					"requested", *opts.externalID,
				)
			}
		}
		if opts.errorCode != nil {
			msg.ErrorCode = opts.errorCode
			msg.ErrorMessage = opts.errorMessage
		}
		msg.UpdatedAt = time.Now().UTC()

		if err := u.messages.Update(ctx, tx, msg); err != nil {
			return fmt.Errorf("update message: %w", err)
		}

		if err := u.reconcileDelivery(ctx, tx, msg, opts); err != nil {
			return err
		}

		result = msg
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	if !noop {
		statusUpdatesCounter.WithLabelValues(string(before.Status), string(newStatus)).Inc()
		u.logger.InfoContext(ctx, "message status updated",
			"message_id", messageID,
			"tenant_id", tenantID,
			"from", before.Status,
			"to", newStatus,
		)
		u.notifier.Emit(ctx, "message", notifier.ActionUpdated, notifier.Change{
			RecordID: messageID.String(),
			Before:   before,
			After:    result,
		})
	}
	return result, nil
}

// reconcileDelivery loads or lazily creates the satellite delivery record
// and writes the mapped status. Attempts are incremented only on the error
// path.
func (u *StatusUpdater) reconcileDelivery(ctx context.Context, tx pgx.Tx, msg *domain.Message, opts applyOptions) error {
	mapped := domain.DeliveryStatusFor(msg.Status)

	delivery, err := u.deliveries.GetByMessageID(ctx, tx, msg.ID)
	if errors.Is(err, domain.ErrDeliveryNotFound) {
		delivery = domain.NewDelivery(msg.ID, msg.TenantID, mapped)
		delivery.ExternalDeliveryID = msg.ExternalID
		if opts.countAttempt {
			delivery.Attempts = 1
		}
		delivery.ErrorCode = opts.errorCode
		delivery.ErrorMessage = opts.errorMessage
		if opts.fromCallback {
			delivery.CallbackStatus = domain.CallbackStatusProcessed
		}
		if err := u.deliveries.Create(ctx, tx, delivery); err != nil {
			return fmt.Errorf("create delivery: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load delivery: %w", err)
	}

	delivery.Status = mapped
	if opts.countAttempt {
		delivery.Attempts++
	}
	if opts.errorCode != nil {
		delivery.ErrorCode = opts.errorCode
		delivery.ErrorMessage = opts.errorMessage
	}
	if delivery.ExternalDeliveryID == nil && msg.ExternalID != nil {
		delivery.ExternalDeliveryID = msg.ExternalID
	}
	if opts.fromCallback {
		delivery.CallbackStatus = domain.CallbackStatusProcessed
	}
	delivery.UpdatedAt = time.Now().UTC()

	if err := u.deliveries.Update(ctx, tx, delivery); err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	return nil
}

// InboundMessage is a provider-originated message handed in by the callback
// pipeline.
type InboundMessage struct {
	ExternalID string
	Sender     string
	Recipient  string
	Body       string
	ReceivedAt time.Time
}

// IngestInbound stores an inbound message, deduplicating on the external
// correlation id: if a message with the same external id already exists the
// call is a no-op success. Returns the stored message and whether it was
// created by this call.
func (u *StatusUpdater) IngestInbound(ctx context.Context, tenantID uuid.UUID, in InboundMessage) (*domain.Message, bool, error) {
	if tenantID == uuid.Nil {
		return nil, false, fmt.Errorf("%w: tenant id must not be empty", domain.ErrValidation)
	}
	if in.ExternalID == "" {
		return nil, false, fmt.Errorf("%w: external id must not be empty", domain.ErrValidation)
	}

	var (
		result  *domain.Message
		created bool
	)

	txErr := pgx.BeginFunc(ctx, u.db, func(tx pgx.Tx) error {
		existing, err := u.messages.GetByExternalID(ctx, tx, tenantID, in.ExternalID)
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, domain.ErrMessageNotFound) {
			return err
		}

		msg := domain.NewInboundMessage(tenantID, in.ExternalID, in.Sender, in.Recipient, in.Body, in.ReceivedAt)
		if err := u.messages.Create(ctx, tx, msg); err != nil {
			return err
		}

		delivery := domain.NewDelivery(msg.ID, tenantID, domain.DeliveryStatusReceived)
		delivery.ExternalDeliveryID = msg.ExternalID
		delivery.CallbackStatus = domain.CallbackStatusProcessed
		if err := u.deliveries.Create(ctx, tx, delivery); err != nil {
			return fmt.Errorf("create delivery: %w", err)
		}

		result = msg
		created = true
		return nil
	})
	if txErr != nil {
		// A concurrent ingest of the same external id can win the race and
		// trip the unique index; resolve to the stored row.
		if errors.Is(txErr, domain.ErrDuplicateMessage) {
			existing, err := u.messages.GetByExternalID(ctx, u.db, tenantID, in.ExternalID)
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		return nil, false, txErr
	}

	if created {
		u.logger.InfoContext(ctx, "inbound message stored",
			"message_id", result.ID,
			"tenant_id", tenantID,
			"external_id", in.ExternalID,
		)
		u.notifier.Emit(ctx, "message", notifier.ActionCreated, notifier.Change{
			RecordID: result.ID.String(),
			After:    result,
		})
	} else {
		u.logger.DebugContext(ctx, "duplicate inbound message suppressed",
			"tenant_id", tenantID,
			"external_id", in.ExternalID,
		)
	}
	return result, created, nil
}
