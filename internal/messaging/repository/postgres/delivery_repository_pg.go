package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/novasms/gateway/internal/messaging/domain"
)

type pgDeliveryRepository struct{}

// NewPgDeliveryRepository creates the PostgreSQL delivery repository.
func NewPgDeliveryRepository() domain.DeliveryRepository {
	return &pgDeliveryRepository{}
}

const deliveryColumns = `
	id, message_id, tenant_id, status, attempts, error_code, error_message,
	external_delivery_id, cost, latency_ms, callback_status, created_at, updated_at`

func (r *pgDeliveryRepository) Create(ctx context.Context, q domain.Querier, d *domain.Delivery) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	query := `
		INSERT INTO deliveries (
			id, message_id, tenant_id, status, attempts, error_code, error_message,
			external_delivery_id, cost, latency_ms, callback_status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`
	_, err := q.Exec(ctx, query,
		d.ID, d.MessageID, d.TenantID, d.Status, d.Attempts, d.ErrorCode, d.ErrorMessage,
		d.ExternalDeliveryID, d.Cost, d.LatencyMS, d.CallbackStatus, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (r *pgDeliveryRepository) GetByMessageID(ctx context.Context, q domain.Querier, messageID uuid.UUID) (*domain.Delivery, error) {
	query := `SELECT` + deliveryColumns + ` FROM deliveries WHERE message_id = $1`
	d := &domain.Delivery{}
	err := q.QueryRow(ctx, query, messageID).Scan(
		&d.ID, &d.MessageID, &d.TenantID, &d.Status, &d.Attempts, &d.ErrorCode, &d.ErrorMessage,
		&d.ExternalDeliveryID, &d.Cost, &d.LatencyMS, &d.CallbackStatus, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("scan delivery: %w", err)
	}
	return d, nil
}

func (r *pgDeliveryRepository) Update(ctx context.Context, q domain.Querier, d *domain.Delivery) error {
	query := `
		UPDATE deliveries
		SET status = $2, attempts = $3, error_code = $4, error_message = $5,
		    external_delivery_id = $6, cost = $7, latency_ms = $8,
		    callback_status = $9, updated_at = $10
		WHERE id = $1
	`
	tag, err := q.Exec(ctx, query,
		d.ID, d.Status, d.Attempts, d.ErrorCode, d.ErrorMessage,
		d.ExternalDeliveryID, d.Cost, d.LatencyMS, d.CallbackStatus, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDeliveryNotFound
	}
	return nil
}
