// Package postgres implements the messaging repositories on PostgreSQL via
// pgx. Every method takes the caller's Querier so reads and writes can run
// on the pool or inside an open transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/novasms/gateway/internal/messaging/domain"
)

const uniqueViolationCode = "23505"

type pgMessageRepository struct{}

// NewPgMessageRepository creates the PostgreSQL message repository.
func NewPgMessageRepository() domain.MessageRepository {
	return &pgMessageRepository{}
}

const messageColumns = `
	id, tenant_id, external_id, direction, channel, sender, recipient, body,
	status, priority, retry_count, error_code, error_message, metadata,
	created_at, updated_at`

func (r *pgMessageRepository) Create(ctx context.Context, q domain.Querier, msg *domain.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now

	query := `
		INSERT INTO messages (
			id, tenant_id, external_id, direction, channel, sender, recipient, body,
			status, priority, retry_count, error_code, error_message, metadata,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`
	_, err := q.Exec(ctx, query,
		msg.ID, msg.TenantID, msg.ExternalID, msg.Direction, msg.Channel, msg.Sender, msg.Recipient, msg.Body,
		msg.Status, msg.Priority, msg.RetryCount, msg.ErrorCode, msg.ErrorMessage, msg.Metadata,
		msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return fmt.Errorf("%w: external id %v", domain.ErrDuplicateMessage, msg.ExternalID)
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *pgMessageRepository) GetByID(ctx context.Context, q domain.Querier, tenantID, id uuid.UUID) (*domain.Message, error) {
	query := `SELECT` + messageColumns + ` FROM messages WHERE tenant_id = $1 AND id = $2`
	return r.scanOne(q.QueryRow(ctx, query, tenantID, id))
}

func (r *pgMessageRepository) GetByExternalID(ctx context.Context, q domain.Querier, tenantID uuid.UUID, externalID string) (*domain.Message, error) {
	query := `SELECT` + messageColumns + ` FROM messages WHERE tenant_id = $1 AND external_id = $2`
	return r.scanOne(q.QueryRow(ctx, query, tenantID, externalID))
}

func (r *pgMessageRepository) Update(ctx context.Context, q domain.Querier, msg *domain.Message) error {
	query := `
		UPDATE messages
		SET external_id = $3, status = $4, retry_count = $5,
		    error_code = $6, error_message = $7, updated_at = $8
		WHERE tenant_id = $1 AND id = $2
	`
	tag, err := q.Exec(ctx, query,
		msg.TenantID, msg.ID, msg.ExternalID, msg.Status, msg.RetryCount,
		msg.ErrorCode, msg.ErrorMessage, msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *pgMessageRepository) scanOne(row pgx.Row) (*domain.Message, error) {
	msg := &domain.Message{}
	err := row.Scan(
		&msg.ID, &msg.TenantID, &msg.ExternalID, &msg.Direction, &msg.Channel, &msg.Sender, &msg.Recipient, &msg.Body,
		&msg.Status, &msg.Priority, &msg.RetryCount, &msg.ErrorCode, &msg.ErrorMessage, &msg.Metadata,
		&msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return msg, nil
}
