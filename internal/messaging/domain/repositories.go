package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier abstracts over a pool or an open transaction so repository calls
// can participate in the caller's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// MessageRepository persists messages, scoped per tenant.
type MessageRepository interface {
	Create(ctx context.Context, q Querier, msg *Message) error
	GetByID(ctx context.Context, q Querier, tenantID, id uuid.UUID) (*Message, error)
	GetByExternalID(ctx context.Context, q Querier, tenantID uuid.UUID, externalID string) (*Message, error)
	Update(ctx context.Context, q Querier, msg *Message) error
}

// DeliveryRepository persists delivery records.
type DeliveryRepository interface {
	Create(ctx context.Context, q Querier, d *Delivery) error
	GetByMessageID(ctx context.Context, q Querier, messageID uuid.UUID) (*Delivery, error)
	Update(ctx context.Context, q Querier, d *Delivery) error
}
