package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallbackStatus is the webhook-processing sub-state of a delivery,
// independent of the delivery status itself.
type CallbackStatus string

const (
	CallbackStatusPending   CallbackStatus = "pending"
	CallbackStatusProcessed CallbackStatus = "processed"
	CallbackStatusFailed    CallbackStatus = "failed"
)

// Delivery is the satellite record correlated 1:1 to a Message. It is
// created lazily by the status updater on the first status write and never
// by any other component.
type Delivery struct {
	ID                 uuid.UUID      `json:"id"`
	MessageID          uuid.UUID      `json:"message_id"`
	TenantID           uuid.UUID      `json:"tenant_id"`
	Status             DeliveryStatus `json:"status"`
	Attempts           int            `json:"attempts"`
	ErrorCode          *string        `json:"error_code,omitempty"`
	ErrorMessage       *string        `json:"error_message,omitempty"`
	ExternalDeliveryID *string        `json:"external_delivery_id,omitempty"`
	Cost               *float64       `json:"cost,omitempty"`
	LatencyMS          *int64         `json:"latency_ms,omitempty"`
	CallbackStatus     CallbackStatus `json:"callback_status"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// NewDelivery builds a delivery record for a message with the given initial
// status.
func NewDelivery(messageID, tenantID uuid.UUID, status DeliveryStatus) *Delivery {
	now := time.Now().UTC()
	return &Delivery{
		ID:             uuid.New(),
		MessageID:      messageID,
		TenantID:       tenantID,
		Status:         status,
		CallbackStatus: CallbackStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
