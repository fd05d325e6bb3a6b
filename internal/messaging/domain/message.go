package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel is the message medium.
type Channel string

const (
	ChannelSMS Channel = "sms"
	ChannelMMS Channel = "mms"
)

// Direction distinguishes outbound sends from provider-originated inbound
// messages.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Priority is the 4-level business priority attached to a send request.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Message is an SMS/MMS record. Created by the send path in queued status
// and mutated only by the status updater.
//
// ExternalID is the provider-assigned id. Once set it is globally unique,
// never overwritten, and is the sole correlation key for inbound callbacks.
type Message struct {
	ID           uuid.UUID         `json:"id"`
	TenantID     uuid.UUID         `json:"tenant_id"`
	ExternalID   *string           `json:"external_id,omitempty"`
	Channel      Channel           `json:"channel"`
	Direction    Direction         `json:"direction"`
	Sender       string            `json:"sender"`
	Recipient    string            `json:"recipient"`
	Body         string            `json:"body"`
	Status       MessageStatus     `json:"status"`
	Priority     Priority          `json:"priority"`
	RetryCount   int               `json:"retry_count"`
	ErrorCode    *string           `json:"error_code,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewOutboundMessage builds a message in queued status ready for dispatch.
func NewOutboundMessage(tenantID uuid.UUID, channel Channel, sender, recipient, body string, priority Priority, metadata map[string]string) *Message {
	now := time.Now().UTC()
	return &Message{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Channel:   channel,
		Direction: DirectionOutbound,
		Sender:    sender,
		Recipient: recipient,
		Body:      body,
		Status:    MessageStatusQueued,
		Priority:  priority,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewInboundMessage builds a message record for a provider-originated
// message. Inbound messages are stored already delivered.
func NewInboundMessage(tenantID uuid.UUID, externalID, sender, recipient, body string, receivedAt time.Time) *Message {
	now := time.Now().UTC()
	if receivedAt.IsZero() {
		receivedAt = now
	}
	ext := externalID
	return &Message{
		ID:         uuid.New(),
		TenantID:   tenantID,
		ExternalID: &ext,
		Channel:    ChannelSMS,
		Direction:  DirectionInbound,
		Sender:     sender,
		Recipient:  recipient,
		Body:       body,
		Status:     MessageStatusDelivered,
		Priority:   PriorityNormal,
		CreatedAt:  receivedAt,
		UpdatedAt:  now,
	}
}
