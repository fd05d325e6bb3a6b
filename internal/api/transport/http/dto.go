// Package http implements the public REST API: message submission, status
// reads, provider webhooks, and tenant quota administration.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/novasms/gateway/internal/messaging/domain"
)

// SendMessageRequest is the DTO for POST /messages.
type SendMessageRequest struct {
	Sender    string            `json:"sender"`
	Recipient string            `json:"recipient"`
	Body      string            `json:"body"`
	Channel   string            `json:"channel"`
	Priority  string            `json:"priority,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MessageResponse is the DTO returned for submissions and status reads.
type MessageResponse struct {
	ID           string               `json:"id"`
	ExternalID   *string              `json:"external_id,omitempty"`
	Direction    domain.Direction     `json:"direction"`
	Channel      domain.Channel       `json:"channel"`
	Sender       string               `json:"sender"`
	Recipient    string               `json:"recipient"`
	Status       domain.MessageStatus `json:"status"`
	Priority     domain.Priority      `json:"priority"`
	RetryCount   int                  `json:"retry_count"`
	ErrorCode    *string              `json:"error_code,omitempty"`
	ErrorMessage *string              `json:"error_message,omitempty"`
	Metadata     map[string]string    `json:"metadata,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

func toMessageResponse(msg *domain.Message) MessageResponse {
	return MessageResponse{
		ID:           msg.ID.String(),
		ExternalID:   msg.ExternalID,
		Direction:    msg.Direction,
		Channel:      msg.Channel,
		Sender:       msg.Sender,
		Recipient:    msg.Recipient,
		Status:       msg.Status,
		Priority:     msg.Priority,
		RetryCount:   msg.RetryCount,
		ErrorCode:    msg.ErrorCode,
		ErrorMessage: msg.ErrorMessage,
		Metadata:     msg.Metadata,
		CreatedAt:    msg.CreatedAt,
		UpdatedAt:    msg.UpdatedAt,
	}
}

// QuotaResponse reports current headroom for one message type without
// consuming any of it.
type QuotaResponse struct {
	MessageType string    `json:"message_type"`
	Allowed     bool      `json:"allowed"`
	Remaining   int64     `json:"remaining"`
	ResetAt     time.Time `json:"reset_at"`
}

// StatusWebhookRequest is the raw provider delivery report accepted on the
// webhook endpoint.
type StatusWebhookRequest struct {
	ExternalID   string  `json:"external_id"`
	Status       string  `json:"status"`
	ErrorCode    *string `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

// InboundWebhookRequest is the raw mobile-originated message accepted on the
// webhook endpoint.
type InboundWebhookRequest struct {
	ExternalID string     `json:"external_id"`
	From       string     `json:"from"`
	To         string     `json:"to"`
	Body       string     `json:"body"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, code, message string) {
	writeJSON(w, logger, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}
