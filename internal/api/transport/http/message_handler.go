package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/novasms/gateway/internal/api/middleware"
	"github.com/novasms/gateway/internal/messaging/app"
	"github.com/novasms/gateway/internal/messaging/domain"
)

// MessageService is the application surface the message endpoints call.
type MessageService interface {
	Send(ctx context.Context, req app.SendRequest) (*domain.Message, error)
	GetMessage(ctx context.Context, tenantID, messageID uuid.UUID) (*domain.Message, error)
}

// MessageCanceler cancels a queued message.
type MessageCanceler interface {
	UpdateStatus(ctx context.Context, tenantID, messageID uuid.UUID, newStatus domain.MessageStatus) (*domain.Message, error)
}

type MessageHandler struct {
	service  MessageService
	canceler MessageCanceler
	logger   *slog.Logger
}

func NewMessageHandler(service MessageService, canceler MessageCanceler, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		service:  service,
		canceler: canceler,
		logger:   logger.With("handler", "message"),
	}
}

func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.handleSend)
	r.Get("/messages/{messageID}", h.handleGet)
	r.Post("/messages/{messageID}/cancel", h.handleCancel)
}

func (h *MessageHandler) handleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		writeError(w, logger, http.StatusUnauthorized, "UNAUTHENTICATED", "tenant not authenticated")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, logger, http.StatusBadRequest, "INVALID_PAYLOAD", "request body is not valid JSON")
		return
	}

	msg, err := h.service.Send(ctx, app.SendRequest{
		TenantID:  tenant.ID,
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Body:      req.Body,
		Channel:   domain.Channel(req.Channel),
		Priority:  domain.Priority(req.Priority),
		Metadata:  req.Metadata,
	})
	if err != nil {
		h.writeSendError(ctx, w, logger, err)
		return
	}

	logger.InfoContext(ctx, "message accepted", "message_id", msg.ID, "tenant_id", tenant.ID)
	writeJSON(w, logger, http.StatusAccepted, toMessageResponse(msg))
}

// writeSendError maps application failures onto HTTP statuses. A rate-limit
// denial carries Retry-After and the limiting window so well-behaved clients
// can back off precisely.
func (h *MessageHandler) writeSendError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	var rle *app.RateLimitError
	switch {
	case errors.As(err, &rle):
		retryAfter := max(int(time.Until(rle.Result.ResetAt).Seconds()), 1)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(rle.Result.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rle.Result.ResetAt.Unix(), 10))
		writeError(w, logger, http.StatusTooManyRequests, "RATE_LIMITED",
			"quota exhausted for "+string(rle.Result.LimitingWindow)+" window")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, logger, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, domain.ErrQueueUnavailable):
		// The message row exists in queued state; the client can poll it.
		writeError(w, logger, http.StatusBadGateway, "QUEUE_ERROR", "message stored but dispatch handoff failed")
	default:
		logger.ErrorContext(ctx, "send failed", "error", err)
		writeError(w, logger, http.StatusInternalServerError, "INTERNAL", "failed to process message")
	}
}

func (h *MessageHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		writeError(w, logger, http.StatusUnauthorized, "UNAUTHENTICATED", "tenant not authenticated")
		return
	}

	messageID, err := uuid.Parse(chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, "INVALID_ID", "message id must be a UUID")
		return
	}

	msg, err := h.service.GetMessage(ctx, tenant.ID, messageID)
	switch {
	case errors.Is(err, domain.ErrMessageNotFound):
		writeError(w, logger, http.StatusNotFound, "NOT_FOUND", "message not found")
	case err != nil:
		logger.ErrorContext(ctx, "message lookup failed", "error", err, "message_id", messageID)
		writeError(w, logger, http.StatusInternalServerError, "INTERNAL", "failed to load message")
	default:
		writeJSON(w, logger, http.StatusOK, toMessageResponse(msg))
	}
}

func (h *MessageHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		writeError(w, logger, http.StatusUnauthorized, "UNAUTHENTICATED", "tenant not authenticated")
		return
	}

	messageID, err := uuid.Parse(chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, "INVALID_ID", "message id must be a UUID")
		return
	}

	msg, err := h.canceler.UpdateStatus(ctx, tenant.ID, messageID, domain.MessageStatusCanceled)
	switch {
	case errors.Is(err, domain.ErrMessageNotFound):
		writeError(w, logger, http.StatusNotFound, "NOT_FOUND", "message not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, logger, http.StatusConflict, "NOT_CANCELABLE", "message already left the queue")
	case err != nil:
		logger.ErrorContext(ctx, "cancel failed", "error", err, "message_id", messageID)
		writeError(w, logger, http.StatusInternalServerError, "INTERNAL", "failed to cancel message")
	default:
		logger.InfoContext(ctx, "message canceled", "message_id", messageID, "tenant_id", tenant.ID)
		writeJSON(w, logger, http.StatusOK, toMessageResponse(msg))
	}
}
