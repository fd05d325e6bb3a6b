package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/novasms/gateway/internal/messaging/app"
)

const (
	maxWebhookBodyBytes = 64 * 1024

	signatureHeader = "X-Provider-Signature"
)

// Publisher hands a callback envelope to the broker for asynchronous
// processing.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// SignatureVerifier validates a provider callback signature against the raw
// request body. A nil verifier skips the check.
type SignatureVerifier func(provider, signature string, body []byte) error

// HMACSignatureVerifier verifies hex-encoded HMAC-SHA256 signatures computed
// over the raw body with a shared secret.
func HMACSignatureVerifier(secret string) SignatureVerifier {
	return func(provider, signature string, body []byte) error {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(expected), []byte(signature)) {
			return fmt.Errorf("signature mismatch for provider %s", provider)
		}
		return nil
	}
}

// WebhookHandler accepts provider callbacks on tenant-scoped URLs and
// republishes them as internal envelopes. The HTTP response acknowledges
// receipt only; reconciliation happens in the callback processor.
type WebhookHandler struct {
	publisher      Publisher
	statusSubject  string
	inboundSubject string
	verifier       SignatureVerifier
	logger         *slog.Logger
}

func NewWebhookHandler(publisher Publisher, statusSubject, inboundSubject string, verifier SignatureVerifier, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		publisher:      publisher,
		statusSubject:  statusSubject,
		inboundSubject: inboundSubject,
		verifier:       verifier,
		logger:         logger.With("handler", "webhook"),
	}
}

func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/{provider}/{tenantID}/status", h.handleStatus)
	r.Post("/webhooks/{provider}/{tenantID}/inbound", h.handleInbound)
}

func (h *WebhookHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	provider, tenantID, ok := h.pathParams(w, r, logger)
	if !ok {
		return
	}

	body, ok := h.readAndVerify(w, r, logger, provider)
	if !ok {
		return
	}

	var req StatusWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, logger, http.StatusBadRequest, "INVALID_PAYLOAD", "request body is not valid JSON")
		return
	}
	if req.ExternalID == "" || req.Status == "" {
		writeError(w, logger, http.StatusBadRequest, "INVALID_PAYLOAD", "external_id and status are required")
		return
	}

	envelope := app.StatusCallback{
		TenantID:     tenantID,
		Provider:     provider,
		ExternalID:   req.ExternalID,
		Status:       req.Status,
		ErrorCode:    req.ErrorCode,
		ErrorMessage: req.ErrorMessage,
		ReportedAt:   time.Now().UTC(),
	}
	h.publish(ctx, w, logger, h.statusSubject, envelope)
}

func (h *WebhookHandler) handleInbound(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	provider, tenantID, ok := h.pathParams(w, r, logger)
	if !ok {
		return
	}

	body, ok := h.readAndVerify(w, r, logger, provider)
	if !ok {
		return
	}

	var req InboundWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, logger, http.StatusBadRequest, "INVALID_PAYLOAD", "request body is not valid JSON")
		return
	}
	if req.ExternalID == "" || req.From == "" {
		writeError(w, logger, http.StatusBadRequest, "INVALID_PAYLOAD", "external_id and from are required")
		return
	}

	receivedAt := time.Now().UTC()
	if req.ReceivedAt != nil {
		receivedAt = req.ReceivedAt.UTC()
	}
	envelope := app.InboundCallback{
		TenantID:   tenantID,
		Provider:   provider,
		ExternalID: req.ExternalID,
		From:       req.From,
		To:         req.To,
		Body:       req.Body,
		ReceivedAt: receivedAt,
	}
	h.publish(ctx, w, logger, h.inboundSubject, envelope)
}

// readAndVerify drains the request body and, when a verifier is configured,
// checks the provider signature header against it.
func (h *WebhookHandler) readAndVerify(w http.ResponseWriter, r *http.Request, logger *slog.Logger, provider string) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, "INVALID_PAYLOAD", "failed to read request body")
		return nil, false
	}
	if h.verifier != nil {
		if err := h.verifier(provider, r.Header.Get(signatureHeader), body); err != nil {
			logger.WarnContext(r.Context(), "callback signature rejected", "error", err, "provider", provider)
			writeError(w, logger, http.StatusUnauthorized, "INVALID_SIGNATURE", "callback signature rejected")
			return nil, false
		}
	}
	return body, true
}

func (h *WebhookHandler) pathParams(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (string, uuid.UUID, bool) {
	provider := chi.URLParam(r, "provider")
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil || tenantID == uuid.Nil {
		writeError(w, logger, http.StatusBadRequest, "INVALID_TENANT", "tenant id must be a UUID")
		return "", uuid.Nil, false
	}
	return provider, tenantID, true
}

func (h *WebhookHandler) publish(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, subject string, envelope any) {
	data, err := json.Marshal(envelope)
	if err != nil {
		logger.ErrorContext(ctx, "failed to marshal callback envelope", "error", err)
		writeError(w, logger, http.StatusInternalServerError, "INTERNAL", "failed to process callback")
		return
	}
	if err := h.publisher.Publish(ctx, subject, data); err != nil {
		// Providers retry on 5xx, which is the behavior we want here.
		logger.ErrorContext(ctx, "failed to publish callback envelope", "error", err, "subject", subject)
		writeError(w, logger, http.StatusServiceUnavailable, "BROKER_UNAVAILABLE", "callback accepted later, retry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
