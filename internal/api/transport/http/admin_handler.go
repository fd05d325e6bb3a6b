package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/novasms/gateway/internal/api/middleware"
	"github.com/novasms/gateway/internal/ratelimit"
)

// QuotaService is the limiter surface the admin endpoints call.
type QuotaService interface {
	CheckOnly(ctx context.Context, tenantID string, messageType ratelimit.MessageType) *ratelimit.Result
	Reset(ctx context.Context, tenantID string, messageType ratelimit.MessageType) error
}

// AdminHandler exposes quota introspection and counter reset for the
// authenticated tenant.
type AdminHandler struct {
	quotas QuotaService
	logger *slog.Logger
}

func NewAdminHandler(quotas QuotaService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{quotas: quotas, logger: logger.With("handler", "admin")}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/limits/{messageType}", h.handleGetQuota)
	r.Delete("/limits/{messageType}", h.handleResetQuota)
}

func (h *AdminHandler) handleGetQuota(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		writeError(w, logger, http.StatusUnauthorized, "UNAUTHENTICATED", "tenant not authenticated")
		return
	}
	messageType, ok := parseMessageType(w, r, logger)
	if !ok {
		return
	}

	res := h.quotas.CheckOnly(ctx, tenant.ID.String(), messageType)
	writeJSON(w, logger, http.StatusOK, QuotaResponse{
		MessageType: string(messageType),
		Allowed:     res.Allowed,
		Remaining:   res.Remaining,
		ResetAt:     res.ResetAt,
	})
}

func (h *AdminHandler) handleResetQuota(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		writeError(w, logger, http.StatusUnauthorized, "UNAUTHENTICATED", "tenant not authenticated")
		return
	}
	messageType, ok := parseMessageType(w, r, logger)
	if !ok {
		return
	}

	if err := h.quotas.Reset(ctx, tenant.ID.String(), messageType); err != nil {
		logger.ErrorContext(ctx, "quota reset failed", "error", err, "tenant_id", tenant.ID)
		writeError(w, logger, http.StatusInternalServerError, "INTERNAL", "failed to reset counters")
		return
	}
	logger.InfoContext(ctx, "quota counters reset", "tenant_id", tenant.ID, "message_type", messageType)
	w.WriteHeader(http.StatusNoContent)
}

func parseMessageType(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (ratelimit.MessageType, bool) {
	switch mt := chi.URLParam(r, "messageType"); mt {
	case string(ratelimit.MessageTypeSMS):
		return ratelimit.MessageTypeSMS, true
	case string(ratelimit.MessageTypeMMS):
		return ratelimit.MessageTypeMMS, true
	default:
		writeError(w, logger, http.StatusBadRequest, "INVALID_MESSAGE_TYPE", "message type must be sms or mms")
		return "", false
	}
}
