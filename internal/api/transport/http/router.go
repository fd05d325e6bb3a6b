package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/novasms/gateway/internal/api/middleware"
)

// RouterConfig wires the handlers and cross-cutting middleware into one mux.
type RouterConfig struct {
	JWTSecret      string
	RequestsPerMin int

	Messages *MessageHandler
	Webhooks *WebhookHandler
	Admin    *AdminHandler
	Logger   *slog.Logger
}

// NewRouter builds the API mux. Message and admin routes require a tenant
// token; webhook routes are addressed by tenant id in the path and are
// expected to sit behind provider IP allowlisting.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chi_middleware.RequestID)
	r.Use(chi_middleware.RealIP)
	r.Use(chi_middleware.Recoverer)
	r.Use(chi_middleware.Timeout(30 * time.Second))
	if cfg.RequestsPerMin > 0 {
		r.Use(httprate.Limit(cfg.RequestsPerMin, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.JWTSecret, cfg.Logger))
		cfg.Messages.RegisterRoutes(r)
		cfg.Admin.RegisterRoutes(r)
	})

	cfg.Webhooks.RegisterRoutes(r)
	return r
}
