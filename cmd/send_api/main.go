package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/novasms/gateway/internal/api/transport/http"
	"github.com/novasms/gateway/internal/messaging/app"
	"github.com/novasms/gateway/internal/messaging/notifier"
	"github.com/novasms/gateway/internal/messaging/queue"
	"github.com/novasms/gateway/internal/messaging/repository/postgres"
	"github.com/novasms/gateway/internal/platform/config"
	"github.com/novasms/gateway/internal/platform/database"
	"github.com/novasms/gateway/internal/platform/logger"
	"github.com/novasms/gateway/internal/platform/messagebroker"
	"github.com/novasms/gateway/internal/platform/redisclient"
	"github.com/novasms/gateway/internal/ratelimit"
)

func main() {
	cfg, err := config.Load("send_api")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Send API starting...", "log_level", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, "send-api", appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	redisClient, err := redisclient.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		appLogger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	limiter := ratelimit.NewLimiter(
		ratelimit.NewRedisCounterStore(redisClient),
		ratelimit.NewStaticTierResolver(cfg.TenantTiers),
		ratelimit.DefaultQuotas(),
		appLogger,
		time.Local,
	)

	messageRepo := postgres.NewPgMessageRepository()
	deliveryRepo := postgres.NewPgDeliveryRepository()
	dispatchQueue := queue.NewNATSQueue(natsClient, cfg.DispatchSubjectPrefix, appLogger)
	changeNotifier := notifier.NewNATSNotifier(natsClient, cfg.EventSubjectPrefix, appLogger)

	sendService := app.NewSendService(dbPool, messageRepo, limiter, dispatchQueue, changeNotifier, cfg.ProviderName, appLogger)
	statusUpdater := app.NewStatusUpdater(dbPool, messageRepo, deliveryRepo, changeNotifier, appLogger)

	var webhookVerifier apihttp.SignatureVerifier
	if cfg.WebhookSecret != "" {
		webhookVerifier = apihttp.HMACSignatureVerifier(cfg.WebhookSecret)
	}

	router := apihttp.NewRouter(apihttp.RouterConfig{
		JWTSecret:      cfg.JWTSecret,
		RequestsPerMin: cfg.APIRequestsPerMin,
		Messages:       apihttp.NewMessageHandler(sendService, statusUpdater, appLogger),
		Webhooks:       apihttp.NewWebhookHandler(natsClient, cfg.CallbackStatusSubject, cfg.CallbackInboundSubject, webhookVerifier, appLogger),
		Admin:          apihttp.NewAdminHandler(limiter, appLogger),
		Logger:         appLogger,
	})
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.APIPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info("Shutdown signal received, draining HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Send API terminated with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Send API shut down successfully")
}
