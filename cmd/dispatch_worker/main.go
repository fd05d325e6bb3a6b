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

	"github.com/novasms/gateway/internal/messaging/app"
	"github.com/novasms/gateway/internal/messaging/notifier"
	"github.com/novasms/gateway/internal/messaging/provider"
	"github.com/novasms/gateway/internal/messaging/queue"
	"github.com/novasms/gateway/internal/messaging/repository/postgres"
	"github.com/novasms/gateway/internal/platform/config"
	"github.com/novasms/gateway/internal/platform/database"
	"github.com/novasms/gateway/internal/platform/logger"
	"github.com/novasms/gateway/internal/platform/messagebroker"
)

const metricsPort = 9091

func main() {
	cfg, err := config.Load("dispatch_worker")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Dispatch worker starting...", "log_level", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, "dispatch-worker", appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	messageRepo := postgres.NewPgMessageRepository()
	deliveryRepo := postgres.NewPgDeliveryRepository()
	changeNotifier := notifier.NewNATSNotifier(natsClient, cfg.EventSubjectPrefix, appLogger)
	statusUpdater := app.NewStatusUpdater(dbPool, messageRepo, deliveryRepo, changeNotifier, appLogger)
	dispatchQueue := queue.NewNATSQueue(natsClient, cfg.DispatchSubjectPrefix, appLogger)

	var providerClient provider.Client
	if cfg.ProviderBaseURL != "" {
		providerClient = provider.NewHTTPProvider(cfg.ProviderName, cfg.ProviderBaseURL, cfg.ProviderAPIKey, &http.Client{Timeout: cfg.ProviderTimeout}, appLogger)
	} else {
		appLogger.Warn("No provider base URL configured, using mock provider")
		providerClient = provider.NewMockProvider(appLogger)
	}

	worker := app.NewDispatchWorker(natsClient, statusUpdater, providerClient, dispatchQueue, appLogger,
		cfg.ProviderTimeout, cfg.DispatchMaxAttempts, cfg.DispatchRetryBackoff)

	if err := worker.Start(ctx, cfg.DispatchSubjectPrefix, cfg.DispatchQueueGroup); err != nil {
		appLogger.Error("Failed to start dispatch consumer", "error", err)
		os.Exit(1)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", metricsPort),
		Handler:     metricsMux,
		ReadTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.Info("Metrics server listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info("Shutdown signal received, stopping dispatch worker")
		worker.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Dispatch worker terminated with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Dispatch worker shut down successfully")
}
