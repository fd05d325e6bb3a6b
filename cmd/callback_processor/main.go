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
	"github.com/novasms/gateway/internal/messaging/repository/postgres"
	"github.com/novasms/gateway/internal/platform/config"
	"github.com/novasms/gateway/internal/platform/database"
	"github.com/novasms/gateway/internal/platform/logger"
	"github.com/novasms/gateway/internal/platform/messagebroker"
)

const metricsPort = 9092

func main() {
	cfg, err := config.Load("callback_processor")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Callback processor starting...", "log_level", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, "callback-processor", appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	messageRepo := postgres.NewPgMessageRepository()
	deliveryRepo := postgres.NewPgDeliveryRepository()
	changeNotifier := notifier.NewNATSNotifier(natsClient, cfg.EventSubjectPrefix, appLogger)
	statusUpdater := app.NewStatusUpdater(dbPool, messageRepo, deliveryRepo, changeNotifier, appLogger)

	consumer := app.NewCallbackConsumer(natsClient, statusUpdater, appLogger)
	if err := consumer.Start(ctx, cfg.CallbackStatusSubject, cfg.CallbackInboundSubject, cfg.CallbackQueueGroup); err != nil {
		appLogger.Error("Failed to start callback consumer", "error", err)
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
		appLogger.Info("Shutdown signal received, stopping callback consumer")
		consumer.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Callback processor terminated with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Callback processor shut down successfully")
}
