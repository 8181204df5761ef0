package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/complyhq/issues-backend/v2/config"
	"github.com/complyhq/issues-backend/v2/events/modules/scans"
	"github.com/complyhq/issues-backend/v2/internal/api"
	"github.com/complyhq/issues-backend/v2/internal/kafka"
	"github.com/complyhq/issues-backend/v2/internal/lifecycle"
	"github.com/complyhq/issues-backend/v2/internal/metrics"
	"github.com/complyhq/issues-backend/v2/internal/notify"
	"github.com/complyhq/issues-backend/v2/internal/services"
	"github.com/complyhq/issues-backend/v2/restapi"
	"github.com/complyhq/issues-backend/v2/restapi/modules/admin"
	"github.com/complyhq/issues-backend/v2/restapi/modules/auth"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the Kafka scan consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			return runServe(cmd.Context(), cfg, logger)
		},
	}
}

func newPublisher(cfg *config.Config, logger *zap.Logger) (notify.Publisher, func() error) {
	if !cfg.Kafka.Enabled {
		return notify.LogPublisher{Logger: logger}, func() error { return nil }
	}
	producer := scans.NewLifecycleProducer(cfg.Kafka.Brokers, cfg.Kafka.LifecycleTopic, kafka.Transport(cfg.Kafka))
	return producer, producer.Close
}

func runServe(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	issueStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer issueStore.Close()

	publisher, closePublisher := newPublisher(cfg, logger)
	notifier := notify.New(publisher, cfg.Notify.QueueSize, logger)

	m := metrics.New()
	if err := m.WatchNotifier(notifier); err != nil {
		return err
	}

	lc := lifecycleConfig(cfg)
	reconciler := lifecycle.NewReconciler(issueStore, notifier, logger, lc)
	reconciler.SetRecorder(m)
	transitioner := lifecycle.NewTransitioner(issueStore, auth.WorkspaceAuthorizer{}, notifier, logger, lc)
	backfill := admin.NewBackfillRunner(lifecycle.NewBackfiller(issueStore, logger, lc), logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, 0)
	if tokens == nil {
		logger.Warn("JWT_SECRET not set, trusting gateway identity headers")
	}

	app, err := api.NewFiberApp(restapi.Deps{
		Store:        issueStore,
		Reconciler:   reconciler,
		Transitioner: transitioner,
		Backfill:     backfill,
		Tokens:       tokens,
		Logger:       logger,
	}, api.Options{BodyLimitMB: cfg.Server.BodyLimitMB, Metrics: m})
	if err != nil {
		return err
	}

	if cfg.Kafka.Enabled {
		service := &services.ScanServiceWrapper{Reconciler: reconciler}
		if err := kafka.RunEventProcessor(ctx, cfg.Kafka, service, logger); err != nil {
			logger.Error("Kafka event processor unavailable, continuing with HTTP ingestion only", zap.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Backend),
			zap.String("fingerprint_algorithm", cfg.Fingerprint.Algorithm))
		errCh <- app.Listen(":" + cfg.Server.Port)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logger.Info("Shutting down")
		err = app.ShutdownWithTimeout(shutdownTimeout)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if werr := backfill.Wait(drainCtx); werr != nil {
		logger.Warn("Backfill still running at shutdown", zap.Error(werr))
	}
	if cerr := notifier.Close(drainCtx); cerr != nil {
		logger.Warn("Lifecycle events left undelivered", zap.Error(cerr))
	}
	if cerr := closePublisher(); cerr != nil {
		logger.Warn("Failed to close lifecycle publisher", zap.Error(cerr))
	}

	stats := notifier.Stats()
	logger.Info("Server stopped",
		zap.Int64("events_delivered", stats.Delivered),
		zap.Int64("events_failed", stats.Failed),
		zap.Int64("events_dropped", stats.Dropped))
	return err
}
