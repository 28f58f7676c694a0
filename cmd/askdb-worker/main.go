package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/exportjob"
	queuepostgres "github.com/askdb/askdb/internal/exportqueue/postgres"
	"github.com/askdb/askdb/internal/observability"
	s3store "github.com/askdb/askdb/internal/storage/s3"
	"github.com/askdb/askdb/internal/warehouse"
	"github.com/askdb/askdb/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("askdb-worker")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	db, err := warehouse.Open(context.Background(), warehouse.DBConfig{
		DSN:             cfg.Warehouse.DSN,
		MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
		MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
		ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open warehouse db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	objectStore, err := s3store.New(context.Background(), s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	service := &worker.Service{
		Store:       exportjob.NewStore(db),
		Queue:       queuepostgres.NewQueue(db, cfg.Worker.MaxAttempts),
		DB:          db,
		ObjectStore: objectStore,
		Config: worker.Config{
			ConsumerID:   cfg.Worker.ConsumerID,
			BatchSize:    cfg.Export.BatchSize,
			PollInterval: cfg.Worker.PollInterval,
			LeaseSeconds: cfg.Worker.LeaseSeconds,
		},
		Logger: logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("export worker started", slog.String("consumer_id", cfg.Worker.ConsumerID))
	if err := service.Run(ctx); err != nil {
		logger.Error("export worker failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("export worker stopped")
}
