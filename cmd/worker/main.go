package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/clinovault/clinovault/internal/app"
	"github.com/clinovault/clinovault/internal/audit"
	"github.com/clinovault/clinovault/internal/auth"
	jobmetrics "github.com/clinovault/clinovault/internal/jobs"
	"github.com/clinovault/clinovault/internal/platform/db"
	"github.com/clinovault/clinovault/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	metrics := jobmetrics.NewMetrics(nil)

	auditRepo := audit.NewRepository(dbpool)
	authService := auth.NewService(auth.NewRepository(dbpool))

	archiveJob := jobs.NewAuditArchiveJob(auditRepo, logger, metrics)
	integrityJob := jobs.NewAuditIntegrityJob(auditRepo, logger, metrics)
	pruneJob := jobs.NewSessionsPruneJob(authService, logger, metrics)

	archiveTask, err := jobs.NewAuditArchiveTask(cfg.AuditRetainDays)
	if err != nil {
		logger.Error("build archive task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewAuditIntegrityTask(cfg.AuditIntegrityWindow)
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	pruneTask, err := jobs.NewSessionsPruneTask(time.Now().UTC())
	if err != nil {
		logger.Error("build prune task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditArchive, Handler: archiveJob.Handle},
			{Type: jobs.TaskAuditIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskSessionsPrune, Handler: pruneJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: archiveTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)}},
			{Spec: "45 2 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)}},
			{Spec: "*/30 * * * *", Task: pruneTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shut down")
}
