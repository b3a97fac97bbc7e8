package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/clinovault/clinovault/internal/app"
	"github.com/clinovault/clinovault/internal/audit"
	audithttp "github.com/clinovault/clinovault/internal/audit/http"
	"github.com/clinovault/clinovault/internal/auth"
	"github.com/clinovault/clinovault/internal/encryption"
	"github.com/clinovault/clinovault/internal/observability"
	"github.com/clinovault/clinovault/internal/platform/cache"
	"github.com/clinovault/clinovault/internal/platform/db"
	"github.com/clinovault/clinovault/internal/policy"
	"github.com/clinovault/clinovault/internal/principal"
	"github.com/clinovault/clinovault/internal/records"
	"github.com/clinovault/clinovault/internal/relationship"
	"github.com/clinovault/clinovault/internal/schema"
	"github.com/clinovault/clinovault/internal/shared"
	"github.com/clinovault/clinovault/internal/users"
	"github.com/clinovault/clinovault/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "clinovault_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())

	// Policy and field map load fatally: serving a single request against a
	// malformed table is worse than not starting.
	relationshipLookup := relationship.NewLookup(relationship.NewRepository(dbpool), redisClient, 30*time.Second, logger)

	policyCfg, err := policy.LoadConfig(cfg.PolicyPath)
	if err != nil {
		logger.Error("load policy", slog.Any("error", err))
		os.Exit(1)
	}
	hierarchy, engine, err := policyCfg.Build(relationshipLookup.Predicates(), logger)
	if err != nil {
		logger.Error("build policy", slog.Any("error", err))
		os.Exit(1)
	}

	fieldCfg, err := schema.LoadConfig(cfg.FieldMapPath)
	if err != nil {
		logger.Error("load field map", slog.Any("error", err))
		os.Exit(1)
	}
	fieldMap, err := fieldCfg.Build()
	if err != nil {
		logger.Error("build field map", slog.Any("error", err))
		os.Exit(1)
	}
	if err := fieldMap.CrossValidate(engine); err != nil {
		logger.Error("field map references unknown attribute", slog.Any("error", err))
		os.Exit(1)
	}

	var gateway encryption.Gateway
	switch cfg.EncryptionBackend {
	case "memory":
		logger.Warn("using in-memory encryption gateway; not for production")
		gateway = encryption.NewMemoryGateway()
	default:
		vaultGateway, err := encryption.NewVaultGateway(encryption.VaultConfig{
			Address:   cfg.VaultAddr,
			Token:     cfg.VaultToken,
			Mount:     cfg.VaultMount,
			KeyPrefix: cfg.VaultKeyPrefix,
		})
		if err != nil {
			logger.Error("init vault gateway", slog.Any("error", err))
			os.Exit(1)
		}
		if err := vaultGateway.EnsureKeys(ctx); err != nil {
			logger.Error("ensure transit keys", slog.Any("error", err))
			os.Exit(1)
		}
		gateway = vaultGateway
	}

	metrics := observability.NewMetrics()

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo, hierarchy, engine, logger, metrics)
	auditHandler := audithttp.NewHandler(logger, auditService, audit.NewExporter())

	usersService := users.NewService(users.NewRepository(dbpool), hierarchy, engine, auditService)
	resolver := principal.NewResolver(usersService, redisClient, cfg.PrincipalCacheTTL, logger)
	usersService.Invalidator = resolver
	usersHandler := users.NewHandler(logger, usersService)

	projector := records.NewProjector(hierarchy, engine, fieldMap, gateway, auditService, logger, metrics)
	recordsService := records.NewService(records.NewRepository(dbpool), projector, fieldMap)
	recordsHandler := records.NewHandler(logger, recordsService)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		Principal:      principal.Middleware{Resolver: resolver, Logger: logger},
		AuthHandler:    authHandler,
		RecordsHandler: recordsHandler,
		AuditHandler:   auditHandler,
		UsersHandler:   usersHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
