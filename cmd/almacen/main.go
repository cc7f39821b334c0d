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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/almacen-pos/almacen/internal/app"
	"github.com/almacen-pos/almacen/internal/auth"
	"github.com/almacen-pos/almacen/internal/catalog"
	"github.com/almacen-pos/almacen/internal/credit"
	"github.com/almacen-pos/almacen/internal/inventory"
	"github.com/almacen-pos/almacen/internal/returns"
	"github.com/almacen-pos/almacen/internal/sales"
	"github.com/almacen-pos/almacen/internal/shared"
	"github.com/almacen-pos/almacen/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	tokens := shared.NewTokenManager(redisClient, cfg.TokenSecret, cfg.TokenTTL)
	auditLogger := shared.NewAuditLogger(dbpool)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, tokens)
	authHandler := auth.NewHandler(logger, authService)
	authMiddleware := auth.Middleware{Tokens: tokens, Logger: logger}

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo)
	catalogHandler := catalog.NewHandler(logger, catalogService, authMiddleware)

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, inventory.ServiceConfig{
		LowStockThreshold: cfg.LowStockThreshold,
	})
	inventoryHandler := inventory.NewHandler(logger, inventoryService, authMiddleware)

	salesRepo := sales.NewRepository(dbpool)
	salesService := sales.NewService(salesRepo, auditLogger, sales.ServiceConfig{TaxRate: cfg.TaxRate()})
	salesHandler := sales.NewHandler(logger, salesService)

	returnsRepo := returns.NewRepository(dbpool)
	returnsService := returns.NewService(returnsRepo, auditLogger)
	returnsHandler := returns.NewHandler(logger, returnsService)

	creditRepo := credit.NewRepository(dbpool)
	creditService := credit.NewService(creditRepo, auditLogger)
	creditHandler := credit.NewHandler(logger, creditService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, redisClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthHandler:      authHandler,
		AuthMiddleware:   authMiddleware,
		CatalogHandler:   catalogHandler,
		InventoryHandler: inventoryHandler,
		SalesHandler:     salesHandler,
		ReturnsHandler:   returnsHandler,
		CreditHandler:    creditHandler,
		JobHandler:       jobHandler,
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
