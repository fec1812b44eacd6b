// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deposit-service/internal/cache"
	"deposit-service/internal/chains/tron"
	"deposit-service/internal/config"
	"deposit-service/internal/handler"
	"deposit-service/internal/id"
	"deposit-service/internal/ledger"
	"deposit-service/internal/notify"
	"deposit-service/internal/paycode"
	"deposit-service/internal/repository"
	"deposit-service/internal/router"
	"deposit-service/internal/usecase"
	"deposit-service/internal/worker"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env
	_ = godotenv.Load()

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting deposit service")

	// Load configuration
	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	dbPool, err := config.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	if err := repository.EnsureSchema(ctx, dbPool); err != nil {
		logger.Fatal("failed to prepare schema", zap.Error(err))
	}

	// Initialize repositories
	orderRepo := repository.NewOrderRepository(dbPool)
	balanceRepo := repository.NewBalanceRepository(dbPool)

	// Optional redis
	var cacheSvc *cache.CacheService
	if cfg.Redis.Addr != "" {
		cacheSvc, err = cache.NewCacheService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache and leader lock", zap.Error(err))
			cacheSvc = nil
		} else {
			defer cacheSvc.Close()
		}
	}

	// Ledger providers, primary first
	providers := []ledger.Provider{
		tron.NewTronGridClient(cfg.Ledger.TronGridURL, cfg.Ledger.Timeout, cfg.Deposit.TokenDecimals, logger),
		tron.NewTronscanClient(cfg.Ledger.TronscanURL, cfg.Ledger.Timeout, cfg.Deposit.TokenDecimals, logger),
	}
	if cfg.Ledger.OKLinkURL != "" {
		providers = append(providers, tron.NewOKLinkClient(cfg.Ledger.OKLinkURL, cfg.Ledger.OKLinkAPIKey, cfg.Ledger.Timeout, logger))
	}

	var gatewayOpts []ledger.GatewayOption
	if cacheSvc != nil && cfg.Ledger.CacheTTL > 0 {
		gatewayOpts = append(gatewayOpts, ledger.WithCache(cache.NewTransferCache(cacheSvc, cfg.Ledger.CacheTTL)))
	}
	gateway := ledger.NewGateway(
		providers,
		ledger.NewKeyPool(cfg.Ledger.TronGridKeys),
		cfg.Deposit.Contract,
		cfg.Ledger.Timeout,
		logger,
		gatewayOpts...,
	)

	// Notifications
	hub := notify.NewHub(logger)
	go hub.Heartbeat(ctx, 30*time.Second)

	notifiers := []notify.Notifier{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.UserTopic, cfg.Kafka.OpsTopic, logger)
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}
	notifier := notify.NewFanout(notifiers...)

	// Initialize usecases
	orderUC := usecase.NewOrderUsecase(
		orderRepo,
		usecase.NewSuffixAllocator(cfg.Deposit.SuffixDigits, nil),
		usecase.OrderSettings{
			ReceiveAddress: cfg.Deposit.ReceiveAddress,
			Network:        cfg.Deposit.Network,
			Token:          cfg.Deposit.Token,
			MinAmount:      cfg.Deposit.MinAmount,
			Validity:       cfg.Deposit.Validity,
		},
		logger,
	)

	settler := usecase.NewSettlementEngine(orderRepo, notifier, logger)

	reconcileUC := usecase.NewReconcileUsecase(
		orderRepo,
		gateway,
		usecase.NewMatcher(cfg.Deposit.MatchTolerance),
		settler,
		notifier,
		usecase.ReconcileSettings{
			FetchLimit:  cfg.Ledger.FetchLimit,
			SweepBatch:  cfg.Deposit.SweepBatch,
			Concurrency: cfg.Deposit.SweepConcurrency,
		},
		logger,
	)

	// Background reconciliation
	var (
		leaderLock *cache.LeaderLock
		leader     worker.Leader
	)
	if cacheSvc != nil {
		host, _ := os.Hostname()
		leaderLock = cache.NewLeaderLock(cacheSvc, "reconciler", host+"-"+id.NewEventID(), 3*cfg.Deposit.PollInterval)
		leader = leaderLock
	}
	reconciler := worker.NewReconciler(reconcileUC, leader, cfg.Deposit.PollInterval, logger)
	go reconciler.Start(ctx)

	// Initialize handlers
	depositHandler := handler.NewDepositHandler(
		orderUC,
		reconcileUC,
		balanceRepo,
		paycode.NewRenderer(cfg.Paycode.QREnabled, cfg.Paycode.Timezone, logger, paycode.WithLanguage(cfg.Paycode.Language)),
		logger,
	)
	wsHandler := handler.NewWSHandler(hub, logger)

	// Setup routes
	r := router.SetupRoutes(depositHandler, wsHandler, cfg.Server.InternalAPIKey, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("deposit service started successfully",
		zap.String("port", cfg.Server.Port),
		zap.String("environment", cfg.Server.Env),
		zap.Int("ledger_providers", len(providers)))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	reconciler.Stop()
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	if leaderLock != nil {
		if err := leaderLock.Release(shutdownCtx); err != nil {
			logger.Warn("failed to release leader lock", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}
