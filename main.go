package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"upbitSignalBot/config"
	"upbitSignalBot/internal/adapters/logger"
	"upbitSignalBot/internal/adapters/sqlite"
	"upbitSignalBot/internal/adapters/upbit"
	"upbitSignalBot/internal/app"
	"upbitSignalBot/internal/guard"
	"upbitSignalBot/internal/position"
	"upbitSignalBot/internal/server"
	"upbitSignalBot/internal/telemetry"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(logger.ParseLevel(cfg.LogLevel))
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// Root context is cancelled on SIGINT/SIGTERM and bounds every
	// background goroutine.
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Telemetry
	tracker := telemetry.NewTracker(cfg.EventRingSize)

	// 4. Initialize Event Journal (Database Adapter)
	journal, err := sqlite.NewJournal(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize event journal")
		log.Fatalf("FATAL: Failed to initialize event journal: %v", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing event journal")
		}
	}()

	// 5. Initialize Exchange Client (Upbit Adapter)
	exchange, err := upbit.New(upbit.Config{
		AccessKey:          cfg.UpbitAccessKey,
		SecretKey:          cfg.UpbitSecretKey,
		BaseURL:            cfg.UpbitBaseURL,
		Logger:             appLogger,
		Health:             tracker,
		OrderRetryAttempts: cfg.OrderRetryAttempts,
		OrderRetryWaitMin:  cfg.OrderRetryWaitMin,
		OrderRetryWaitMax:  cfg.OrderRetryWaitMax,
		FillTimeout:        cfg.FillTimeout,
		FillPoll:           cfg.FillPoll,
		PriceRetryAttempts: cfg.PriceRetryAttempts,
		PriceRetryWaitMin:  cfg.PriceRetryWaitMin,
		PriceRetryWaitMax:  cfg.PriceRetryWaitMax,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Upbit client")
		log.Fatalf("FATAL: Failed to initialize Upbit client: %v", err)
	}
	appLogger.Info(context.Background(), "Upbit client initialized")

	// 6. Initialize Position Manager and Watcher
	positions := position.NewManager(appLogger)
	watcher, err := app.NewWatcher(app.WatcherConfig{
		Exchange:    exchange,
		Positions:   positions,
		Logger:      appLogger,
		Tracker:     tracker,
		Journal:     journal,
		BaseContext: rootCtx,
		Interval:    cfg.WatchInterval,
		FillPoll:    cfg.FillPoll,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize price watcher")
		log.Fatalf("FATAL: Failed to initialize price watcher: %v", err)
	}

	// 7. Initialize Signal Coordinator
	coordinator, err := app.NewCoordinator(app.CoordinatorConfig{
		Exchange:    exchange,
		Positions:   positions,
		Guard:       guard.New(cfg.SignalTTL),
		Watcher:     watcher,
		Logger:      appLogger,
		Tracker:     tracker,
		Journal:     journal,
		MinOrderKRW: cfg.MinOrderKRW,
		FillPoll:    cfg.FillPoll,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize coordinator")
		log.Fatalf("FATAL: Failed to initialize coordinator: %v", err)
	}

	// 8. Startup Recovery
	if err := app.RunRecovery(rootCtx, app.RecoveryConfig{
		Exchange:   exchange,
		Positions:  positions,
		Watcher:    watcher,
		Logger:     appLogger,
		Tracker:    tracker,
		Journal:    journal,
		Skip:       cfg.SkipRecovery,
		Market:     cfg.RecoveryMarket,
		TakeProfit: cfg.RecoveryTakeProfit,
		StopLoss:   cfg.RecoveryStopLoss,
	}); err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Startup recovery failed")
		log.Fatalf("FATAL: Startup recovery failed: %v", err)
	}

	// 9. Start HTTP Server
	srv, err := server.New(server.Config{
		Addr:        cfg.ListenAddr,
		Coordinator: coordinator,
		Watcher:     watcher,
		Positions:   positions,
		Exchange:    exchange,
		Tracker:     tracker,
		Journal:     journal,
		Logger:      appLogger,
		Token:       cfg.WebhookToken,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize HTTP server")
		log.Fatalf("FATAL: Failed to initialize HTTP server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			appLogger.Error(context.Background(), err, "HTTP server exited with error")
			log.Fatalf("FATAL: HTTP server exited with error: %v", err)
		}
	case <-rootCtx.Done():
		appLogger.Info(context.Background(), "Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(context.Background(), err, "HTTP server shutdown failed")
		}
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
