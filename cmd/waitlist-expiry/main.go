package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prohmpiriya/studio-booking/internal/metrics"
	"github.com/prohmpiriya/studio-booking/internal/repository"
	"github.com/prohmpiriya/studio-booking/internal/service"
	"github.com/prohmpiriya/studio-booking/internal/worker"
	"github.com/prohmpiriya/studio-booking/pkg/clock"
	"github.com/prohmpiriya/studio-booking/pkg/config"
	"github.com/prohmpiriya/studio-booking/pkg/database"
	"github.com/prohmpiriya/studio-booking/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateDatabase(); err != nil {
		log.Fatalf("Invalid database config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: "waitlist-expiry-worker",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Waitlist Expiry Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to register metrics: %v", err))
	}

	dbCfg := &database.PostgresConfig{
		Host:          cfg.Database.Host,
		Port:          cfg.Database.Port,
		User:          cfg.Database.User,
		Password:      cfg.Database.Password,
		Database:      cfg.Database.DBName,
		SSLMode:       cfg.Database.SSLMode,
		MaxConns:      5,
		MinConns:      1,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to connect to database: %v", err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	pool := db.Pool()
	tx := repository.NewPostgresTransactor(pool)
	classes := repository.NewPostgresClassInstanceRepository(pool)
	bookings := repository.NewPostgresBookingRepository(pool)
	outbox := repository.NewPostgresOutboxRepository(pool)
	ledger := repository.NewPostgresCreditLedgerRepository(pool)

	clk := clock.Real{}
	credits := service.NewCreditEngine(ledger, clk)
	waitlist := service.NewWaitlistManager(tx, classes, bookings, outbox, credits, clk, cfg.Booking.OperationTimeout)

	expiryWorker := worker.NewWaitlistExpiryWorker(waitlist, &worker.WaitlistExpiryWorkerConfig{
		ScanInterval: cfg.Worker.WaitlistScanInterval,
		BatchSize:    cfg.Worker.WaitlistScanBatchSize,
	})
	if err := expiryWorker.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start waitlist expiry worker: %v", err))
	}

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down waitlist expiry worker...")

	expiryWorker.Stop()
	cancel()

	stats := expiryWorker.GetStats()
	appLog.Info(fmt.Sprintf("Waitlist expiry worker stopped (expired=%d)", stats.TotalExpired))
}
