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
	"github.com/prohmpiriya/studio-booking/internal/notifier"
	"github.com/prohmpiriya/studio-booking/internal/repository"
	"github.com/prohmpiriya/studio-booking/internal/worker"
	"github.com/prohmpiriya/studio-booking/pkg/clock"
	"github.com/prohmpiriya/studio-booking/pkg/config"
	"github.com/prohmpiriya/studio-booking/pkg/database"
	"github.com/prohmpiriya/studio-booking/pkg/kafka"
	"github.com/prohmpiriya/studio-booking/pkg/logger"
	pkgredis "github.com/prohmpiriya/studio-booking/pkg/redis"
)

const serviceName = "outbox-relay"

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
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info(fmt.Sprintf("Starting Outbox Relay (transport: %s)...", cfg.Notifier.Transport))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to register metrics: %v", err))
	}

	// Initialize database connection
	dbCfg := &database.PostgresConfig{
		Host:          cfg.Database.Host,
		Port:          cfg.Database.Port,
		User:          cfg.Database.User,
		Password:      cfg.Database.Password,
		Database:      cfg.Database.DBName,
		SSLMode:       cfg.Database.SSLMode,
		MaxConns:      10,
		MinConns:      2,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to connect to database: %v", err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	// Connect only the client the selected transport needs
	var deps notifier.Deps
	switch cfg.Notifier.Transport {
	case notifier.TransportKafka:
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:        cfg.Kafka.Brokers,
			ClientID:       serviceName,
			MaxRetries:     3,
			RetryInterval:  2 * time.Second,
			ProduceTimeout: 5 * time.Second,
		})
		if err != nil {
			appLog.Fatal(fmt.Sprintf("Failed to create Kafka producer: %v", err))
		}
		defer producer.Close()
		deps.Producer = producer
		appLog.Info("Kafka producer connected")
	case notifier.TransportRedis:
		redis, err := pkgredis.NewClient(ctx, &pkgredis.Config{
			Host:          cfg.Redis.Host,
			Port:          cfg.Redis.Port,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			PoolSize:      10,
			MinIdleConns:  2,
			MaxRetries:    3,
			RetryInterval: 2 * time.Second,
		})
		if err != nil {
			appLog.Fatal(fmt.Sprintf("Failed to connect to Redis: %v", err))
		}
		defer redis.Close()
		deps.Redis = redis.Client()
		appLog.Info("Redis connected")
	}

	publisher, dlq, err := notifier.New(&notifier.Config{
		Transport:  cfg.Notifier.Transport,
		Topic:      cfg.Kafka.NotificationTopic,
		RedisQueue: cfg.Notifier.RedisQueue,
		Source:     serviceName,
	}, deps)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to create notification publisher: %v", err))
	}

	pool := db.Pool()
	relay := worker.NewOutboxRelay(
		repository.NewPostgresTransactor(pool),
		repository.NewPostgresOutboxRepository(pool),
		publisher,
		dlq,
		clock.Real{},
		&worker.OutboxRelayConfig{
			PollInterval: cfg.Worker.OutboxPollInterval,
			BatchSize:    cfg.Worker.OutboxBatchSize,
			Retention:    cfg.Worker.OutboxRetention,
		},
	)

	if err := relay.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start outbox relay: %v", err))
	}

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down outbox relay...")

	relay.Stop()
	cancel()

	stats := relay.GetStats()
	appLog.Info(fmt.Sprintf("Outbox relay stopped (published=%d, failed=%d, dead_letters=%d)",
		stats.TotalPublished, stats.TotalFailed, stats.TotalDeadLetters))
}
