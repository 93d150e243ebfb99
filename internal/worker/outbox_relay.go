package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/internal/metrics"
	"github.com/prohmpiriya/studio-booking/internal/notifier"
	"github.com/prohmpiriya/studio-booking/internal/repository"
	"github.com/prohmpiriya/studio-booking/pkg/clock"
	"github.com/prohmpiriya/studio-booking/pkg/logger"
	"github.com/prohmpiriya/studio-booking/pkg/retry"
)

// OutboxRelayConfig contains configuration for the outbox relay
type OutboxRelayConfig struct {
	// PollInterval is the interval between polling for pending messages
	PollInterval time.Duration
	// BatchSize is the number of messages claimed per poll
	BatchSize int
	// PublishTimeout bounds a single publish call
	PublishTimeout time.Duration
	// CleanupInterval is the interval between cleanup of old published messages
	CleanupInterval time.Duration
	// Retention is how long published messages are kept
	Retention time.Duration
}

// DefaultOutboxRelayConfig returns default configuration
func DefaultOutboxRelayConfig() *OutboxRelayConfig {
	return &OutboxRelayConfig{
		PollInterval:    500 * time.Millisecond,
		BatchSize:       100,
		PublishTimeout:  5 * time.Second,
		CleanupInterval: time.Hour,
		Retention:       7 * 24 * time.Hour,
	}
}

// OutboxRelay delivers notifications written to the outbox by booking
// transactions. Delivery is at-least-once; a message that exhausts its
// retries is marked failed and copied to the dead-letter destination.
type OutboxRelay struct {
	tx        repository.Transactor
	outbox    repository.OutboxRepository
	publisher notifier.Publisher
	dlq       retry.DLQPublisher
	clock     clock.Clock
	config    *OutboxRelayConfig
	log       *logger.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool

	// Stats
	totalPublished   int64
	totalFailed      int64
	totalDeadLetters int64
	lastPollTime     time.Time
}

// NewOutboxRelay creates a new outbox relay
func NewOutboxRelay(
	tx repository.Transactor,
	outbox repository.OutboxRepository,
	publisher notifier.Publisher,
	dlq retry.DLQPublisher,
	clk clock.Clock,
	config *OutboxRelayConfig,
) *OutboxRelay {
	defaults := DefaultOutboxRelayConfig()
	if config == nil {
		config = defaults
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = defaults.PublishTimeout
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	if dlq == nil {
		dlq = retry.NewNoOpDLQPublisher()
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &OutboxRelay{
		tx:        tx,
		outbox:    outbox,
		publisher: publisher,
		dlq:       dlq,
		clock:     clk,
		config:    config,
		log:       logger.Get(),
		stopCh:    make(chan struct{}),
	}
}

// Start starts the poller and the cleanup loop
func (w *OutboxRelay) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox relay already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info(fmt.Sprintf("Starting outbox relay (transport: %s, destination: %s)",
		w.publisher.Name(), w.publisher.Destination()))

	w.wg.Add(2)
	go w.pollLoop(ctx)
	go w.cleanupLoop(ctx)

	return nil
}

// Stop stops the relay and waits for in-flight work
func (w *OutboxRelay) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping outbox relay")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Outbox relay stopped")
}

func (w *OutboxRelay) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.log.Error(fmt.Sprintf("Failed to relay outbox batch: %v", err))
			}
		}
	}
}

func (w *OutboxRelay) cleanupLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			deleted, err := w.Cleanup(ctx)
			if err != nil {
				w.log.Error(fmt.Sprintf("Failed to cleanup old messages: %v", err))
			} else if deleted > 0 {
				w.log.Info(fmt.Sprintf("Cleaned up %d old published messages", deleted))
			}
		}
	}
}

// ProcessBatch claims up to BatchSize pending messages and publishes them.
// Claims are held by the surrounding transaction so concurrent relays skip
// each other's rows. Returns the number published.
func (w *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	w.mu.Lock()
	w.lastPollTime = w.clock.Now()
	w.mu.Unlock()

	published := 0
	err := w.tx.WithTx(ctx, func(txCtx context.Context) error {
		published = 0

		messages, err := w.outbox.FetchPending(txCtx, w.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to fetch pending messages: %w", err)
		}

		for _, msg := range messages {
			ok, err := w.relay(txCtx, msg)
			if err != nil {
				return err
			}
			if ok {
				published++
			}
		}
		return nil
	})
	return published, err
}

// relay publishes one message and records the outcome on its row
func (w *OutboxRelay) relay(ctx context.Context, msg *domain.OutboxMessage) (bool, error) {
	pubCtx, cancel := context.WithTimeout(ctx, w.config.PublishTimeout)
	pubErr := w.publisher.Publish(pubCtx, msg)
	cancel()

	now := w.clock.Now()
	if pubErr == nil {
		if err := w.outbox.MarkAsPublished(ctx, msg.ID, now); err != nil {
			return false, fmt.Errorf("failed to mark message %s as published: %w", msg.ID, err)
		}
		metrics.RecordOutboxPublish(ctx, msg.EventType, true)
		w.mu.Lock()
		w.totalPublished++
		w.mu.Unlock()
		return true, nil
	}

	metrics.RecordOutboxPublish(ctx, msg.EventType, false)
	w.log.Warn(fmt.Sprintf("Failed to publish message %s (attempt %d/%d): %v",
		msg.ID, msg.RetryCount+1, msg.MaxRetries, pubErr))

	if err := w.outbox.MarkAsFailed(ctx, msg.ID, pubErr.Error(), now); err != nil {
		return false, fmt.Errorf("failed to mark message %s as failed: %w", msg.ID, err)
	}
	w.mu.Lock()
	w.totalFailed++
	w.mu.Unlock()

	// mirror the row update to learn whether retries ran out
	msg.MarkAsFailed(pubErr.Error(), now)
	if msg.Status == domain.OutboxStatusFailed {
		w.deadLetter(ctx, msg, pubErr, now)
	}
	return false, nil
}

func (w *OutboxRelay) deadLetter(ctx context.Context, msg *domain.OutboxMessage, cause error, now time.Time) {
	err := w.dlq.PublishToDLQ(ctx, &retry.DLQMessage{
		ID:             msg.ID,
		OriginalTopic:  w.publisher.Destination(),
		OriginalKey:    msg.PartitionKey,
		Payload:        json.RawMessage(msg.Payload),
		Headers:        map[string]string{"event_type": msg.EventType},
		Error:          cause.Error(),
		Attempts:       msg.RetryCount,
		FirstAttemptAt: msg.CreatedAt,
		LastAttemptAt:  now,
	})
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to dead-letter message %s: %v", msg.ID, err))
		return
	}
	w.mu.Lock()
	w.totalDeadLetters++
	w.mu.Unlock()
	w.log.Error(fmt.Sprintf("Message %s moved to %s after %d attempts",
		msg.ID, w.dlq.GetDLQTopic(w.publisher.Destination()), msg.RetryCount))
}

// Cleanup deletes published messages older than the retention period
func (w *OutboxRelay) Cleanup(ctx context.Context) (int64, error) {
	return w.outbox.DeletePublished(ctx, w.clock.Now().Add(-w.config.Retention))
}

// GetStats returns relay statistics
func (w *OutboxRelay) GetStats() *OutboxRelayStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &OutboxRelayStats{
		IsRunning:        w.running,
		TotalPublished:   w.totalPublished,
		TotalFailed:      w.totalFailed,
		TotalDeadLetters: w.totalDeadLetters,
		LastPollTime:     w.lastPollTime,
	}
}

// OutboxRelayStats contains relay statistics
type OutboxRelayStats struct {
	IsRunning        bool      `json:"is_running"`
	TotalPublished   int64     `json:"total_published"`
	TotalFailed      int64     `json:"total_failed"`
	TotalDeadLetters int64     `json:"total_dead_letters"`
	LastPollTime     time.Time `json:"last_poll_time"`
}
