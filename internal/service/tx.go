package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/internal/metrics"
	"github.com/prohmpiriya/studio-booking/internal/repository"
	"github.com/prohmpiriya/studio-booking/pkg/logger"
	"github.com/prohmpiriya/studio-booking/pkg/retry"
	"go.uber.org/zap"
)

const (
	defaultOperationTimeout = 5 * time.Second
	defaultRetryPause       = 20 * time.Millisecond
)

// ErrOperationTimeout is returned when a unit of work does not finish within
// the configured operation timeout
var ErrOperationTimeout = errors.New("operation timed out")

// txRunner runs a unit of work with a bounded timeout. A transaction conflict
// is retried once with a fresh read before surfacing ErrConcurrentUpdate.
type txRunner struct {
	tx      repository.Transactor
	timeout time.Duration
	pause   time.Duration
}

func newTxRunner(tx repository.Transactor, timeout time.Duration) *txRunner {
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return &txRunner{tx: tx, timeout: timeout, pause: defaultRetryPause}
}

func (r *txRunner) run(ctx context.Context, operation string, fn func(txCtx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result := retry.DoWithCallback(ctx, retry.OnceConfig(r.pause), func(ctx context.Context) error {
		return r.tx.WithTx(ctx, fn)
	}, func(attempt int, err error, next time.Duration) {
		metrics.RecordTxRetry(ctx, operation)
		logger.Get().WarnContext(ctx, fmt.Sprintf("%s hit a transaction conflict, retrying in %s", operation, next),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})

	switch {
	case result.Err == nil:
		return nil
	case errors.Is(result.Err, retry.ErrMaxRetriesExceeded):
		return domain.ErrConcurrentUpdate
	case errors.Is(result.Err, retry.ErrContextCanceled),
		errors.Is(result.Err, context.DeadlineExceeded):
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s: %w", operation, ErrOperationTimeout)
		}
		return ctx.Err()
	}
	return result.Err
}

// enqueueNotification writes a notification to the outbox inside the caller's
// transaction. The relay delivers it after commit.
func enqueueNotification(ctx context.Context, outbox repository.OutboxRepository, n domain.Notification) error {
	msg, err := domain.NotificationOutboxMessage(uuid.New().String(), n)
	if err != nil {
		return fmt.Errorf("failed to build %s notification: %w", n.Type, err)
	}
	if err := outbox.Create(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue %s notification: %w", n.Type, err)
	}
	return nil
}
