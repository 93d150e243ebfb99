package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var errOutboxMessageNotFound = errors.New("outbox message not found")

// PostgresOutboxRepository implements OutboxRepository using PostgreSQL
type PostgresOutboxRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresOutboxRepository creates a new PostgresOutboxRepository
func NewPostgresOutboxRepository(pool *pgxpool.Pool) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{pool: pool}
}

// Create creates a new outbox message in the caller's transaction
func (r *PostgresOutboxRepository) Create(ctx context.Context, msg *domain.OutboxMessage) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.outbox.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("outbox_id", msg.ID),
		attribute.String("event_type", msg.EventType),
	)

	query := `
		INSERT INTO outbox (
			id, aggregate_type, aggregate_id, event_type,
			payload, partition_key, status,
			retry_count, max_retries, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		msg.ID,
		msg.AggregateType,
		msg.AggregateID,
		msg.EventType,
		msg.Payload,
		msg.PartitionKey,
		msg.Status.String(),
		msg.RetryCount,
		msg.MaxRetries,
		msg.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create outbox message: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// FetchPending locks pending messages for the surrounding transaction
func (r *PostgresOutboxRepository) FetchPending(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.outbox.fetch_pending")
	defer span.End()

	query := `
		SELECT
			id, aggregate_type, aggregate_id, event_type,
			payload, partition_key, status,
			retry_count, max_retries, last_error,
			created_at, processed_at, published_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get pending messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanOutboxMessages(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(messages)))
	span.SetStatus(codes.Ok, "")
	return messages, nil
}

// MarkAsPublished marks a message as successfully published
func (r *PostgresOutboxRepository) MarkAsPublished(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE outbox SET
			status = 'published',
			processed_at = $2,
			published_at = $2
		WHERE id = $1
	`

	result, err := conn(ctx, r.pool).Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark message as published: %w", err)
	}

	if result.RowsAffected() == 0 {
		return errOutboxMessageNotFound
	}

	return nil
}

// MarkAsFailed records a failed attempt and keeps the message pending until
// max_retries is reached
func (r *PostgresOutboxRepository) MarkAsFailed(ctx context.Context, id string, errMsg string, at time.Time) error {
	query := `
		UPDATE outbox SET
			status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
			last_error = $2,
			retry_count = retry_count + 1,
			processed_at = $3
		WHERE id = $1
	`

	result, err := conn(ctx, r.pool).Exec(ctx, query, id, errMsg, at)
	if err != nil {
		return fmt.Errorf("failed to mark message as failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return errOutboxMessageNotFound
	}

	return nil
}

// DeletePublished deletes published messages older than cutoff
func (r *PostgresOutboxRepository) DeletePublished(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM outbox
		WHERE status = 'published' AND published_at < $1
	`

	result, err := conn(ctx, r.pool).Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete published messages: %w", err)
	}

	return result.RowsAffected(), nil
}

// scanOutboxMessages scans rows into OutboxMessage slice
func scanOutboxMessages(rows pgx.Rows) ([]*domain.OutboxMessage, error) {
	var messages []*domain.OutboxMessage

	for rows.Next() {
		msg := &domain.OutboxMessage{}
		var (
			status    string
			lastError *string
		)

		err := rows.Scan(
			&msg.ID,
			&msg.AggregateType,
			&msg.AggregateID,
			&msg.EventType,
			&msg.Payload,
			&msg.PartitionKey,
			&status,
			&msg.RetryCount,
			&msg.MaxRetries,
			&lastError,
			&msg.CreatedAt,
			&msg.ProcessedAt,
			&msg.PublishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}

		msg.Status = domain.OutboxStatus(status)
		msg.LastError = derefString(lastError)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}

	return messages, nil
}

var _ OutboxRepository = (*PostgresOutboxRepository)(nil)
