package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/pkg/database"
	"github.com/prohmpiriya/studio-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const classColumns = `
	id, studio_id, capacity, booked_count, status,
	to_char(start_date, 'YYYY-MM-DD'), to_char(start_time, 'HH24:MI'),
	timezone, cancellation_window_hours, created_at, updated_at
`

// PostgresClassInstanceRepository implements ClassInstanceRepository using PostgreSQL
type PostgresClassInstanceRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresClassInstanceRepository creates a new PostgresClassInstanceRepository
func NewPostgresClassInstanceRepository(pool *pgxpool.Pool) *PostgresClassInstanceRepository {
	return &PostgresClassInstanceRepository{pool: pool}
}

// GetByID retrieves a class instance by its ID
func (r *PostgresClassInstanceRepository) GetByID(ctx context.Context, id string) (*domain.ClassInstance, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.class_instance.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("class_instance_id", id))

	if !validUUID(id) {
		return nil, domain.ErrClassNotFound
	}

	query := `SELECT ` + classColumns + ` FROM class_instances WHERE id = $1`
	class, err := scanClass(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return class, nil
}

// GetForUpdate retrieves a class instance holding its row lock for the transaction
func (r *PostgresClassInstanceRepository) GetForUpdate(ctx context.Context, id string) (*domain.ClassInstance, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.class_instance.get_for_update")
	defer span.End()

	span.SetAttributes(attribute.String("class_instance_id", id))

	if !inTx(ctx) {
		span.SetStatus(codes.Error, errNoTransaction.Error())
		return nil, errNoTransaction
	}
	if !validUUID(id) {
		return nil, domain.ErrClassNotFound
	}

	query := `SELECT ` + classColumns + ` FROM class_instances WHERE id = $1 FOR UPDATE`
	class, err := scanClass(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return class, nil
}

// AdjustBookedCount changes booked_count by delta. The capacity check constraint
// backs the conditional update.
func (r *PostgresClassInstanceRepository) AdjustBookedCount(ctx context.Context, id string, delta int) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.class_instance.adjust_booked_count")
	defer span.End()

	span.SetAttributes(
		attribute.String("class_instance_id", id),
		attribute.Int("delta", delta),
	)

	query := `
		UPDATE class_instances SET
			booked_count = booked_count + $2,
			updated_at = NOW()
		WHERE id = $1
		  AND booked_count + $2 <= capacity
		  AND booked_count + $2 >= 0
	`

	result, err := conn(ctx, r.pool).Exec(ctx, query, id, delta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if database.IsCheckViolation(err) {
			return domain.ErrCapacityExceeded
		}
		return fmt.Errorf("failed to adjust booked count: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "capacity exceeded")
		return domain.ErrCapacityExceeded
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListWaitlistExpired lists classes with waitlisted bookings that can no longer be promoted
func (r *PostgresClassInstanceRepository) ListWaitlistExpired(ctx context.Context, now time.Time, limit int) ([]*domain.ClassInstance, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.class_instance.list_waitlist_expired")
	defer span.End()

	query := `
		SELECT ` + classColumns + `
		FROM class_instances c
		WHERE (c.status <> 'scheduled'
		       OR ((c.start_date + c.start_time) AT TIME ZONE c.timezone) <= $1)
		  AND EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.class_instance_id = c.id AND b.status = 'waitlisted'
		  )
		ORDER BY c.start_date, c.start_time
		LIMIT $2
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, now, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list expired waitlists: %w", err)
	}
	defer rows.Close()

	var classes []*domain.ClassInstance
	for rows.Next() {
		class, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating class instances: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(classes)))
	span.SetStatus(codes.Ok, "")
	return classes, nil
}

func scanClass(row pgx.Row) (*domain.ClassInstance, error) {
	class := &domain.ClassInstance{}
	var status string

	err := row.Scan(
		&class.ID,
		&class.StudioID,
		&class.Capacity,
		&class.BookedCount,
		&status,
		&class.StartDate,
		&class.StartTime,
		&class.Timezone,
		&class.CancellationWindowHours,
		&class.CreatedAt,
		&class.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrClassNotFound
		}
		return nil, fmt.Errorf("failed to scan class instance: %w", err)
	}

	class.Status = domain.ClassStatus(status)
	return class, nil
}

var _ ClassInstanceRepository = (*PostgresClassInstanceRepository)(nil)
