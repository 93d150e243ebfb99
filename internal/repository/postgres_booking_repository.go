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

const bookingColumns = `
	id, studio_id, class_instance_id, member_id, status,
	credit_source, credit_source_id, credit_remaining_after,
	created_by, cancel_reason, confirmation_token,
	waitlisted_at, booked_at, confirmed_at, cancelled_at,
	created_at, updated_at
`

// PostgresBookingRepository implements BookingRepository using PostgreSQL with pgxpool
type PostgresBookingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(pool *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool}
}

// Create creates a new booking record in the database
func (r *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("member_id", booking.MemberID),
		attribute.String("class_instance_id", booking.ClassInstanceID),
		attribute.String("status", booking.Status.String()),
	)

	switch {
	case !validUUID(booking.ID):
		return domain.ErrInvalidBookingID
	case !validUUID(booking.StudioID):
		return domain.ErrInvalidStudioID
	case !validUUID(booking.ClassInstanceID):
		return domain.ErrInvalidClassID
	case !validUUID(booking.MemberID):
		return domain.ErrInvalidMemberID
	case booking.CreatedBy != "" && !validUUID(booking.CreatedBy):
		return domain.ErrInvalidMemberID
	}

	query := `
		INSERT INTO bookings (` + bookingColumns + `) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12, $13, $14, $15,
			$16, $17
		)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		booking.ID,
		booking.StudioID,
		booking.ClassInstanceID,
		booking.MemberID,
		booking.Status.String(),
		nullString(string(booking.CreditSource)),
		nullString(booking.CreditSourceID),
		booking.CreditRemainingAfter,
		nullString(booking.CreatedBy),
		nullString(booking.CancelReason),
		nullString(booking.ConfirmationToken),
		booking.WaitlistedAt,
		booking.BookedAt,
		booking.ConfirmedAt,
		booking.CancelledAt,
		booking.CreatedAt,
		booking.UpdatedAt,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if database.IsUniqueViolation(err) {
			return domain.ErrAlreadyBooked
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a booking by its ID
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	if !validUUID(id) {
		return nil, domain.ErrBookingNotFound
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	booking, err := scanBooking(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// GetActiveByMember returns the member's non-cancelled booking for a class
func (r *PostgresBookingRepository) GetActiveByMember(ctx context.Context, classInstanceID, memberID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_active_by_member")
	defer span.End()

	span.SetAttributes(
		attribute.String("class_instance_id", classInstanceID),
		attribute.String("member_id", memberID),
	)

	if !validUUID(classInstanceID, memberID) {
		return nil, domain.ErrBookingNotFound
	}

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE class_instance_id = $1 AND member_id = $2 AND status <> 'cancelled'
	`
	booking, err := scanBooking(conn(ctx, r.pool).QueryRow(ctx, query, classInstanceID, memberID))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// Update persists the mutable booking fields
func (r *PostgresBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.update")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("status", booking.Status.String()),
	)

	query := `
		UPDATE bookings SET
			status = $2,
			credit_source = $3,
			credit_source_id = $4,
			credit_remaining_after = $5,
			cancel_reason = $6,
			confirmation_token = $7,
			booked_at = $8,
			confirmed_at = $9,
			cancelled_at = $10,
			updated_at = $11
		WHERE id = $1
	`

	result, err := conn(ctx, r.pool).Exec(ctx, query,
		booking.ID,
		booking.Status.String(),
		nullString(string(booking.CreditSource)),
		nullString(booking.CreditSourceID),
		booking.CreditRemainingAfter,
		nullString(booking.CancelReason),
		nullString(booking.ConfirmationToken),
		booking.BookedAt,
		booking.ConfirmedAt,
		booking.CancelledAt,
		booking.UpdatedAt,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update booking: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListWaitlisted returns waitlisted bookings ordered by enqueue time
func (r *PostgresBookingRepository) ListWaitlisted(ctx context.Context, classInstanceID string) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_waitlisted")
	defer span.End()

	span.SetAttributes(attribute.String("class_instance_id", classInstanceID))

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE class_instance_id = $1 AND status = 'waitlisted'
		ORDER BY waitlisted_at ASC, id ASC
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, classInstanceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list waitlisted bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// WaitlistPosition counts active waitlist entries enqueued before the booking
func (r *PostgresBookingRepository) WaitlistPosition(ctx context.Context, booking *domain.Booking) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.waitlist_position")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", booking.ID))

	if !booking.IsWaitlisted() || booking.WaitlistedAt == nil {
		return 0, nil
	}

	query := `
		SELECT COUNT(*) + 1
		FROM bookings
		WHERE class_instance_id = $1
		  AND status = 'waitlisted'
		  AND (waitlisted_at, id) < ($2, $3)
	`

	var position int
	err := conn(ctx, r.pool).QueryRow(ctx, query, booking.ClassInstanceID, *booking.WaitlistedAt, booking.ID).Scan(&position)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to compute waitlist position: %w", err)
	}

	span.SetAttributes(attribute.Int("position", position))
	span.SetStatus(codes.Ok, "")
	return position, nil
}

// CountByStatus counts bookings of a class in the given status
func (r *PostgresBookingRepository) CountByStatus(ctx context.Context, classInstanceID string, status domain.BookingStatus) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.count_by_status")
	defer span.End()

	var count int
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings WHERE class_instance_id = $1 AND status = $2`,
		classInstanceID, status.String(),
	).Scan(&count)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return count, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	booking := &domain.Booking{}
	var (
		status            string
		creditSource      *string
		creditSourceID    *string
		createdBy         *string
		cancelReason      *string
		confirmationToken *string
		waitlistedAt      *time.Time
		bookedAt          *time.Time
		confirmedAt       *time.Time
		cancelledAt       *time.Time
	)

	err := row.Scan(
		&booking.ID,
		&booking.StudioID,
		&booking.ClassInstanceID,
		&booking.MemberID,
		&status,
		&creditSource,
		&creditSourceID,
		&booking.CreditRemainingAfter,
		&createdBy,
		&cancelReason,
		&confirmationToken,
		&waitlistedAt,
		&bookedAt,
		&confirmedAt,
		&cancelledAt,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}

	booking.Status = domain.BookingStatus(status)
	booking.CreditSource = domain.CreditSource(derefString(creditSource))
	booking.CreditSourceID = derefString(creditSourceID)
	booking.CreatedBy = derefString(createdBy)
	booking.CancelReason = derefString(cancelReason)
	booking.ConfirmationToken = derefString(confirmationToken)
	booking.WaitlistedAt = waitlistedAt
	booking.BookedAt = bookedAt
	booking.ConfirmedAt = confirmedAt
	booking.CancelledAt = cancelledAt

	return booking, nil
}

var _ BookingRepository = (*PostgresBookingRepository)(nil)
