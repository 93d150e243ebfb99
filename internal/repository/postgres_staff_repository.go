package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/studio-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresStaffRepository implements StaffRepository over studio_staff
type PostgresStaffRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresStaffRepository creates a new PostgresStaffRepository
func NewPostgresStaffRepository(pool *pgxpool.Pool) *PostgresStaffRepository {
	return &PostgresStaffRepository{pool: pool}
}

// IsStaff reports whether memberID is on the studio's staff
func (r *PostgresStaffRepository) IsStaff(ctx context.Context, studioID, memberID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.staff.is_staff")
	defer span.End()

	span.SetAttributes(
		attribute.String("studio_id", studioID),
		attribute.String("member_id", memberID),
	)

	if !validUUID(studioID, memberID) {
		return false, nil
	}

	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM studio_staff WHERE studio_id = $1 AND member_id = $2)`,
		studioID, memberID,
	).Scan(&exists)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to check staff membership: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return exists, nil
}

var _ StaffRepository = (*PostgresStaffRepository)(nil)
