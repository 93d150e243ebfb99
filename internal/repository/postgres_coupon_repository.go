package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresCouponRepository implements CouponRepository using PostgreSQL
type PostgresCouponRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCouponRepository creates a new PostgresCouponRepository
func NewPostgresCouponRepository(pool *pgxpool.Pool) *PostgresCouponRepository {
	return &PostgresCouponRepository{pool: pool}
}

// GetByCode retrieves a coupon and its plan list
func (r *PostgresCouponRepository) GetByCode(ctx context.Context, studioID, code string) (*domain.Coupon, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.coupon.get_by_code")
	defer span.End()

	span.SetAttributes(
		attribute.String("studio_id", studioID),
		attribute.String("code", code),
	)

	if !validUUID(studioID) {
		return nil, domain.ErrCouponNotFound
	}

	query := `
		SELECT
			c.id, c.studio_id, c.code, c.type, c.value, c.currency, c.applies_to,
			c.active, c.valid_from, c.valid_until, c.max_redemptions, c.current_redemptions,
			c.created_at, c.updated_at,
			COALESCE(array_agg(cp.plan_id ORDER BY cp.plan_id) FILTER (WHERE cp.plan_id IS NOT NULL), '{}')
		FROM coupons c
		LEFT JOIN coupon_plans cp ON cp.coupon_id = c.id
		WHERE c.studio_id = $1 AND c.code = $2
		GROUP BY c.id
	`

	coupon := &domain.Coupon{}
	var (
		couponType string
		currency   *string
		appliesTo  string
	)

	err := conn(ctx, r.pool).QueryRow(ctx, query, studioID, code).Scan(
		&coupon.ID,
		&coupon.StudioID,
		&coupon.Code,
		&couponType,
		&coupon.Value,
		&currency,
		&appliesTo,
		&coupon.Active,
		&coupon.ValidFrom,
		&coupon.ValidUntil,
		&coupon.MaxRedemptions,
		&coupon.CurrentRedemptions,
		&coupon.CreatedAt,
		&coupon.UpdatedAt,
		&coupon.PlanIDs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrCouponNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}

	coupon.Type = domain.DiscountType(couponType)
	coupon.AppliesTo = domain.CouponScope(appliesTo)
	coupon.Currency = derefString(currency)

	span.SetStatus(codes.Ok, "")
	return coupon, nil
}

// IncrementRedemptions bumps current_redemptions only while under the cap
func (r *PostgresCouponRepository) IncrementRedemptions(ctx context.Context, couponID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.coupon.increment_redemptions")
	defer span.End()

	span.SetAttributes(attribute.String("coupon_id", couponID))

	query := `
		UPDATE coupons SET
			current_redemptions = current_redemptions + 1,
			updated_at = NOW()
		WHERE id = $1
		  AND (max_redemptions IS NULL OR current_redemptions < max_redemptions)
		RETURNING current_redemptions
	`

	var current int
	err := conn(ctx, r.pool).QueryRow(ctx, query, couponID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, domain.CouponReasonLimitReached)
			return 0, &domain.CouponInvalidError{Reason: domain.CouponReasonLimitReached}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to increment coupon redemptions: %w", err)
	}

	span.SetAttributes(attribute.Int("current_redemptions", current))
	span.SetStatus(codes.Ok, "")
	return current, nil
}

// CreateRedemption inserts the redemption audit record
func (r *PostgresCouponRepository) CreateRedemption(ctx context.Context, redemption *domain.CouponRedemption) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.coupon.create_redemption")
	defer span.End()

	span.SetAttributes(
		attribute.String("redemption_id", redemption.ID),
		attribute.String("coupon_id", redemption.CouponID),
		attribute.String("member_id", redemption.MemberID),
	)

	if !validUUID(redemption.MemberID) {
		return domain.ErrInvalidMemberID
	}

	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO coupon_redemptions (
			id, coupon_id, studio_id, member_id, applied_to_type, applied_to_id,
			coupon_type, discount_handle, comp_grant_id, redeemed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		redemption.ID,
		redemption.CouponID,
		redemption.StudioID,
		redemption.MemberID,
		string(redemption.AppliedToType),
		nullString(redemption.AppliedToID),
		string(redemption.CouponType),
		nullString(redemption.DiscountHandle),
		nullString(redemption.CompGrantID),
		redemption.RedeemedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create coupon redemption: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// AttachDiscountHandle sets discount_handle on a redemption that has none yet
func (r *PostgresCouponRepository) AttachDiscountHandle(ctx context.Context, redemptionID, handle string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.coupon.attach_discount_handle")
	defer span.End()

	span.SetAttributes(attribute.String("redemption_id", redemptionID))

	result, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE coupon_redemptions SET discount_handle = $2
		WHERE id = $1 AND discount_handle IS NULL
	`, redemptionID, handle)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to attach discount handle: %w", err)
	}
	if result.RowsAffected() == 0 {
		err := fmt.Errorf("redemption %s is not pending", redemptionID)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ReleaseRedemption deletes a pending redemption and decrements the coupon counter.
// A redemption that already has a handle is left alone.
func (r *PostgresCouponRepository) ReleaseRedemption(ctx context.Context, redemption *domain.CouponRedemption) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.coupon.release_redemption")
	defer span.End()

	span.SetAttributes(
		attribute.String("redemption_id", redemption.ID),
		attribute.String("coupon_id", redemption.CouponID),
	)

	q := conn(ctx, r.pool)
	result, err := q.Exec(ctx, `
		DELETE FROM coupon_redemptions
		WHERE id = $1 AND discount_handle IS NULL
	`, redemption.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete pending redemption: %w", err)
	}
	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Ok, "")
		return nil
	}

	_, err = q.Exec(ctx, `
		UPDATE coupons SET
			current_redemptions = GREATEST(current_redemptions - 1, 0),
			updated_at = NOW()
		WHERE id = $1
	`, redemption.CouponID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to release coupon redemption: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

var _ CouponRepository = (*PostgresCouponRepository)(nil)
