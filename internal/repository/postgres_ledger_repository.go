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

// PostgresCreditLedgerRepository implements CreditLedgerRepository over the
// comp_class_grants, subscriptions and class_packs tables
type PostgresCreditLedgerRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCreditLedgerRepository creates a new PostgresCreditLedgerRepository
func NewPostgresCreditLedgerRepository(pool *pgxpool.Pool) *PostgresCreditLedgerRepository {
	return &PostgresCreditLedgerRepository{pool: pool}
}

// ListEntitlements loads every entitlement variant a member holds at a studio
func (r *PostgresCreditLedgerRepository) ListEntitlements(ctx context.Context, studioID, memberID string) ([]domain.Entitlement, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.list_entitlements")
	defer span.End()

	span.SetAttributes(
		attribute.String("studio_id", studioID),
		attribute.String("member_id", memberID),
	)

	if !validUUID(studioID) {
		return nil, domain.ErrInvalidStudioID
	}
	if !validUUID(memberID) {
		return nil, domain.ErrInvalidMemberID
	}

	q := conn(ctx, r.pool)
	var entitlements []domain.Entitlement

	comps, err := r.listComps(ctx, q, studioID, memberID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	entitlements = append(entitlements, comps...)

	subs, err := r.listSubscriptions(ctx, q, studioID, memberID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	entitlements = append(entitlements, subs...)

	packs, err := r.listPacks(ctx, q, studioID, memberID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	entitlements = append(entitlements, packs...)

	span.SetAttributes(attribute.Int("count", len(entitlements)))
	span.SetStatus(codes.Ok, "")
	return entitlements, nil
}

func (r *PostgresCreditLedgerRepository) listComps(ctx context.Context, q querier, studioID, memberID string) ([]domain.Entitlement, error) {
	rows, err := q.Query(ctx, `
		SELECT id, studio_id, member_id, remaining_classes, expires_at,
		       reason, coupon_redemption_id, created_at
		FROM comp_class_grants
		WHERE studio_id = $1 AND member_id = $2
		ORDER BY created_at ASC
	`, studioID, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comp grants: %w", err)
	}
	defer rows.Close()

	var result []domain.Entitlement
	for rows.Next() {
		c := &domain.CompClass{}
		var reason, redemptionID *string
		if err := rows.Scan(&c.ID, &c.StudioID, &c.MemberID, &c.RemainingClasses, &c.ExpiresAt,
			&reason, &redemptionID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comp grant: %w", err)
		}
		c.Reason = derefString(reason)
		c.CouponRedemptionID = derefString(redemptionID)
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comp grants: %w", err)
	}
	return result, nil
}

func (r *PostgresCreditLedgerRepository) listSubscriptions(ctx context.Context, q querier, studioID, memberID string) ([]domain.Entitlement, error) {
	rows, err := q.Query(ctx, `
		SELECT id, studio_id, member_id, plan_id, status, class_limit, classes_used_this_period
		FROM subscriptions
		WHERE studio_id = $1 AND member_id = $2
		ORDER BY created_at ASC
	`, studioID, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var result []domain.Entitlement
	for rows.Next() {
		var (
			id, studio, member, status string
			planID                     *string
			classLimit                 *int
			used                       int
		)
		if err := rows.Scan(&id, &studio, &member, &planID, &status, &classLimit, &used); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}

		if classLimit == nil {
			result = append(result, &domain.SubscriptionUnlimited{
				ID:       id,
				StudioID: studio,
				MemberID: member,
				PlanID:   derefString(planID),
				Status:   domain.SubscriptionStatus(status),
			})
			continue
		}
		result = append(result, &domain.SubscriptionLimited{
			ID:                    id,
			StudioID:              studio,
			MemberID:              member,
			PlanID:                derefString(planID),
			Status:                domain.SubscriptionStatus(status),
			ClassLimit:            *classLimit,
			ClassesUsedThisPeriod: used,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return result, nil
}

func (r *PostgresCreditLedgerRepository) listPacks(ctx context.Context, q querier, studioID, memberID string) ([]domain.Entitlement, error) {
	rows, err := q.Query(ctx, `
		SELECT id, studio_id, member_id, total_classes, remaining_classes, expires_at, created_at
		FROM class_packs
		WHERE studio_id = $1 AND member_id = $2
		ORDER BY created_at ASC
	`, studioID, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list class packs: %w", err)
	}
	defer rows.Close()

	var result []domain.Entitlement
	for rows.Next() {
		p := &domain.ClassPack{}
		if err := rows.Scan(&p.ID, &p.StudioID, &p.MemberID, &p.TotalClasses, &p.RemainingClasses,
			&p.ExpiresAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan class pack: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating class packs: %w", err)
	}
	return result, nil
}

// Deduct consumes one credit with a conditional decrement
func (r *PostgresCreditLedgerRepository) Deduct(ctx context.Context, credit domain.ResolvedCredit) (domain.ResolvedCredit, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.deduct")
	defer span.End()

	span.SetAttributes(
		attribute.String("credit_source", credit.Source.String()),
		attribute.String("credit_source_id", credit.SourceID),
	)

	var query string
	switch credit.Source {
	case domain.CreditSourceSubscriptionUnlimited:
		span.SetStatus(codes.Ok, "")
		return domain.ResolvedCredit{Source: credit.Source, SourceID: credit.SourceID}, nil
	case domain.CreditSourceCompClass:
		query = `
			UPDATE comp_class_grants SET
				remaining_classes = remaining_classes - 1,
				updated_at = NOW()
			WHERE id = $1 AND remaining_classes > 0
			RETURNING remaining_classes
		`
	case domain.CreditSourceClassPack:
		query = `
			UPDATE class_packs SET
				remaining_classes = remaining_classes - 1,
				updated_at = NOW()
			WHERE id = $1 AND remaining_classes > 0
			RETURNING remaining_classes
		`
	case domain.CreditSourceSubscriptionLimited:
		query = `
			UPDATE subscriptions SET
				classes_used_this_period = classes_used_this_period + 1,
				updated_at = NOW()
			WHERE id = $1
			  AND status = 'active'
			  AND class_limit IS NOT NULL
			  AND classes_used_this_period < class_limit
			RETURNING class_limit - classes_used_this_period
		`
	default:
		return domain.ResolvedCredit{}, fmt.Errorf("unknown credit source %q", credit.Source)
	}

	var remaining int
	err := conn(ctx, r.pool).QueryRow(ctx, query, credit.SourceID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "exhausted")
			return domain.ResolvedCredit{}, domain.ErrCreditExhausted
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.ResolvedCredit{}, fmt.Errorf("failed to deduct credit: %w", err)
	}

	span.SetAttributes(attribute.Int("remaining_after", remaining))
	span.SetStatus(codes.Ok, "")
	return domain.ResolvedCredit{Source: credit.Source, SourceID: credit.SourceID, RemainingAfter: &remaining}, nil
}

// Refund gives back the single credit recorded in credit.
// Deductions made by other live bookings since then stay spent.
func (r *PostgresCreditLedgerRepository) Refund(ctx context.Context, credit domain.ResolvedCredit) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.refund")
	defer span.End()

	span.SetAttributes(
		attribute.String("credit_source", credit.Source.String()),
		attribute.String("credit_source_id", credit.SourceID),
	)

	var query string
	switch credit.Source {
	case domain.CreditSourceSubscriptionUnlimited:
		span.SetStatus(codes.Ok, "")
		return nil
	case domain.CreditSourceCompClass:
		query = `
			UPDATE comp_class_grants SET
				remaining_classes = remaining_classes + 1,
				updated_at = NOW()
			WHERE id = $1
		`
	case domain.CreditSourceClassPack:
		query = `
			UPDATE class_packs SET
				remaining_classes = remaining_classes + 1,
				updated_at = NOW()
			WHERE id = $1
		`
	case domain.CreditSourceSubscriptionLimited:
		query = `
			UPDATE subscriptions SET
				classes_used_this_period = GREATEST(classes_used_this_period - 1, 0),
				updated_at = NOW()
			WHERE id = $1
		`
	default:
		return fmt.Errorf("unknown credit source %q", credit.Source)
	}

	result, err := conn(ctx, r.pool).Exec(ctx, query, credit.SourceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to refund credit: %w", err)
	}
	if result.RowsAffected() == 0 {
		err := fmt.Errorf("credit source %s %s not found", credit.Source, credit.SourceID)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CreateCompGrant inserts a comp class grant
func (r *PostgresCreditLedgerRepository) CreateCompGrant(ctx context.Context, grant *domain.CompClass) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.create_comp_grant")
	defer span.End()

	span.SetAttributes(
		attribute.String("comp_grant_id", grant.ID),
		attribute.Int("remaining_classes", grant.RemainingClasses),
	)

	if !validUUID(grant.MemberID) {
		return domain.ErrInvalidMemberID
	}

	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO comp_class_grants (
			id, studio_id, member_id, remaining_classes, expires_at,
			reason, coupon_redemption_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`,
		grant.ID,
		grant.StudioID,
		grant.MemberID,
		grant.RemainingClasses,
		grant.ExpiresAt,
		nullString(grant.Reason),
		nullString(grant.CouponRedemptionID),
		grant.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create comp grant: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CountSubscriptions counts a member's subscriptions at a studio
func (r *PostgresCreditLedgerRepository) CountSubscriptions(ctx context.Context, studioID, memberID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.count_subscriptions")
	defer span.End()

	if !validUUID(studioID, memberID) {
		return 0, domain.ErrInvalidMemberID
	}

	var count int
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE studio_id = $1 AND member_id = $2`,
		studioID, memberID,
	).Scan(&count)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return count, nil
}

var _ CreditLedgerRepository = (*PostgresCreditLedgerRepository)(nil)
