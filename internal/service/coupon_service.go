package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/internal/dto"
	"github.com/prohmpiriya/studio-booking/internal/gateway"
	"github.com/prohmpiriya/studio-booking/internal/metrics"
	"github.com/prohmpiriya/studio-booking/internal/repository"
	"github.com/prohmpiriya/studio-booking/pkg/clock"
	"github.com/prohmpiriya/studio-booking/pkg/logger"
	"github.com/prohmpiriya/studio-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// CouponService validates and redeems studio coupons
type CouponService interface {
	// Validate checks a coupon without consuming it. An unusable coupon is a
	// normal outcome reported as Valid=false with a reason.
	Validate(ctx context.Context, actor domain.Actor, req *dto.ValidateCouponRequest) (*dto.ValidateCouponResponse, error)

	// Redeem re-validates and consumes one redemption. percent_off and
	// amount_off return a gateway discount handle; free_classes grants comp credit.
	Redeem(ctx context.Context, actor domain.Actor, req *dto.RedeemCouponRequest) (*dto.RedeemCouponResponse, error)
}

type couponService struct {
	runner  *txRunner
	coupons repository.CouponRepository
	ledger  repository.CreditLedgerRepository
	gateway gateway.DiscountGateway
	auth    *authorizer
	clock   clock.Clock
}

// CouponServiceConfig contains configuration for coupon service
type CouponServiceConfig struct {
	OperationTimeout time.Duration
	StaffRole        string
}

// NewCouponService creates a new CouponService
func NewCouponService(
	tx repository.Transactor,
	coupons repository.CouponRepository,
	ledger repository.CreditLedgerRepository,
	staff repository.StaffRepository,
	gw gateway.DiscountGateway,
	clk clock.Clock,
	cfg *CouponServiceConfig,
) CouponService {
	if cfg == nil {
		cfg = &CouponServiceConfig{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if gw == nil {
		gw = gateway.NewMockGateway()
	}
	return &couponService{
		runner:  newTxRunner(tx, cfg.OperationTimeout),
		coupons: coupons,
		ledger:  ledger,
		gateway: gw,
		auth:    newAuthorizer(staff, cfg.StaffRole),
		clock:   clk,
	}
}

func (s *couponService) Validate(ctx context.Context, actor domain.Actor, req *dto.ValidateCouponRequest) (*dto.ValidateCouponResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.coupon.validate")
	defer span.End()

	if req == nil || domain.NormalizeCouponCode(req.Code) == "" {
		span.SetStatus(codes.Error, "invalid code")
		return nil, domain.ErrInvalidCouponCode
	}
	if req.StudioID == "" {
		span.SetStatus(codes.Error, "invalid studio_id")
		return nil, domain.ErrInvalidStudioID
	}
	memberID, err := s.memberFor(ctx, req.StudioID, req.MemberID, actor)
	if err != nil {
		return nil, err
	}

	code := domain.NormalizeCouponCode(req.Code)
	span.SetAttributes(attribute.String("studio_id", req.StudioID), attribute.String("code", code))

	coupon, err := s.coupons.GetByCode(ctx, req.StudioID, code)
	if errors.Is(err, domain.ErrCouponNotFound) {
		return s.invalid(ctx, req.StudioID, domain.CouponReasonNotFound), nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.checkEligibility(ctx, coupon, memberID, req.PlanID); err != nil {
		var invalid *domain.CouponInvalidError
		if errors.As(err, &invalid) {
			return s.invalid(ctx, req.StudioID, invalid.Reason), nil
		}
		span.RecordError(err)
		return nil, err
	}

	discount := coupon.Discount()
	span.SetAttributes(attribute.Bool("valid", true))
	return &dto.ValidateCouponResponse{Valid: true, Discount: &discount}, nil
}

func (s *couponService) Redeem(ctx context.Context, actor domain.Actor, req *dto.RedeemCouponRequest) (*dto.RedeemCouponResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.coupon.redeem")
	defer span.End()

	if req == nil || domain.NormalizeCouponCode(req.Code) == "" {
		span.SetStatus(codes.Error, "invalid code")
		return nil, domain.ErrInvalidCouponCode
	}
	if req.StudioID == "" {
		span.SetStatus(codes.Error, "invalid studio_id")
		return nil, domain.ErrInvalidStudioID
	}
	appliedTo := domain.AppliedTo{Type: domain.AppliedToType(req.AppliedToType), ID: req.AppliedToID}
	if !appliedTo.Type.IsValid() {
		span.SetStatus(codes.Error, "invalid applied_to")
		return nil, domain.ErrInvalidAppliedTo
	}
	memberID, err := s.memberFor(ctx, req.StudioID, req.MemberID, actor)
	if err != nil {
		return nil, err
	}

	code := domain.NormalizeCouponCode(req.Code)
	span.SetAttributes(
		attribute.String("studio_id", req.StudioID),
		attribute.String("code", code),
		attribute.String("applied_to", string(appliedTo.Type)),
	)

	// generated once so a retried transaction reuses the gateway idempotency key
	redemptionID := uuid.New().String()
	compGrantID := uuid.New().String()

	var (
		resp       *dto.RedeemCouponResponse
		couponType domain.DiscountType
		reserved   *domain.CouponRedemption
		discount   *gateway.DiscountRequest
	)
	err = s.runner.run(ctx, "coupon.redeem", func(txCtx context.Context) error {
		resp, reserved, discount = nil, nil, nil

		coupon, err := s.coupons.GetByCode(txCtx, req.StudioID, code)
		if err != nil {
			return err
		}
		if err := s.checkEligibility(txCtx, coupon, memberID, req.PlanID); err != nil {
			return err
		}

		// the conditional increment is what enforces the cap under concurrency
		if _, err := s.coupons.IncrementRedemptions(txCtx, coupon.ID); err != nil {
			return err
		}

		now := s.clock.Now()
		redemption := &domain.CouponRedemption{
			ID:            redemptionID,
			CouponID:      coupon.ID,
			StudioID:      coupon.StudioID,
			MemberID:      memberID,
			AppliedToType: appliedTo.Type,
			AppliedToID:   appliedTo.ID,
			CouponType:    coupon.Type,
			RedeemedAt:    now,
		}
		out := &dto.RedeemCouponResponse{
			RedemptionID: redemptionID,
			CouponType:   string(coupon.Type),
		}

		switch {
		case coupon.Type.UsesPaymentGateway():
			// reserved here; the gateway is called after commit
			reserved = redemption
			discount = &gateway.DiscountRequest{
				IdempotencyKey: redemptionID,
				CouponCode:     coupon.Code,
				StudioID:       coupon.StudioID,
				MemberID:       memberID,
				Type:           coupon.Type,
				Value:          coupon.Value,
				Currency:       coupon.Currency,
				Metadata: map[string]string{
					"redemption_id":   redemptionID,
					"applied_to_type": string(appliedTo.Type),
				},
			}

		case coupon.Type == domain.DiscountTypeFreeClasses:
			grant := &domain.CompClass{
				ID:                 compGrantID,
				StudioID:           coupon.StudioID,
				MemberID:           memberID,
				RemainingClasses:   int(coupon.Value),
				Reason:             "coupon:" + coupon.Code,
				CouponRedemptionID: redemptionID,
				CreatedAt:          now,
			}
			if err := s.ledger.CreateCompGrant(txCtx, grant); err != nil {
				return err
			}
			redemption.CompGrantID = grant.ID
			out.CompGrant = &dto.CompGrantResponse{ID: grant.ID, RemainingClasses: grant.RemainingClasses}

		default:
			return fmt.Errorf("unsupported coupon type: %s", coupon.Type)
		}

		if err := s.coupons.CreateRedemption(txCtx, redemption); err != nil {
			return err
		}
		couponType = coupon.Type
		resp = out
		return nil
	})
	if err != nil {
		var invalid *domain.CouponInvalidError
		if errors.As(err, &invalid) {
			metrics.RecordCouponRejection(ctx, req.StudioID, invalid.Reason)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if discount != nil {
		handle, err := s.createDiscount(ctx, reserved, discount)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		resp.DiscountHandle = handle
	}

	metrics.RecordCouponRedemption(ctx, req.StudioID, string(couponType))
	logger.Get().InfoContext(ctx, fmt.Sprintf("Coupon %s redeemed by member %s", code, memberID),
		zap.String("redemption_id", resp.RedemptionID),
		zap.String("coupon_type", resp.CouponType),
	)
	return resp, nil
}

// createDiscount calls the gateway with no row locks held and attaches the
// handle to the reserved redemption. Any failure releases the reservation.
func (s *couponService) createDiscount(ctx context.Context, redemption *domain.CouponRedemption, req *gateway.DiscountRequest) (string, error) {
	gwCtx, cancel := context.WithTimeout(ctx, s.runner.timeout)
	handle, err := s.gateway.CreateDiscount(gwCtx, req)
	cancel()
	if err != nil {
		s.release(ctx, redemption)
		return "", fmt.Errorf("failed to create gateway discount: %w", err)
	}

	err = s.runner.run(ctx, "coupon.attach_discount", func(txCtx context.Context) error {
		return s.coupons.AttachDiscountHandle(txCtx, redemption.ID, handle.ID)
	})
	if err != nil {
		s.release(ctx, redemption)
		return "", fmt.Errorf("failed to attach gateway discount: %w", err)
	}
	return handle.ID, nil
}

func (s *couponService) release(ctx context.Context, redemption *domain.CouponRedemption) {
	ctx = context.WithoutCancel(ctx)
	err := s.runner.run(ctx, "coupon.release", func(txCtx context.Context) error {
		return s.coupons.ReleaseRedemption(txCtx, redemption)
	})
	if err != nil {
		logger.Get().ErrorContext(ctx, fmt.Sprintf("Failed to release coupon redemption %s", redemption.ID),
			zap.String("coupon_id", redemption.CouponID),
			zap.Error(err),
		)
	}
}

// checkEligibility counts prior subscriptions only when the coupon needs them
func (s *couponService) checkEligibility(ctx context.Context, coupon *domain.Coupon, memberID, planID string) error {
	in := domain.EligibilityInput{PlanID: planID}
	if coupon.AppliesTo == domain.CouponScopeNewMember {
		count, err := s.ledger.CountSubscriptions(ctx, coupon.StudioID, memberID)
		if err != nil {
			return fmt.Errorf("failed to count subscriptions: %w", err)
		}
		in.PriorSubscriptions = count
	}
	return coupon.CheckEligibility(s.clock.Now(), in)
}

// memberFor resolves the member a coupon call is for; staff may act for others
func (s *couponService) memberFor(ctx context.Context, studioID, requested string, actor domain.Actor) (string, error) {
	if requested == "" || requested == actor.ID {
		if actor.ID == "" {
			return "", domain.ErrInvalidMemberID
		}
		return actor.ID, nil
	}
	if err := s.auth.canActFor(ctx, studioID, requested, actor); err != nil {
		return "", err
	}
	return requested, nil
}

func (s *couponService) invalid(ctx context.Context, studioID, reason string) *dto.ValidateCouponResponse {
	metrics.RecordCouponRejection(ctx, studioID, reason)
	return &dto.ValidateCouponResponse{Valid: false, Reason: reason}
}
