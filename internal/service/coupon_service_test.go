package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/internal/dto"
	"github.com/prohmpiriya/studio-booking/internal/gateway"
	"github.com/prohmpiriya/studio-booking/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) addCoupon(c *domain.Coupon) {
	if c.StudioID == "" {
		c.StudioID = testStudio
	}
	if c.AppliesTo == "" {
		c.AppliesTo = domain.CouponScopeAny
	}
	c.Active = true
	f.store.AddCoupon(c)
}

func redeemReq(code string) *dto.RedeemCouponRequest {
	return &dto.RedeemCouponRequest{
		Code:          code,
		StudioID:      testStudio,
		AppliedToType: string(domain.AppliedToSubscription),
		AppliedToID:   "checkout-1",
	}
}

func TestCouponService_Validate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		coupon     *domain.Coupon
		mutate     func(f *fixture)
		planID     string
		wantValid  bool
		wantReason string
	}{
		{
			name:      "valid percent off",
			coupon:    &domain.Coupon{ID: "c1", Code: "SAVE20", Type: domain.DiscountTypePercentOff, Value: 20},
			wantValid: true,
		},
		{
			name:       "unknown code",
			coupon:     &domain.Coupon{ID: "c1", Code: "OTHER", Type: domain.DiscountTypePercentOff, Value: 20},
			wantReason: domain.CouponReasonNotFound,
		},
		{
			name: "inactive",
			coupon: &domain.Coupon{ID: "c1", Code: "SAVE20", Type: domain.DiscountTypePercentOff, Value: 20},
			mutate: func(f *fixture) {
				c, _ := f.store.Coupon("c1")
				c.Active = false
				f.store.AddCoupon(c)
			},
			wantReason: domain.CouponReasonInactive,
		},
		{
			name: "expired",
			coupon: &domain.Coupon{
				ID: "c1", Code: "SAVE20", Type: domain.DiscountTypePercentOff, Value: 20,
				ValidUntil: timePtr(testNow.Add(-time.Hour)),
			},
			wantReason: domain.CouponReasonExpired,
		},
		{
			name: "limit reached",
			coupon: &domain.Coupon{
				ID: "c1", Code: "SAVE20", Type: domain.DiscountTypePercentOff, Value: 20,
				MaxRedemptions: intPtr(100), CurrentRedemptions: 100,
			},
			wantReason: domain.CouponReasonLimitReached,
		},
		{
			name: "plan scope mismatch",
			coupon: &domain.Coupon{
				ID: "c1", Code: "SAVE20", Type: domain.DiscountTypePercentOff, Value: 20,
				AppliesTo: domain.CouponScopePlan, PlanIDs: []string{"plan-gold"},
			},
			planID:     "plan-silver",
			wantReason: domain.CouponReasonPlanMismatch,
		},
		{
			name: "plan scope match",
			coupon: &domain.Coupon{
				ID: "c1", Code: "SAVE20", Type: domain.DiscountTypePercentOff, Value: 20,
				AppliesTo: domain.CouponScopePlan, PlanIDs: []string{"plan-gold"},
			},
			planID:    "plan-gold",
			wantValid: true,
		},
		{
			name: "new member scope with prior subscription",
			coupon: &domain.Coupon{
				ID: "c1", Code: "SAVE20", Type: domain.DiscountTypePercentOff, Value: 20,
				AppliesTo: domain.CouponScopeNewMember,
			},
			mutate:     func(f *fixture) { f.addUnlimited("m1") },
			wantReason: domain.CouponReasonNewMemberOnly,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addCoupon(tt.coupon)
			if tt.mutate != nil {
				tt.mutate(f)
			}

			resp, err := f.coupons.Validate(ctx, member("m1"), &dto.ValidateCouponRequest{
				Code:     "save20",
				StudioID: testStudio,
				PlanID:   tt.planID,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, resp.Valid)
			assert.Equal(t, tt.wantReason, resp.Reason)
			if tt.wantValid {
				require.NotNil(t, resp.Discount)
				assert.Equal(t, int64(20), resp.Discount.Value)
			}
		})
	}
}

func TestCouponService_Validate_BadRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.coupons.Validate(context.Background(), member("m1"), &dto.ValidateCouponRequest{Code: "  ", StudioID: testStudio})
	assert.ErrorIs(t, err, domain.ErrInvalidCouponCode)

	_, err = f.coupons.Validate(context.Background(), member("m1"), &dto.ValidateCouponRequest{Code: "X"})
	assert.ErrorIs(t, err, domain.ErrInvalidStudioID)
}

func TestCouponService_Redeem_PercentOff(t *testing.T) {
	f := newFixture(t)
	f.addCoupon(&domain.Coupon{ID: "c1", Code: "SAVE20", Type: domain.DiscountTypePercentOff, Value: 20, MaxRedemptions: intPtr(100)})

	resp, err := f.coupons.Redeem(context.Background(), member("m1"), redeemReq("save20"))
	require.NoError(t, err)
	assert.Equal(t, "percent_off", resp.CouponType)
	assert.NotEmpty(t, resp.DiscountHandle)
	assert.Nil(t, resp.CompGrant)

	reqs := f.gateway.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, resp.RedemptionID, reqs[0].IdempotencyKey)
	assert.Equal(t, int64(20), reqs[0].Value)

	c, _ := f.store.Coupon("c1")
	assert.Equal(t, 1, c.CurrentRedemptions)

	redemptions := f.store.Redemptions()
	require.Len(t, redemptions, 1)
	assert.Equal(t, resp.DiscountHandle, redemptions[0].DiscountHandle)
	assert.Equal(t, "m1", redemptions[0].MemberID)
	assert.Equal(t, domain.AppliedToSubscription, redemptions[0].AppliedToType)
}

func TestCouponService_Redeem_LimitReached(t *testing.T) {
	f := newFixture(t)
	f.addCoupon(&domain.Coupon{
		ID: "c1", Code: "SAVE20", Type: domain.DiscountTypePercentOff, Value: 20,
		MaxRedemptions: intPtr(100), CurrentRedemptions: 100,
	})

	_, err := f.coupons.Redeem(context.Background(), member("m1"), redeemReq("SAVE20"))
	var invalid *domain.CouponInvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "limit reached", invalid.Reason)
	assert.ErrorIs(t, err, domain.ErrCouponInvalid)

	assert.Empty(t, f.gateway.Requests())
	assert.Empty(t, f.store.Redemptions())
}

func TestCouponService_Redeem_FreeClassesGrantsComp(t *testing.T) {
	f := newFixture(t)
	f.addCoupon(&domain.Coupon{ID: "c1", Code: "FREECLASS", Type: domain.DiscountTypeFreeClasses, Value: 3})

	resp, err := f.coupons.Redeem(context.Background(), member("m1"), redeemReq("FREECLASS"))
	require.NoError(t, err)
	assert.Equal(t, "free_classes", resp.CouponType)
	assert.Empty(t, resp.DiscountHandle)
	require.NotNil(t, resp.CompGrant)
	assert.Equal(t, 3, resp.CompGrant.RemainingClasses)

	assert.Empty(t, f.gateway.Requests())

	grant, ok := f.store.CompGrant(resp.CompGrant.ID)
	require.True(t, ok)
	assert.Equal(t, "m1", grant.MemberID)
	assert.Equal(t, 3, grant.RemainingClasses)
	assert.Equal(t, resp.RedemptionID, grant.CouponRedemptionID)

	redemptions := f.store.Redemptions()
	require.Len(t, redemptions, 1)
	assert.Equal(t, grant.ID, redemptions[0].CompGrantID)

	// the grant pays for the next booking
	credit, err := f.credits.Resolve(context.Background(), testStudio, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.CreditSourceCompClass, credit.Source)
}

func TestCouponService_Redeem_CapHoldsUnderConcurrency(t *testing.T) {
	const capacity = 5
	const attempts = 30

	f := newFixture(t)
	f.addCoupon(&domain.Coupon{
		ID: "c1", Code: "SAVE20", Type: domain.DiscountTypePercentOff, Value: 20,
		MaxRedemptions: intPtr(capacity),
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, limited := 0, 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.coupons.Redeem(context.Background(), member(id), redeemReq("SAVE20"))
			mu.Lock()
			defer mu.Unlock()
			var invalid *domain.CouponInvalidError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &invalid) && invalid.Reason == domain.CouponReasonLimitReached:
				limited++
			default:
				t.Errorf("redeem %s: %v", id, err)
			}
		}(fmt.Sprintf("m%d", i))
	}
	wg.Wait()

	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, attempts-capacity, limited)
	c, _ := f.store.Coupon("c1")
	assert.Equal(t, capacity, c.CurrentRedemptions)
	assert.Len(t, f.store.Redemptions(), capacity)
}

func TestCouponService_Redeem_GatewayFailureReleasesReservation(t *testing.T) {
	f := newFixture(t)
	f.addCoupon(&domain.Coupon{ID: "c1", Code: "TENOFF", Type: domain.DiscountTypeAmountOff, Value: 1000, Currency: "usd"})
	f.gateway.SetError(errors.New("stripe unavailable"))

	_, err := f.coupons.Redeem(context.Background(), member("m1"), redeemReq("TENOFF"))
	require.Error(t, err)

	c, _ := f.store.Coupon("c1")
	assert.Equal(t, 0, c.CurrentRedemptions)
	assert.Empty(t, f.store.Redemptions())
}

// observingGateway records the store state seen while the gateway is called
type observingGateway struct {
	*gateway.MockGateway
	store       *repository.MemoryStore
	inTx        bool
	counter     int
	pendingSeen bool
}

func (g *observingGateway) CreateDiscount(ctx context.Context, req *gateway.DiscountRequest) (*gateway.DiscountHandle, error) {
	g.inTx = repository.InTransaction(ctx)
	c, _ := g.store.Coupon("c1")
	g.counter = c.CurrentRedemptions
	for _, r := range g.store.Redemptions() {
		if r.ID == req.IdempotencyKey && r.DiscountHandle == "" {
			g.pendingSeen = true
		}
	}
	return g.MockGateway.CreateDiscount(ctx, req)
}

func TestCouponService_Redeem_GatewayCalledAfterReservationCommits(t *testing.T) {
	f := newFixture(t)
	f.addCoupon(&domain.Coupon{ID: "c1", Code: "SAVE20", Type: domain.DiscountTypePercentOff, Value: 20, MaxRedemptions: intPtr(1)})
	gw := &observingGateway{MockGateway: gateway.NewMockGateway(), store: f.store}
	svc := NewCouponService(f.store, f.store, f.store, f.store, gw, f.clock, &CouponServiceConfig{OperationTimeout: 2 * time.Second})

	resp, err := svc.Redeem(context.Background(), member("m1"), redeemReq("SAVE20"))
	require.NoError(t, err)

	assert.False(t, gw.inTx, "gateway must not run inside the redemption transaction")
	assert.Equal(t, 1, gw.counter)
	assert.True(t, gw.pendingSeen)

	redemptions := f.store.Redemptions()
	require.Len(t, redemptions, 1)
	assert.Equal(t, resp.DiscountHandle, redemptions[0].DiscountHandle)

	// the slot stays taken once the handle is attached
	_, err = svc.Redeem(context.Background(), member("m2"), redeemReq("SAVE20"))
	assert.ErrorIs(t, err, domain.ErrCouponInvalid)
}

func TestCouponService_Redeem_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown code", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.coupons.Redeem(ctx, member("m1"), redeemReq("NOPE"))
		assert.ErrorIs(t, err, domain.ErrCouponNotFound)
	})

	t.Run("invalid applied_to", func(t *testing.T) {
		f := newFixture(t)
		req := redeemReq("SAVE20")
		req.AppliedToType = "gift_card"
		_, err := f.coupons.Redeem(ctx, member("m1"), req)
		assert.ErrorIs(t, err, domain.ErrInvalidAppliedTo)
	})

	t.Run("redeem for another member needs staff", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(&domain.Coupon{ID: "c1", Code: "FREECLASS", Type: domain.DiscountTypeFreeClasses, Value: 1})
		req := redeemReq("FREECLASS")
		req.MemberID = "m2"

		_, err := f.coupons.Redeem(ctx, member("m1"), req)
		assert.ErrorIs(t, err, domain.ErrForbidden)

		f.store.AddStaff(testStudio, "coach")
		resp, err := f.coupons.Redeem(ctx, member("coach"), req)
		require.NoError(t, err)
		grant, _ := f.store.CompGrant(resp.CompGrant.ID)
		assert.Equal(t, "m2", grant.MemberID)
	})

	t.Run("retries once on conflict", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(&domain.Coupon{ID: "c1", Code: "SAVE20", Type: domain.DiscountTypePercentOff, Value: 20})
		f.store.InjectConflicts(1)

		_, err := f.coupons.Redeem(ctx, member("m1"), redeemReq("SAVE20"))
		require.NoError(t, err)
		c, _ := f.store.Coupon("c1")
		assert.Equal(t, 1, c.CurrentRedemptions)
	})
}
