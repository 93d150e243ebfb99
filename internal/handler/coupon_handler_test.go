package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/internal/dto"
	"github.com/prohmpiriya/studio-booking/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockCouponService is a mock implementation of CouponService for testing
type MockCouponService struct {
	ValidateFunc func(ctx context.Context, actor domain.Actor, req *dto.ValidateCouponRequest) (*dto.ValidateCouponResponse, error)
	RedeemFunc   func(ctx context.Context, actor domain.Actor, req *dto.RedeemCouponRequest) (*dto.RedeemCouponResponse, error)
}

func (m *MockCouponService) Validate(ctx context.Context, actor domain.Actor, req *dto.ValidateCouponRequest) (*dto.ValidateCouponResponse, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, actor, req)
	}
	return nil, nil
}

func (m *MockCouponService) Redeem(ctx context.Context, actor domain.Actor, req *dto.RedeemCouponRequest) (*dto.RedeemCouponResponse, error) {
	if m.RedeemFunc != nil {
		return m.RedeemFunc(ctx, actor, req)
	}
	return nil, nil
}

var _ service.CouponService = (*MockCouponService)(nil)

func setupCouponRouter(svc *MockCouponService, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(withUser(userID, "member"))

	h := NewCouponHandler(svc)
	router.POST("/coupons/validate", h.Validate)
	router.POST("/coupons/redeem", h.Redeem)
	return router
}

func TestValidateCoupon(t *testing.T) {
	svc := &MockCouponService{
		ValidateFunc: func(ctx context.Context, actor domain.Actor, req *dto.ValidateCouponRequest) (*dto.ValidateCouponResponse, error) {
			if req.Code == "EXPIRED" {
				return &dto.ValidateCouponResponse{Valid: false, Reason: "expired"}, nil
			}
			return &dto.ValidateCouponResponse{
				Valid:    true,
				Discount: &domain.Discount{Type: domain.DiscountTypePercentOff, Value: 20},
			}, nil
		},
	}
	router := setupCouponRouter(svc, "member-1")

	w := doJSON(router, http.MethodPost, "/coupons/validate", map[string]string{"code": "SPRING20", "studio_id": "studio-1"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.ValidateCouponResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	require.NotNil(t, resp.Discount)
	assert.Equal(t, int64(20), resp.Discount.Value)

	w = doJSON(router, http.MethodPost, "/coupons/validate", map[string]string{"code": "EXPIRED", "studio_id": "studio-1"})
	require.Equal(t, http.StatusOK, w.Code)
	resp = dto.ValidateCouponResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Equal(t, "expired", resp.Reason)
}

func TestValidateCoupon_MissingCode(t *testing.T) {
	router := setupCouponRouter(&MockCouponService{}, "member-1")

	w := doJSON(router, http.MethodPost, "/coupons/validate", map[string]string{"studio_id": "studio-1"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, w).Code)
}

func TestRedeemCoupon(t *testing.T) {
	svc := &MockCouponService{
		RedeemFunc: func(ctx context.Context, actor domain.Actor, req *dto.RedeemCouponRequest) (*dto.RedeemCouponResponse, error) {
			assert.Equal(t, "subscription", req.AppliedToType)
			return &dto.RedeemCouponResponse{
				RedemptionID: "red-1",
				CouponType:   string(domain.DiscountTypeFreeClasses),
				CompGrant:    &dto.CompGrantResponse{ID: "grant-1", RemainingClasses: 3},
			}, nil
		},
	}
	router := setupCouponRouter(svc, "member-1")

	w := doJSON(router, http.MethodPost, "/coupons/redeem", map[string]string{
		"code":            "FREE3",
		"studio_id":       "studio-1",
		"applied_to_type": "subscription",
		"applied_to_id":   "checkout-1",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp dto.RedeemCouponResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.CompGrant)
	assert.Equal(t, 3, resp.CompGrant.RemainingClasses)
}

func TestRedeemCoupon_InvalidCarriesReason(t *testing.T) {
	svc := &MockCouponService{
		RedeemFunc: func(ctx context.Context, actor domain.Actor, req *dto.RedeemCouponRequest) (*dto.RedeemCouponResponse, error) {
			return nil, &domain.CouponInvalidError{Reason: "limit reached"}
		},
	}
	router := setupCouponRouter(svc, "member-1")

	w := doJSON(router, http.MethodPost, "/coupons/redeem", map[string]string{
		"code":            "SPRING20",
		"studio_id":       "studio-1",
		"applied_to_type": "subscription",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "COUPON_INVALID", resp.Code)
	assert.Equal(t, "limit reached", resp.Message)
}

func TestRedeemCoupon_Unauthorized(t *testing.T) {
	router := setupCouponRouter(&MockCouponService{}, "")

	w := doJSON(router, http.MethodPost, "/coupons/redeem", map[string]string{
		"code":            "SPRING20",
		"studio_id":       "studio-1",
		"applied_to_type": "subscription",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
