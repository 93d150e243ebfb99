package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMockGateway(t *testing.T) {
	gw := NewMockGateway()
	require.NotNil(t, gw)
	assert.Equal(t, "mock", gw.Name())
}

func TestMockGateway_CreateDiscount(t *testing.T) {
	gw := NewMockGateway()
	ctx := context.Background()

	h, err := gw.CreateDiscount(ctx, &DiscountRequest{
		IdempotencyKey: "red-1",
		CouponCode:     "SAVE20",
		Type:           domain.DiscountTypePercentOff,
		Value:          20,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(h.ID, "mock_coupon_"))
	assert.Equal(t, "mock", h.Provider)

	t.Run("same idempotency key returns same handle", func(t *testing.T) {
		again, err := gw.CreateDiscount(ctx, &DiscountRequest{
			IdempotencyKey: "red-1",
			CouponCode:     "SAVE20",
			Type:           domain.DiscountTypePercentOff,
			Value:          20,
		})
		require.NoError(t, err)
		assert.Equal(t, h.ID, again.ID)
	})

	t.Run("free classes are not a gateway discount", func(t *testing.T) {
		_, err := gw.CreateDiscount(ctx, &DiscountRequest{Type: domain.DiscountTypeFreeClasses, Value: 3})
		assert.Error(t, err)
	})

	t.Run("nil request", func(t *testing.T) {
		_, err := gw.CreateDiscount(ctx, nil)
		assert.Error(t, err)
	})

	assert.Len(t, gw.Requests(), 2)
}

func TestMockGateway_SetError(t *testing.T) {
	gw := NewMockGateway()
	gw.SetError(errors.New("gateway down"))

	_, err := gw.CreateDiscount(context.Background(), &DiscountRequest{Type: domain.DiscountTypeAmountOff, Value: 500})
	assert.EqualError(t, err, "gateway down")

	gw.SetError(nil)
	_, err = gw.CreateDiscount(context.Background(), &DiscountRequest{Type: domain.DiscountTypeAmountOff, Value: 500})
	assert.NoError(t, err)
}

func TestMockGateway_DelayRespectsContext(t *testing.T) {
	gw := NewMockGateway()
	gw.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := gw.CreateDiscount(ctx, &DiscountRequest{Type: domain.DiscountTypePercentOff, Value: 10})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStripeGateway_CouponParams(t *testing.T) {
	gw, err := NewStripeGateway(&StripeGatewayConfig{SecretKey: "sk_test_123"})
	require.NoError(t, err)
	assert.Equal(t, "stripe", gw.Name())

	t.Run("percent off", func(t *testing.T) {
		params, err := gw.couponParams(&DiscountRequest{
			IdempotencyKey: "red-1",
			CouponCode:     "SAVE20",
			StudioID:       "studio-1",
			Type:           domain.DiscountTypePercentOff,
			Value:          20,
		})
		require.NoError(t, err)
		require.NotNil(t, params.PercentOff)
		assert.Equal(t, 20.0, *params.PercentOff)
		assert.Nil(t, params.AmountOff)
		assert.Equal(t, int64(1), *params.MaxRedemptions)
		assert.Equal(t, "red-1", *params.IdempotencyKey)
		assert.Equal(t, "studio-1", params.Metadata["studio_id"])
	})

	t.Run("amount off uses default currency", func(t *testing.T) {
		params, err := gw.couponParams(&DiscountRequest{
			CouponCode: "TENOFF",
			Type:       domain.DiscountTypeAmountOff,
			Value:      1000,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1000), *params.AmountOff)
		assert.Equal(t, "usd", *params.Currency)
	})

	tests := []struct {
		name string
		req  *DiscountRequest
	}{
		{"nil request", nil},
		{"percent over 100", &DiscountRequest{Type: domain.DiscountTypePercentOff, Value: 150}},
		{"zero amount", &DiscountRequest{Type: domain.DiscountTypeAmountOff, Value: 0}},
		{"free classes", &DiscountRequest{Type: domain.DiscountTypeFreeClasses, Value: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gw.couponParams(tt.req)
			assert.Error(t, err)
		})
	}
}

func TestNewDiscountGateway(t *testing.T) {
	gw, err := NewDiscountGateway("", nil)
	require.NoError(t, err)
	assert.Equal(t, "mock", gw.Name())

	_, err = NewDiscountGateway("stripe", nil)
	assert.Error(t, err)

	gw, err = NewDiscountGateway("STRIPE", &GatewayConfig{SecretKey: "sk_test_123"})
	require.NoError(t, err)
	assert.Equal(t, "stripe", gw.Name())

	_, err = NewDiscountGateway("paypal", nil)
	assert.Error(t, err)
}
