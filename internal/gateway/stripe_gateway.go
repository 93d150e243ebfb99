package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/coupon"
)

// StripeGateway implements DiscountGateway using Stripe coupons
type StripeGateway struct {
	config *StripeGatewayConfig
}

// StripeGatewayConfig holds configuration for Stripe gateway
type StripeGatewayConfig struct {
	SecretKey       string
	DefaultCurrency string
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	if config.DefaultCurrency == "" {
		config.DefaultCurrency = "usd"
	}

	// Set Stripe API key globally
	stripe.Key = config.SecretKey

	return &StripeGateway{
		config: config,
	}, nil
}

// CreateDiscount creates a single-use Stripe coupon for the redemption
func (g *StripeGateway) CreateDiscount(ctx context.Context, req *DiscountRequest) (*DiscountHandle, error) {
	params, err := g.couponParams(req)
	if err != nil {
		return nil, err
	}
	params.Context = ctx

	c, err := coupon.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe coupon: %w", err)
	}

	return &DiscountHandle{
		ID:       c.ID,
		Provider: g.Name(),
	}, nil
}

func (g *StripeGateway) couponParams(req *DiscountRequest) (*stripe.CouponParams, error) {
	if req == nil {
		return nil, fmt.Errorf("discount request is required")
	}

	params := &stripe.CouponParams{
		Duration:       stripe.String(string(stripe.CouponDurationOnce)),
		MaxRedemptions: stripe.Int64(1),
		Name:           stripe.String(req.CouponCode),
	}

	switch req.Type {
	case domain.DiscountTypePercentOff:
		if req.Value <= 0 || req.Value > 100 {
			return nil, fmt.Errorf("invalid percent off: %d", req.Value)
		}
		params.PercentOff = stripe.Float64(float64(req.Value))
	case domain.DiscountTypeAmountOff:
		if req.Value <= 0 {
			return nil, fmt.Errorf("invalid amount off: %d", req.Value)
		}
		currency := req.Currency
		if currency == "" {
			currency = g.config.DefaultCurrency
		}
		params.AmountOff = stripe.Int64(req.Value)
		params.Currency = stripe.String(strings.ToLower(currency))
	default:
		return nil, fmt.Errorf("discount type %s is not handled by the payment gateway", req.Type)
	}

	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.AddMetadata("studio_id", req.StudioID)
	params.AddMetadata("member_id", req.MemberID)
	params.AddMetadata("coupon_code", req.CouponCode)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return params, nil
}

// Name returns the gateway name
func (g *StripeGateway) Name() string {
	return "stripe"
}
