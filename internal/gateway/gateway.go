package gateway

import (
	"context"

	"github.com/prohmpiriya/studio-booking/internal/domain"
)

// DiscountGateway creates payment-gateway discounts for percent_off and
// amount_off coupon redemptions
type DiscountGateway interface {
	// CreateDiscount creates a single-use discount and returns its handle.
	// Repeating a request with the same IdempotencyKey returns the same handle.
	CreateDiscount(ctx context.Context, req *DiscountRequest) (*DiscountHandle, error)

	// Name returns the gateway name
	Name() string
}

// DiscountRequest represents a discount creation request
type DiscountRequest struct {
	IdempotencyKey string
	CouponCode     string
	StudioID       string
	MemberID       string
	Type           domain.DiscountType
	// Value is a percentage for percent_off and minor currency units for amount_off
	Value    int64
	Currency string
	Metadata map[string]string
}

// DiscountHandle is the gateway reference the caller passes through to checkout
type DiscountHandle struct {
	ID       string
	Provider string
}

// GatewayConfig holds common gateway configuration
type GatewayConfig struct {
	SecretKey       string
	DefaultCurrency string
}
