package gateway

import (
	"fmt"
	"strings"
)

// GatewayType represents the type of discount gateway
type GatewayType string

const (
	GatewayTypeMock   GatewayType = "mock"
	GatewayTypeStripe GatewayType = "stripe"
)

// NewDiscountGateway creates a discount gateway based on the type
func NewDiscountGateway(gatewayType string, config *GatewayConfig) (DiscountGateway, error) {
	switch GatewayType(strings.ToLower(gatewayType)) {
	case GatewayTypeMock, "":
		return NewMockGateway(), nil

	case GatewayTypeStripe:
		if config == nil || config.SecretKey == "" {
			return nil, fmt.Errorf("stripe secret key is required")
		}
		return NewStripeGateway(&StripeGatewayConfig{
			SecretKey:       config.SecretKey,
			DefaultCurrency: config.DefaultCurrency,
		})

	default:
		return nil, fmt.Errorf("unsupported gateway type: %s", gatewayType)
	}
}
