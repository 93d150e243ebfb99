package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// alphanumericChars for generating Stripe-compatible IDs
const alphanumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomAlphanumeric generates a random alphanumeric string of given length
func randomAlphanumeric(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphanumericChars[rand.Intn(len(alphanumericChars))]
	}
	return string(b)
}

// MockGateway implements DiscountGateway in memory for development and tests
type MockGateway struct {
	mu        sync.Mutex
	discounts map[string]*DiscountHandle
	requests  []*DiscountRequest
	delay     time.Duration
	err       error
}

// NewMockGateway creates a new mock gateway
func NewMockGateway() *MockGateway {
	return &MockGateway{
		discounts: make(map[string]*DiscountHandle),
	}
}

// CreateDiscount returns a fake coupon handle, reusing it for a repeated idempotency key
func (g *MockGateway) CreateDiscount(ctx context.Context, req *DiscountRequest) (*DiscountHandle, error) {
	if req == nil {
		return nil, fmt.Errorf("discount request is required")
	}
	if !req.Type.UsesPaymentGateway() {
		return nil, fmt.Errorf("discount type %s is not handled by the payment gateway", req.Type)
	}

	g.mu.Lock()
	delay, failure := g.delay, g.err
	g.mu.Unlock()

	// Simulate processing delay
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if failure != nil {
		return nil, failure
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, req)
	if req.IdempotencyKey != "" {
		if h, ok := g.discounts[req.IdempotencyKey]; ok {
			return h, nil
		}
	}

	h := &DiscountHandle{
		ID:       "mock_coupon_" + randomAlphanumeric(14),
		Provider: g.Name(),
	}
	if req.IdempotencyKey != "" {
		g.discounts[req.IdempotencyKey] = h
	}
	return h, nil
}

// Name returns the gateway name
func (g *MockGateway) Name() string {
	return "mock"
}

// SetDelay sets the simulated processing delay (for testing)
func (g *MockGateway) SetDelay(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delay = d
}

// SetError makes every following call fail with err; nil restores success
func (g *MockGateway) SetError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// Requests returns the requests received so far
func (g *MockGateway) Requests() []*DiscountRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*DiscountRequest, len(g.requests))
	copy(out, g.requests)
	return out
}
