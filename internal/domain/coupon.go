package domain

import (
	"strings"
	"time"
)

// DiscountType is the shape of the benefit a coupon grants
type DiscountType string

const (
	DiscountTypePercentOff  DiscountType = "percent_off"
	DiscountTypeAmountOff   DiscountType = "amount_off"
	DiscountTypeFreeClasses DiscountType = "free_classes"
)

// IsValid checks if the type is a valid DiscountType
func (t DiscountType) IsValid() bool {
	switch t {
	case DiscountTypePercentOff, DiscountTypeAmountOff, DiscountTypeFreeClasses:
		return true
	}
	return false
}

// UsesPaymentGateway reports whether redemption produces a gateway discount handle
func (t DiscountType) UsesPaymentGateway() bool {
	return t == DiscountTypePercentOff || t == DiscountTypeAmountOff
}

// CouponScope restricts who may use a coupon
type CouponScope string

const (
	CouponScopeAny       CouponScope = "any"
	CouponScopePlan      CouponScope = "plan"
	CouponScopeNewMember CouponScope = "new_member"
)

// AppliedToType is what a redemption was applied to
type AppliedToType string

const (
	AppliedToSubscription AppliedToType = "subscription"
	AppliedToClassPack    AppliedToType = "class_pack"
	AppliedToDropIn       AppliedToType = "drop_in"
)

// IsValid checks if the type is a valid AppliedToType
func (t AppliedToType) IsValid() bool {
	switch t {
	case AppliedToSubscription, AppliedToClassPack, AppliedToDropIn:
		return true
	}
	return false
}

// Coupon rejection reasons
const (
	CouponReasonNotFound      = "coupon not found"
	CouponReasonInactive      = "coupon is not active"
	CouponReasonNotYetValid   = "coupon is not yet valid"
	CouponReasonExpired       = "coupon has expired"
	CouponReasonLimitReached  = "limit reached"
	CouponReasonPlanMismatch  = "coupon does not apply to this plan"
	CouponReasonNewMemberOnly = "coupon is for new members only"
)

// Coupon is a studio promotional code.
// Value is a percentage for percent_off, minor currency units for amount_off and
// a class count for free_classes.
type Coupon struct {
	ID                 string       `json:"id"`
	StudioID           string       `json:"studio_id"`
	Code               string       `json:"code"`
	Type               DiscountType `json:"type"`
	Value              int64        `json:"value"`
	Currency           string       `json:"currency,omitempty"`
	AppliesTo          CouponScope  `json:"applies_to"`
	PlanIDs            []string     `json:"plan_ids,omitempty"`
	Active             bool         `json:"active"`
	ValidFrom          *time.Time   `json:"valid_from,omitempty"`
	ValidUntil         *time.Time   `json:"valid_until,omitempty"`
	MaxRedemptions     *int         `json:"max_redemptions,omitempty"`
	CurrentRedemptions int          `json:"current_redemptions"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// NormalizeCouponCode trims and upper-cases a code
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// EligibilityInput carries the member facts a coupon check needs
type EligibilityInput struct {
	PlanID             string
	PriorSubscriptions int
}

// CheckEligibility runs the coupon rules in order and stops at the first failure.
// Existence is the caller's concern.
func (c *Coupon) CheckEligibility(now time.Time, in EligibilityInput) error {
	if !c.Active {
		return &CouponInvalidError{Reason: CouponReasonInactive}
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return &CouponInvalidError{Reason: CouponReasonNotYetValid}
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return &CouponInvalidError{Reason: CouponReasonExpired}
	}
	if c.LimitReached() {
		return &CouponInvalidError{Reason: CouponReasonLimitReached}
	}
	switch c.AppliesTo {
	case CouponScopePlan:
		if !c.CoversPlan(in.PlanID) {
			return &CouponInvalidError{Reason: CouponReasonPlanMismatch}
		}
	case CouponScopeNewMember:
		if in.PriorSubscriptions > 0 {
			return &CouponInvalidError{Reason: CouponReasonNewMemberOnly}
		}
	}
	return nil
}

// LimitReached reports whether a capped coupon has no redemptions left
func (c *Coupon) LimitReached() bool {
	return c.MaxRedemptions != nil && c.CurrentRedemptions >= *c.MaxRedemptions
}

// CoversPlan reports whether planID is in the coupon's plan list
func (c *Coupon) CoversPlan(planID string) bool {
	if planID == "" {
		return false
	}
	for _, id := range c.PlanIDs {
		if id == planID {
			return true
		}
	}
	return false
}

// Discount describes the benefit returned by a successful validation
func (c *Coupon) Discount() Discount {
	return Discount{
		Type:     c.Type,
		Value:    c.Value,
		Currency: c.Currency,
	}
}

// Discount is the client-facing view of a coupon benefit
type Discount struct {
	Type     DiscountType `json:"type"`
	Value    int64        `json:"value"`
	Currency string       `json:"currency,omitempty"`
}

// AppliedTo identifies the purchase a coupon was redeemed against
type AppliedTo struct {
	Type AppliedToType `json:"type"`
	ID   string        `json:"id,omitempty"`
}

// CouponRedemption is the audit record of one redemption. A gateway-backed
// redemption is reserved without a DiscountHandle; the handle is set once.
type CouponRedemption struct {
	ID             string        `json:"id"`
	CouponID       string        `json:"coupon_id"`
	StudioID       string        `json:"studio_id"`
	MemberID       string        `json:"member_id"`
	AppliedToType  AppliedToType `json:"applied_to_type"`
	AppliedToID    string        `json:"applied_to_id,omitempty"`
	CouponType     DiscountType  `json:"coupon_type"`
	DiscountHandle string        `json:"discount_handle,omitempty"`
	CompGrantID    string        `json:"comp_grant_id,omitempty"`
	RedeemedAt     time.Time     `json:"redeemed_at"`
}
