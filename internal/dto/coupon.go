package dto

import "github.com/prohmpiriya/studio-booking/internal/domain"

// ValidateCouponRequest represents a coupon validation request
type ValidateCouponRequest struct {
	Code     string `json:"code" binding:"required"`
	StudioID string `json:"studio_id" binding:"required"`
	MemberID string `json:"member_id,omitempty"`
	PlanID   string `json:"plan_id,omitempty"`
}

// ValidateCouponResponse reports whether a coupon can be used
type ValidateCouponResponse struct {
	Valid    bool             `json:"valid"`
	Discount *domain.Discount `json:"discount,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

// RedeemCouponRequest represents a coupon redemption request
type RedeemCouponRequest struct {
	Code          string `json:"code" binding:"required"`
	StudioID      string `json:"studio_id" binding:"required"`
	MemberID      string `json:"member_id,omitempty"`
	PlanID        string `json:"plan_id,omitempty"`
	AppliedToType string `json:"applied_to_type" binding:"required"`
	AppliedToID   string `json:"applied_to_id,omitempty"`
}

// CompGrantResponse describes a comp credit created by a redemption
type CompGrantResponse struct {
	ID               string `json:"id"`
	RemainingClasses int    `json:"remaining_classes"`
}

// RedeemCouponResponse is the outcome of a redemption
type RedeemCouponResponse struct {
	RedemptionID   string             `json:"redemption_id"`
	CouponType     string             `json:"coupon_type"`
	DiscountHandle string             `json:"discount_handle,omitempty"`
	CompGrant      *CompGrantResponse `json:"comp_grant,omitempty"`
}
