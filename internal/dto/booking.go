package dto

import (
	"time"

	"github.com/prohmpiriya/studio-booking/internal/domain"
)

// CreateBookingRequest represents a request to book a class.
// MemberID defaults to the caller; staff may book on a member's behalf.
type CreateBookingRequest struct {
	StudioID        string `json:"studio_id" binding:"required"`
	ClassInstanceID string `json:"class_instance_id" binding:"required"`
	MemberID        string `json:"member_id,omitempty"`
}

// CreateBookingResponse is the outcome of a booking request
type CreateBookingResponse struct {
	Status           string `json:"status"`
	BookingID        string `json:"booking_id"`
	CreditSource     string `json:"credit_source,omitempty"`
	RemainingCredits *int   `json:"remaining_credits,omitempty"`
	WaitlistPosition *int   `json:"waitlist_position,omitempty"`
}

// CancelBookingResponse is the outcome of a cancellation
type CancelBookingResponse struct {
	BookingID                string `json:"booking_id"`
	Status                   string `json:"status"`
	CreditRefunded           bool   `json:"credit_refunded"`
	WithinCancellationWindow bool   `json:"within_cancellation_window"`
	PromotedBookingID        string `json:"promoted_booking_id,omitempty"`
}

// ConfirmBookingRequest carries the payment confirmation token
type ConfirmBookingRequest struct {
	ConfirmationToken string `json:"confirmation_token,omitempty"`
}

// BookingResponse represents a booking in API response
type BookingResponse struct {
	ID               string     `json:"id"`
	StudioID         string     `json:"studio_id"`
	ClassInstanceID  string     `json:"class_instance_id"`
	MemberID         string     `json:"member_id"`
	Status           string     `json:"status"`
	CreditSource     string     `json:"credit_source,omitempty"`
	CreditSourceID   string     `json:"credit_source_id,omitempty"`
	WaitlistPosition *int       `json:"waitlist_position,omitempty"`
	CancelReason     string     `json:"cancel_reason,omitempty"`
	BookedAt         *time.Time `json:"booked_at,omitempty"`
	ConfirmedAt      *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// AvailabilityResponse describes seat occupancy of a class instance
type AvailabilityResponse struct {
	ClassInstanceID string `json:"class_instance_id"`
	Status          string `json:"status"`
	Capacity        int    `json:"capacity"`
	Booked          int    `json:"booked"`
	Available       int    `json:"available"`
	Waitlisted      int    `json:"waitlisted"`
}

// EntitlementResponse describes one credit source a member holds
type EntitlementResponse struct {
	Source           string     `json:"source"`
	SourceID         string     `json:"source_id"`
	Eligible         bool       `json:"eligible"`
	RemainingClasses *int       `json:"remaining_classes,omitempty"`
	ClassLimit       *int       `json:"class_limit,omitempty"`
	ClassesUsed      *int       `json:"classes_used_this_period,omitempty"`
	Status           string     `json:"status,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

// MemberCreditsResponse lists a member's entitlements and the one that would pay next
type MemberCreditsResponse struct {
	StudioID     string                 `json:"studio_id"`
	MemberID     string                 `json:"member_id"`
	Entitlements []EntitlementResponse  `json:"entitlements"`
	NextCredit   *domain.ResolvedCredit `json:"next_credit,omitempty"`
}

// FromDomain converts domain Booking to BookingResponse
func FromDomain(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		ID:               b.ID,
		StudioID:         b.StudioID,
		ClassInstanceID:  b.ClassInstanceID,
		MemberID:         b.MemberID,
		Status:           string(b.Status),
		CreditSource:     string(b.CreditSource),
		CreditSourceID:   b.CreditSourceID,
		WaitlistPosition: b.WaitlistPosition,
		CancelReason:     b.CancelReason,
		BookedAt:         b.BookedAt,
		ConfirmedAt:      b.ConfirmedAt,
		CancelledAt:      b.CancelledAt,
		CreatedAt:        b.CreatedAt,
	}
}

// FromEntitlement converts an entitlement variant to its API shape
func FromEntitlement(e domain.Entitlement, now time.Time) EntitlementResponse {
	resp := EntitlementResponse{
		Source:    string(e.Source()),
		SourceID:  e.SourceID(),
		Eligible:  e.Eligible(now),
		ExpiresAt: e.Expiry(),
	}
	switch v := e.(type) {
	case *domain.CompClass:
		remaining := v.RemainingClasses
		resp.RemainingClasses = &remaining
	case *domain.ClassPack:
		remaining := v.RemainingClasses
		resp.RemainingClasses = &remaining
	case *domain.SubscriptionLimited:
		limit, used := v.ClassLimit, v.ClassesUsedThisPeriod
		resp.ClassLimit = &limit
		resp.ClassesUsed = &used
		resp.Status = string(v.Status)
	case *domain.SubscriptionUnlimited:
		resp.Status = string(v.Status)
	}
	return resp
}
