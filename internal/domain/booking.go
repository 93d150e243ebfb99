package domain

import (
	"strings"
	"time"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusBooked     BookingStatus = "booked"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusWaitlisted BookingStatus = "waitlisted"
	BookingStatusCancelled  BookingStatus = "cancelled"
)

// Cancellation reasons stored on the booking
const (
	CancelReasonMember          = "member_cancelled"
	CancelReasonStaff           = "staff_cancelled"
	CancelReasonWaitlistExpired = "waitlist_expired"
)

// IsValid checks if the status is a valid BookingStatus
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusBooked, BookingStatusConfirmed, BookingStatusWaitlisted, BookingStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of BookingStatus
func (s BookingStatus) String() string {
	return string(s)
}

// Booking is one member's reservation (or waitlist entry) for a class instance
type Booking struct {
	ID              string        `json:"id"`
	StudioID        string        `json:"studio_id"`
	ClassInstanceID string        `json:"class_instance_id"`
	MemberID        string        `json:"member_id"`
	Status          BookingStatus `json:"status"`
	CreditSource    CreditSource  `json:"credit_source,omitempty"`
	CreditSourceID  string        `json:"credit_source_id,omitempty"`
	// CreditRemainingAfter is the ledger value right after deduction; nil for unlimited plans.
	CreditRemainingAfter *int       `json:"credit_remaining_after,omitempty"`
	WaitlistPosition     *int       `json:"waitlist_position,omitempty"`
	CreatedBy            string     `json:"created_by,omitempty"`
	CancelReason         string     `json:"cancel_reason,omitempty"`
	ConfirmationToken    string     `json:"confirmation_token,omitempty"`
	WaitlistedAt         *time.Time `json:"waitlisted_at,omitempty"`
	BookedAt             *time.Time `json:"booked_at,omitempty"`
	ConfirmedAt          *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NewSeatedBooking creates a booking that holds a seat paid for by credit
func NewSeatedBooking(id string, class *ClassInstance, memberID, createdBy string, credit ResolvedCredit, now time.Time) *Booking {
	b := &Booking{
		ID:              id,
		StudioID:        class.StudioID,
		ClassInstanceID: class.ID,
		MemberID:        memberID,
		Status:          BookingStatusBooked,
		CreatedBy:       createdBy,
		BookedAt:        &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	b.applyCredit(credit)
	return b
}

// NewWaitlistedBooking creates a waitlist entry; it holds no seat and no credit
func NewWaitlistedBooking(id string, class *ClassInstance, memberID, createdBy string, now time.Time) *Booking {
	return &Booking{
		ID:              id,
		StudioID:        class.StudioID,
		ClassInstanceID: class.ID,
		MemberID:        memberID,
		Status:          BookingStatusWaitlisted,
		CreatedBy:       createdBy,
		WaitlistedAt:    &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Validate validates identifiers and status
func (b *Booking) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return ErrInvalidBookingID
	}
	if strings.TrimSpace(b.ClassInstanceID) == "" {
		return ErrInvalidClassID
	}
	if strings.TrimSpace(b.MemberID) == "" {
		return ErrInvalidMemberID
	}
	if !b.Status.IsValid() {
		return ErrInvalidTransition
	}
	return nil
}

// IsActive reports whether the booking still counts as the member's booking for the class
func (b *Booking) IsActive() bool {
	return b.Status != BookingStatusCancelled
}

// HoldsSeat reports whether the booking occupies a seat
func (b *Booking) HoldsSeat() bool {
	return b.Status == BookingStatusBooked || b.Status == BookingStatusConfirmed
}

// IsWaitlisted checks if the booking is a waitlist entry
func (b *Booking) IsWaitlisted() bool {
	return b.Status == BookingStatusWaitlisted
}

// IsCancelled checks if the booking is cancelled
func (b *Booking) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// Credit returns the credit that paid for the booking, if any
func (b *Booking) Credit() (ResolvedCredit, bool) {
	if b.CreditSource == "" || b.CreditSourceID == "" {
		return ResolvedCredit{}, false
	}
	return ResolvedCredit{
		Source:         b.CreditSource,
		SourceID:       b.CreditSourceID,
		RemainingAfter: b.CreditRemainingAfter,
	}, true
}

// Promote moves a waitlist entry into a seat paid for by credit
func (b *Booking) Promote(credit ResolvedCredit, now time.Time) error {
	if b.Status != BookingStatusWaitlisted {
		return ErrInvalidTransition
	}
	b.Status = BookingStatusBooked
	b.WaitlistPosition = nil
	b.BookedAt = &now
	b.UpdatedAt = now
	b.applyCredit(credit)
	return nil
}

// Confirm marks a booked seat as confirmed
func (b *Booking) Confirm(token string, now time.Time) error {
	switch b.Status {
	case BookingStatusBooked:
	case BookingStatusCancelled:
		return ErrAlreadyCancelled
	default:
		return ErrInvalidTransition
	}
	b.Status = BookingStatusConfirmed
	b.ConfirmationToken = token
	b.ConfirmedAt = &now
	b.UpdatedAt = now
	return nil
}

// Cancel moves any non-cancelled booking to cancelled
func (b *Booking) Cancel(reason string, now time.Time) error {
	if b.Status == BookingStatusCancelled {
		return ErrAlreadyCancelled
	}
	b.Status = BookingStatusCancelled
	b.CancelReason = reason
	b.WaitlistPosition = nil
	b.CancelledAt = &now
	b.UpdatedAt = now
	return nil
}

func (b *Booking) applyCredit(credit ResolvedCredit) {
	b.CreditSource = credit.Source
	b.CreditSourceID = credit.SourceID
	b.CreditRemainingAfter = credit.RemainingAfter
}
