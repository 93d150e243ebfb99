package repository

import (
	"context"
	"time"

	"github.com/prohmpiriya/studio-booking/internal/domain"
)

// Transactor runs fn inside one unit of work. Repositories called with the
// ctx handed to fn join that unit of work; a nested call joins the outer one.
type Transactor interface {
	WithTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// InTransaction reports whether ctx carries a unit of work from either store
func InTransaction(ctx context.Context) bool {
	if inTx(ctx) {
		return true
	}
	_, ok := ctx.Value(memTxKey{}).(*memTx)
	return ok
}

// ClassInstanceRepository reads and locks class instances
type ClassInstanceRepository interface {
	// GetByID retrieves a class instance without locking it
	GetByID(ctx context.Context, id string) (*domain.ClassInstance, error)

	// GetForUpdate retrieves a class instance and holds its lock until the
	// surrounding transaction ends. Must be called inside WithTx.
	GetForUpdate(ctx context.Context, id string) (*domain.ClassInstance, error)

	// AdjustBookedCount adds delta to the booked count. Returns
	// ErrCapacityExceeded if the result would exceed capacity.
	AdjustBookedCount(ctx context.Context, id string, delta int) error

	// ListWaitlistExpired lists classes that still have waitlisted bookings but
	// are no longer scheduled or have started by now
	ListWaitlistExpired(ctx context.Context, now time.Time, limit int) ([]*domain.ClassInstance, error)
}

// BookingRepository defines the interface for booking data access
type BookingRepository interface {
	// Create inserts a booking. Returns ErrAlreadyBooked if the member holds
	// another non-cancelled booking for the class.
	Create(ctx context.Context, booking *domain.Booking) error

	// GetByID retrieves a booking by its ID
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// GetActiveByMember returns the member's non-cancelled booking for a class
	GetActiveByMember(ctx context.Context, classInstanceID, memberID string) (*domain.Booking, error)

	// Update persists status, credit and timestamp changes
	Update(ctx context.Context, booking *domain.Booking) error

	// ListWaitlisted returns waitlisted bookings in FIFO order
	ListWaitlisted(ctx context.Context, classInstanceID string) ([]*domain.Booking, error)

	// WaitlistPosition returns the 1-indexed rank of a waitlisted booking
	WaitlistPosition(ctx context.Context, booking *domain.Booking) (int, error)

	// CountByStatus counts bookings of a class in the given status
	CountByStatus(ctx context.Context, classInstanceID string, status domain.BookingStatus) (int, error)
}

// CreditLedgerRepository is the store of member entitlements
type CreditLedgerRepository interface {
	// ListEntitlements returns every entitlement a member holds at a studio
	ListEntitlements(ctx context.Context, studioID, memberID string) ([]domain.Entitlement, error)

	// Deduct consumes one credit with a conditional update and returns the
	// credit with the actual remaining balance. Returns ErrCreditExhausted
	// when the source no longer has a credit.
	Deduct(ctx context.Context, credit domain.ResolvedCredit) (domain.ResolvedCredit, error)

	// Refund restores a credit previously returned by Deduct
	Refund(ctx context.Context, credit domain.ResolvedCredit) error

	// CreateCompGrant inserts a comp class grant
	CreateCompGrant(ctx context.Context, grant *domain.CompClass) error

	// CountSubscriptions counts a member's subscriptions at a studio, in any status
	CountSubscriptions(ctx context.Context, studioID, memberID string) (int, error)
}

// CouponRepository defines the interface for coupon data access
type CouponRepository interface {
	// GetByCode retrieves a coupon by studio and normalized code
	GetByCode(ctx context.Context, studioID, code string) (*domain.Coupon, error)

	// IncrementRedemptions atomically bumps the redemption counter. Returns a
	// CouponInvalidError with reason "limit reached" when the cap is hit.
	IncrementRedemptions(ctx context.Context, couponID string) (int, error)

	// CreateRedemption inserts the redemption record
	CreateRedemption(ctx context.Context, redemption *domain.CouponRedemption) error

	// AttachDiscountHandle sets the gateway handle on a reserved redemption
	AttachDiscountHandle(ctx context.Context, redemptionID, handle string) error

	// ReleaseRedemption deletes a reserved redemption that never got a handle
	// and gives its slot back to the coupon counter
	ReleaseRedemption(ctx context.Context, redemption *domain.CouponRedemption) error
}

// StaffRepository answers studio staff membership
type StaffRepository interface {
	IsStaff(ctx context.Context, studioID, memberID string) (bool, error)
}

// OutboxRepository defines the interface for outbox data access
type OutboxRepository interface {
	// Create inserts an outbox message, joining the caller's transaction
	Create(ctx context.Context, msg *domain.OutboxMessage) error

	// FetchPending locks up to limit pending messages for the surrounding
	// transaction, skipping rows locked by other relays
	FetchPending(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)

	// MarkAsPublished marks a message as successfully published
	MarkAsPublished(ctx context.Context, id string, at time.Time) error

	// MarkAsFailed records a failed attempt; the message becomes failed once
	// retries are exhausted
	MarkAsFailed(ctx context.Context, id string, errMsg string, at time.Time) error

	// DeletePublished deletes published messages older than cutoff
	DeletePublished(ctx context.Context, cutoff time.Time) (int64, error)
}
