package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Not found
	ErrClassNotFound   = errors.New("class not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrCouponNotFound  = errors.New("coupon not found")

	// Conflict
	ErrAlreadyBooked     = errors.New("member already booked or waitlisted for this class")
	ErrConcurrentUpdate  = errors.New("booking changed concurrently, please retry")
	ErrCapacityExceeded  = errors.New("class capacity exceeded")
	ErrInvalidTransition = errors.New("invalid booking status transition")

	// Bad request
	ErrNoCredits           = errors.New("no eligible credits")
	ErrClassNotAvailable   = errors.New("class not available")
	ErrAlreadyCancelled    = errors.New("booking already cancelled")
	ErrCouponInvalid       = errors.New("coupon is not valid")
	ErrInvalidClassID      = errors.New("invalid class instance id")
	ErrInvalidStudioID     = errors.New("invalid studio id")
	ErrInvalidMemberID     = errors.New("invalid member id")
	ErrInvalidBookingID    = errors.New("invalid booking id")
	ErrInvalidCouponCode   = errors.New("invalid coupon code")
	ErrInvalidAppliedTo    = errors.New("invalid coupon target")
	ErrInvalidTimezone     = errors.New("invalid studio timezone")
	ErrInvalidClassStart   = errors.New("invalid class start date or time")
	ErrCreditSourceMissing = errors.New("booking has no credit source")

	// Forbidden
	ErrForbidden = errors.New("actor is neither the booking owner nor studio staff")

	// Ledger
	ErrCreditExhausted = errors.New("entitlement has no remaining credit")
)

// CouponInvalidError carries the reason a coupon was rejected
type CouponInvalidError struct {
	Reason string
}

func (e *CouponInvalidError) Error() string {
	return fmt.Sprintf("coupon is not valid: %s", e.Reason)
}

func (e *CouponInvalidError) Unwrap() error {
	return ErrCouponInvalid
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrClassNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrCouponNotFound)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAlreadyBooked) ||
		errors.Is(err, ErrConcurrentUpdate) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsBadRequestError checks if the error is a validation or business-rule error
func IsBadRequestError(err error) bool {
	return errors.Is(err, ErrNoCredits) ||
		errors.Is(err, ErrClassNotAvailable) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrCouponInvalid) ||
		errors.Is(err, ErrInvalidClassID) ||
		errors.Is(err, ErrInvalidStudioID) ||
		errors.Is(err, ErrInvalidMemberID) ||
		errors.Is(err, ErrInvalidBookingID) ||
		errors.Is(err, ErrInvalidCouponCode) ||
		errors.Is(err, ErrInvalidAppliedTo)
}

// IsForbiddenError checks if the error is an authorization error
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// ErrorCode maps a domain error to the stable code returned to clients
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNoCredits):
		return "NO_CREDITS"
	case errors.Is(err, ErrClassNotAvailable):
		return "CLASS_NOT_AVAILABLE"
	case errors.Is(err, ErrAlreadyCancelled):
		return "ALREADY_CANCELLED"
	case errors.Is(err, ErrCouponInvalid):
		return "COUPON_INVALID"
	case errors.Is(err, ErrAlreadyBooked):
		return "ALREADY_BOOKED"
	case errors.Is(err, ErrConcurrentUpdate), errors.Is(err, ErrCapacityExceeded):
		return "CONCURRENT_UPDATE"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_STATUS"
	case errors.Is(err, ErrClassNotFound):
		return "CLASS_NOT_FOUND"
	case errors.Is(err, ErrBookingNotFound):
		return "BOOKING_NOT_FOUND"
	case errors.Is(err, ErrCouponNotFound):
		return "COUPON_NOT_FOUND"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case IsBadRequestError(err):
		return "INVALID_REQUEST"
	}
	return "INTERNAL_ERROR"
}
