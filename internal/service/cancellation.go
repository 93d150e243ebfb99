package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/internal/metrics"
	"github.com/prohmpiriya/studio-booking/internal/repository"
	"github.com/prohmpiriya/studio-booking/pkg/clock"
	"github.com/prohmpiriya/studio-booking/pkg/logger"
	"github.com/prohmpiriya/studio-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// CancelResult is the outcome of a cancellation
type CancelResult struct {
	Booking      *domain.Booking
	Refunded     bool
	WithinWindow bool
	// Promoted is the waitlist entry that took the freed seat, if any
	Promoted *domain.Booking
}

// CancellationCoordinator reverses bookings and hands freed seats to the waitlist
type CancellationCoordinator interface {
	Cancel(ctx context.Context, bookingID string, actor domain.Actor) (*CancelResult, error)
}

type cancellationCoordinator struct {
	runner   *txRunner
	classes  repository.ClassInstanceRepository
	bookings repository.BookingRepository
	outbox   repository.OutboxRepository
	credits  CreditEngine
	waitlist WaitlistManager
	auth     *authorizer
	clock    clock.Clock
}

// CancellationConfig contains configuration for the cancellation coordinator
type CancellationConfig struct {
	OperationTimeout time.Duration
	StaffRole        string
}

// NewCancellationCoordinator creates a new CancellationCoordinator
func NewCancellationCoordinator(
	tx repository.Transactor,
	classes repository.ClassInstanceRepository,
	bookings repository.BookingRepository,
	outbox repository.OutboxRepository,
	staff repository.StaffRepository,
	credits CreditEngine,
	waitlist WaitlistManager,
	clk clock.Clock,
	cfg *CancellationConfig,
) CancellationCoordinator {
	if cfg == nil {
		cfg = &CancellationConfig{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &cancellationCoordinator{
		runner:   newTxRunner(tx, cfg.OperationTimeout),
		classes:  classes,
		bookings: bookings,
		outbox:   outbox,
		credits:  credits,
		waitlist: waitlist,
		auth:     newAuthorizer(staff, cfg.StaffRole),
		clock:    clk,
	}
}

// Cancel cancels a booking, refunds its credit when cancelled no later than
// the class deadline, and promotes the next waitlisted member. The class
// instance stays locked from the refund through the promotion.
func (c *cancellationCoordinator) Cancel(ctx context.Context, bookingID string, actor domain.Actor) (*CancelResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.cancellation.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID), attribute.String("actor_id", actor.ID))

	if bookingID == "" {
		span.SetStatus(codes.Error, "invalid booking_id")
		return nil, domain.ErrInvalidBookingID
	}

	var result *CancelResult
	var wasWaitlisted bool
	err := c.runner.run(ctx, "cancellation.cancel", func(txCtx context.Context) error {
		result = nil

		booking, err := c.bookings.GetByID(txCtx, bookingID)
		if err != nil {
			return err
		}
		if err := c.auth.canActFor(txCtx, booking.StudioID, booking.MemberID, actor); err != nil {
			return err
		}

		class, err := c.classes.GetForUpdate(txCtx, booking.ClassInstanceID)
		if err != nil {
			return err
		}
		// re-read under the class lock
		booking, err = c.bookings.GetByID(txCtx, bookingID)
		if err != nil {
			return err
		}
		if booking.IsCancelled() {
			return domain.ErrAlreadyCancelled
		}

		now := c.clock.Now()
		withinWindow, err := class.WithinCancellationWindow(now)
		if err != nil {
			return err
		}

		heldSeat := booking.HoldsSeat()
		wasWaitlisted = booking.IsWaitlisted()
		refunded := false
		if heldSeat && withinWindow {
			if credit, ok := booking.Credit(); ok {
				if err := c.credits.Refund(txCtx, credit); err != nil {
					return err
				}
				refunded = true
			}
		}

		reason := domain.CancelReasonStaff
		if actor.ID == booking.MemberID {
			reason = domain.CancelReasonMember
		}
		if err := booking.Cancel(reason, now); err != nil {
			return err
		}
		if err := c.bookings.Update(txCtx, booking); err != nil {
			return err
		}
		if heldSeat {
			if err := c.classes.AdjustBookedCount(txCtx, class.ID, -1); err != nil {
				return err
			}
		}

		if err := enqueueNotification(txCtx, c.outbox, domain.CancellationNotification(booking, refunded, withinWindow, now)); err != nil {
			return err
		}

		promoted, err := c.waitlist.PromoteNext(txCtx, class.ID)
		if err != nil {
			return fmt.Errorf("failed to promote waitlist: %w", err)
		}

		result = &CancelResult{
			Booking:      booking,
			Refunded:     refunded,
			WithinWindow: withinWindow,
			Promoted:     promoted,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordCancellation(ctx, result.Booking.ClassInstanceID, result.Refunded, wasWaitlisted)
	span.SetAttributes(
		attribute.Bool("credit_refunded", result.Refunded),
		attribute.Bool("within_window", result.WithinWindow),
	)
	if result.Promoted != nil {
		logger.Get().InfoContext(ctx, fmt.Sprintf("Promoted booking %s into seat freed by %s", result.Promoted.ID, bookingID),
			zap.String("class_instance_id", result.Booking.ClassInstanceID),
		)
	}
	return result, nil
}
