package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/internal/metrics"
	"github.com/prohmpiriya/studio-booking/internal/repository"
	"github.com/prohmpiriya/studio-booking/pkg/clock"
	"github.com/prohmpiriya/studio-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AdmissionOutcome is the result kind of an admission attempt
type AdmissionOutcome string

const (
	AdmissionBooked     AdmissionOutcome = "booked"
	AdmissionWaitlisted AdmissionOutcome = "waitlisted"
	AdmissionRejected   AdmissionOutcome = "rejected"
)

// AdmissionRequest identifies the seat being requested
type AdmissionRequest struct {
	StudioID        string
	ClassInstanceID string
	MemberID        string
	CreatedBy       string
}

// Decision is the outcome of an admission attempt.
// Booking is set for Booked and Waitlisted; Reason is set for Rejected.
type Decision struct {
	Outcome AdmissionOutcome
	Booking *domain.Booking
	Reason  error
}

// Position returns the waitlist position of a Waitlisted decision
func (d *Decision) Position() (int, bool) {
	if d.Booking == nil || d.Booking.WaitlistPosition == nil {
		return 0, false
	}
	return *d.Booking.WaitlistPosition, true
}

// AdmissionGate decides booked, waitlisted or rejected for a seat request
type AdmissionGate interface {
	Admit(ctx context.Context, req AdmissionRequest) (*Decision, error)
}

type admissionGate struct {
	runner   *txRunner
	classes  repository.ClassInstanceRepository
	bookings repository.BookingRepository
	credits  CreditEngine
	waitlist WaitlistManager
	clock    clock.Clock
}

// NewAdmissionGate creates a new AdmissionGate
func NewAdmissionGate(
	tx repository.Transactor,
	classes repository.ClassInstanceRepository,
	bookings repository.BookingRepository,
	credits CreditEngine,
	waitlist WaitlistManager,
	clk clock.Clock,
	operationTimeout time.Duration,
) AdmissionGate {
	if clk == nil {
		clk = clock.Real{}
	}
	return &admissionGate{
		runner:   newTxRunner(tx, operationTimeout),
		classes:  classes,
		bookings: bookings,
		credits:  credits,
		waitlist: waitlist,
		clock:    clk,
	}
}

// Admit runs the whole decision under the class instance lock, so reading the
// occupied seats and inserting the booking cannot interleave with another
// admission or cancellation of the same class.
func (g *admissionGate) Admit(ctx context.Context, req AdmissionRequest) (*Decision, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.admission.admit")
	defer span.End()
	span.SetAttributes(
		attribute.String("class_instance_id", req.ClassInstanceID),
		attribute.String("member_id", req.MemberID),
	)
	start := time.Now()

	var decision *Decision
	err := g.runner.run(ctx, "admission.admit", func(txCtx context.Context) error {
		decision = nil

		class, err := g.classes.GetForUpdate(txCtx, req.ClassInstanceID)
		if err != nil {
			return err
		}
		if req.StudioID != "" && class.StudioID != req.StudioID {
			return domain.ErrClassNotFound
		}

		now := g.clock.Now()
		if err := class.CheckBookable(now); err != nil {
			return err
		}

		existing, err := g.bookings.GetActiveByMember(txCtx, class.ID, req.MemberID)
		switch {
		case err == nil && existing.IsWaitlisted() && class.HasFreeSeat():
			promoted, err := g.claimFreeSeat(txCtx, class.ID, existing.ID)
			if err != nil {
				return err
			}
			if promoted == nil {
				// promotions of entries ahead still commit
				decision = &Decision{Outcome: AdmissionRejected, Reason: domain.ErrAlreadyBooked}
				return nil
			}
			decision = &Decision{Outcome: AdmissionBooked, Booking: promoted}
			return nil
		case err == nil:
			return domain.ErrAlreadyBooked
		case !errors.Is(err, domain.ErrBookingNotFound):
			return err
		}

		if !class.HasFreeSeat() {
			booking, err := g.waitlist.Enqueue(txCtx, class, req.MemberID, req.CreatedBy)
			if err != nil {
				return err
			}
			decision = &Decision{Outcome: AdmissionWaitlisted, Booking: booking}
			return nil
		}

		credit, err := g.credits.ResolveAndDeduct(txCtx, class.StudioID, req.MemberID)
		if err != nil {
			return err
		}

		booking := domain.NewSeatedBooking(uuid.New().String(), class, req.MemberID, req.CreatedBy, credit, now)
		if err := g.bookings.Create(txCtx, booking); err != nil {
			return err
		}
		if err := g.classes.AdjustBookedCount(txCtx, class.ID, 1); err != nil {
			return err
		}
		decision = &Decision{Outcome: AdmissionBooked, Booking: booking}
		return nil
	})

	if err != nil {
		if !isRejection(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		decision = &Decision{Outcome: AdmissionRejected, Reason: err}
	}

	span.SetAttributes(attribute.String("outcome", string(decision.Outcome)))
	metrics.RecordAdmission(ctx, req.ClassInstanceID, string(decision.Outcome), time.Since(start).Seconds())
	return decision, nil
}

// claimFreeSeat promotes waitlisted entries in FIFO order while seats are
// free, stopping once bookingID is promoted. A member skipped earlier for lack
// of credit gets a free seat this way unless an eligible entry is ahead.
func (g *admissionGate) claimFreeSeat(ctx context.Context, classInstanceID, bookingID string) (*domain.Booking, error) {
	for {
		promoted, err := g.waitlist.PromoteNext(ctx, classInstanceID)
		if err != nil || promoted == nil {
			return nil, err
		}
		if promoted.ID == bookingID {
			return promoted, nil
		}
	}
}

// isRejection reports whether err is a business outcome rather than a failure
func isRejection(err error) bool {
	return errors.Is(err, domain.ErrClassNotAvailable) ||
		errors.Is(err, domain.ErrAlreadyBooked) ||
		errors.Is(err, domain.ErrNoCredits)
}
