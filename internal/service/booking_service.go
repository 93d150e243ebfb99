package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/internal/dto"
	"github.com/prohmpiriya/studio-booking/internal/metrics"
	"github.com/prohmpiriya/studio-booking/internal/repository"
	"github.com/prohmpiriya/studio-booking/pkg/clock"
	"github.com/prohmpiriya/studio-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingService defines the interface for booking business logic
type BookingService interface {
	// CreateBooking books a seat, joins the waitlist, or rejects the request
	CreateBooking(ctx context.Context, actor domain.Actor, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error)

	// CancelBooking cancels a booking on behalf of its owner or studio staff
	CancelBooking(ctx context.Context, bookingID string, actor domain.Actor) (*dto.CancelBookingResponse, error)

	// ConfirmBooking moves a booked seat to confirmed
	ConfirmBooking(ctx context.Context, bookingID string, actor domain.Actor, req *dto.ConfirmBookingRequest) (*dto.BookingResponse, error)

	// GetBooking retrieves a booking with its live waitlist position
	GetBooking(ctx context.Context, bookingID string, actor domain.Actor) (*dto.BookingResponse, error)

	// GetAvailability reports seat occupancy of a class instance
	GetAvailability(ctx context.Context, classInstanceID string) (*dto.AvailabilityResponse, error)

	// GetMemberCredits lists a member's entitlements at a studio
	GetMemberCredits(ctx context.Context, studioID, memberID string, actor domain.Actor) (*dto.MemberCreditsResponse, error)
}

// bookingService implements BookingService
type bookingService struct {
	runner       *txRunner
	classes      repository.ClassInstanceRepository
	bookings     repository.BookingRepository
	admission    AdmissionGate
	cancellation CancellationCoordinator
	waitlist     WaitlistManager
	credits      CreditEngine
	auth         *authorizer
	clock        clock.Clock
}

// BookingServiceConfig contains configuration for booking service
type BookingServiceConfig struct {
	OperationTimeout time.Duration
	StaffRole        string
}

// BookingServiceDeps groups the collaborators of the booking service
type BookingServiceDeps struct {
	Tx           repository.Transactor
	Classes      repository.ClassInstanceRepository
	Bookings     repository.BookingRepository
	Staff        repository.StaffRepository
	Admission    AdmissionGate
	Cancellation CancellationCoordinator
	Waitlist     WaitlistManager
	Credits      CreditEngine
	Clock        clock.Clock
}

// NewBookingService creates a new booking service
func NewBookingService(deps BookingServiceDeps, cfg *BookingServiceConfig) BookingService {
	if cfg == nil {
		cfg = &BookingServiceConfig{}
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &bookingService{
		runner:       newTxRunner(deps.Tx, cfg.OperationTimeout),
		classes:      deps.Classes,
		bookings:     deps.Bookings,
		admission:    deps.Admission,
		cancellation: deps.Cancellation,
		waitlist:     deps.Waitlist,
		credits:      deps.Credits,
		auth:         newAuthorizer(deps.Staff, cfg.StaffRole),
		clock:        clk,
	}
}

// CreateBooking books a seat for the caller or, for staff, for another member
func (s *bookingService) CreateBooking(ctx context.Context, actor domain.Actor, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.create")
	defer span.End()

	if req == nil || req.ClassInstanceID == "" {
		span.SetStatus(codes.Error, "invalid class_instance_id")
		return nil, domain.ErrInvalidClassID
	}
	if req.StudioID == "" {
		span.SetStatus(codes.Error, "invalid studio_id")
		return nil, domain.ErrInvalidStudioID
	}
	if actor.ID == "" {
		span.SetStatus(codes.Error, "invalid member_id")
		return nil, domain.ErrInvalidMemberID
	}

	memberID := req.MemberID
	if memberID == "" {
		memberID = actor.ID
	}
	if err := s.auth.canActFor(ctx, req.StudioID, memberID, actor); err != nil {
		span.SetStatus(codes.Error, "forbidden")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("studio_id", req.StudioID),
		attribute.String("class_instance_id", req.ClassInstanceID),
		attribute.String("member_id", memberID),
	)

	decision, err := s.admission.Admit(ctx, AdmissionRequest{
		StudioID:        req.StudioID,
		ClassInstanceID: req.ClassInstanceID,
		MemberID:        memberID,
		CreatedBy:       actor.ID,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	switch decision.Outcome {
	case AdmissionRejected:
		span.SetStatus(codes.Error, decision.Reason.Error())
		return nil, decision.Reason
	case AdmissionWaitlisted:
		resp := &dto.CreateBookingResponse{
			Status:    string(domain.BookingStatusWaitlisted),
			BookingID: decision.Booking.ID,
		}
		if pos, ok := decision.Position(); ok {
			resp.WaitlistPosition = &pos
		}
		return resp, nil
	default:
		b := decision.Booking
		return &dto.CreateBookingResponse{
			Status:           string(b.Status),
			BookingID:        b.ID,
			CreditSource:     string(b.CreditSource),
			RemainingCredits: b.CreditRemainingAfter,
		}, nil
	}
}

// CancelBooking cancels a booking
func (s *bookingService) CancelBooking(ctx context.Context, bookingID string, actor domain.Actor) (*dto.CancelBookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()

	result, err := s.cancellation.Cancel(ctx, bookingID, actor)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	resp := &dto.CancelBookingResponse{
		BookingID:                result.Booking.ID,
		Status:                   string(result.Booking.Status),
		CreditRefunded:           result.Refunded,
		WithinCancellationWindow: result.WithinWindow,
	}
	if result.Promoted != nil {
		resp.PromotedBookingID = result.Promoted.ID
	}
	return resp, nil
}

// ConfirmBooking confirms a booked seat. The class lock keeps it from
// interleaving with a cancellation of the same booking.
func (s *bookingService) ConfirmBooking(ctx context.Context, bookingID string, actor domain.Actor, req *dto.ConfirmBookingRequest) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.confirm")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID))

	if bookingID == "" {
		span.SetStatus(codes.Error, "invalid booking_id")
		return nil, domain.ErrInvalidBookingID
	}
	token := ""
	if req != nil {
		token = req.ConfirmationToken
	}

	var confirmed *domain.Booking
	err := s.runner.run(ctx, "booking.confirm", func(txCtx context.Context) error {
		confirmed = nil

		booking, err := s.bookings.GetByID(txCtx, bookingID)
		if err != nil {
			return err
		}
		if err := s.auth.canActFor(txCtx, booking.StudioID, booking.MemberID, actor); err != nil {
			return err
		}
		if _, err := s.classes.GetForUpdate(txCtx, booking.ClassInstanceID); err != nil {
			return err
		}
		booking, err = s.bookings.GetByID(txCtx, bookingID)
		if err != nil {
			return err
		}
		if err := booking.Confirm(token, s.clock.Now()); err != nil {
			return err
		}
		if err := s.bookings.Update(txCtx, booking); err != nil {
			return err
		}
		confirmed = booking
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordConfirmation(ctx, confirmed.ClassInstanceID)
	return dto.FromDomain(confirmed), nil
}

// GetBooking retrieves a booking by ID
func (s *bookingService) GetBooking(ctx context.Context, bookingID string, actor domain.Actor) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()

	if bookingID == "" {
		return nil, domain.ErrInvalidBookingID
	}

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.auth.canActFor(ctx, booking.StudioID, booking.MemberID, actor); err != nil {
		return nil, err
	}

	if booking.IsWaitlisted() {
		pos, err := s.waitlist.Position(ctx, booking)
		if err != nil {
			return nil, fmt.Errorf("failed to derive waitlist position: %w", err)
		}
		booking.WaitlistPosition = &pos
	}
	return dto.FromDomain(booking), nil
}

// GetAvailability reports seat occupancy of a class instance
func (s *bookingService) GetAvailability(ctx context.Context, classInstanceID string) (*dto.AvailabilityResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.availability")
	defer span.End()

	if classInstanceID == "" {
		return nil, domain.ErrInvalidClassID
	}

	class, err := s.classes.GetByID(ctx, classInstanceID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	waitlisted, err := s.bookings.CountByStatus(ctx, classInstanceID, domain.BookingStatusWaitlisted)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return &dto.AvailabilityResponse{
		ClassInstanceID: class.ID,
		Status:          string(class.Status),
		Capacity:        class.Capacity,
		Booked:          class.BookedCount,
		Available:       class.AvailableSeats(),
		Waitlisted:      waitlisted,
	}, nil
}

// GetMemberCredits lists a member's entitlements; members see their own, staff see anyone's
func (s *bookingService) GetMemberCredits(ctx context.Context, studioID, memberID string, actor domain.Actor) (*dto.MemberCreditsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.member_credits")
	defer span.End()

	if studioID == "" {
		return nil, domain.ErrInvalidStudioID
	}
	if memberID == "" {
		return nil, domain.ErrInvalidMemberID
	}
	if err := s.auth.canActFor(ctx, studioID, memberID, actor); err != nil {
		return nil, err
	}
	return s.credits.Entitlements(ctx, studioID, memberID)
}
