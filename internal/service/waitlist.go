package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/internal/metrics"
	"github.com/prohmpiriya/studio-booking/internal/repository"
	"github.com/prohmpiriya/studio-booking/pkg/clock"
	"github.com/prohmpiriya/studio-booking/pkg/logger"
	"github.com/prohmpiriya/studio-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// WaitlistManager keeps the FIFO waitlist of full classes
type WaitlistManager interface {
	// Enqueue adds a waitlist entry for a class whose lock the caller holds.
	// The returned booking carries its 1-indexed position.
	Enqueue(ctx context.Context, class *domain.ClassInstance, memberID, createdBy string) (*domain.Booking, error)

	// PromoteNext moves the oldest waitlisted member who still has credit into a
	// free seat. Returns nil when nobody was promoted. Joins the caller's
	// transaction when there is one.
	PromoteNext(ctx context.Context, classInstanceID string) (*domain.Booking, error)

	// Position derives the current rank of a waitlisted booking
	Position(ctx context.Context, booking *domain.Booking) (int, error)

	// ExpireStarted cancels waitlist entries of classes that started or left
	// scheduled status. Returns the number of entries cancelled.
	ExpireStarted(ctx context.Context, limit int) (int, error)
}

type waitlistManager struct {
	tx       repository.Transactor
	runner   *txRunner
	classes  repository.ClassInstanceRepository
	bookings repository.BookingRepository
	outbox   repository.OutboxRepository
	credits  CreditEngine
	clock    clock.Clock
}

// NewWaitlistManager creates a new WaitlistManager
func NewWaitlistManager(
	tx repository.Transactor,
	classes repository.ClassInstanceRepository,
	bookings repository.BookingRepository,
	outbox repository.OutboxRepository,
	credits CreditEngine,
	clk clock.Clock,
	operationTimeout time.Duration,
) WaitlistManager {
	if clk == nil {
		clk = clock.Real{}
	}
	return &waitlistManager{
		tx:       tx,
		runner:   newTxRunner(tx, operationTimeout),
		classes:  classes,
		bookings: bookings,
		outbox:   outbox,
		credits:  credits,
		clock:    clk,
	}
}

func (w *waitlistManager) Enqueue(ctx context.Context, class *domain.ClassInstance, memberID, createdBy string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.enqueue")
	defer span.End()
	span.SetAttributes(attribute.String("class_instance_id", class.ID), attribute.String("member_id", memberID))

	booking := domain.NewWaitlistedBooking(uuid.New().String(), class, memberID, createdBy, w.clock.Now())
	if err := w.bookings.Create(ctx, booking); err != nil {
		span.RecordError(err)
		return nil, err
	}

	position, err := w.bookings.WaitlistPosition(ctx, booking)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	booking.WaitlistPosition = &position
	span.SetAttributes(attribute.Int("waitlist_position", position))
	return booking, nil
}

func (w *waitlistManager) PromoteNext(ctx context.Context, classInstanceID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.promote_next")
	defer span.End()
	span.SetAttributes(attribute.String("class_instance_id", classInstanceID))

	var promoted *domain.Booking
	err := w.tx.WithTx(ctx, func(txCtx context.Context) error {
		promoted = nil

		class, err := w.classes.GetForUpdate(txCtx, classInstanceID)
		if err != nil {
			return err
		}
		now := w.clock.Now()
		if !class.HasFreeSeat() || class.CheckBookable(now) != nil {
			return nil
		}

		entries, err := w.bookings.ListWaitlisted(txCtx, classInstanceID)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			credit, err := w.credits.ResolveAndDeduct(txCtx, entry.StudioID, entry.MemberID)
			if errors.Is(err, domain.ErrNoCredits) {
				metrics.RecordWaitlistSkip(txCtx, classInstanceID)
				logger.Get().InfoContext(txCtx, fmt.Sprintf("Skipping waitlisted member %s without credit", entry.MemberID),
					zap.String("booking_id", entry.ID),
					zap.String("class_instance_id", classInstanceID),
				)
				continue
			}
			if err != nil {
				return err
			}

			if err := entry.Promote(credit, now); err != nil {
				return err
			}
			if err := w.bookings.Update(txCtx, entry); err != nil {
				return err
			}
			if err := w.classes.AdjustBookedCount(txCtx, classInstanceID, 1); err != nil {
				return err
			}
			if err := enqueueNotification(txCtx, w.outbox, domain.PromotionNotification(entry, now)); err != nil {
				return err
			}
			promoted = entry
			return nil
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if promoted != nil {
		metrics.RecordPromotion(ctx, classInstanceID)
		span.SetAttributes(attribute.String("promoted_booking_id", promoted.ID))
	}
	return promoted, nil
}

func (w *waitlistManager) Position(ctx context.Context, booking *domain.Booking) (int, error) {
	if !booking.IsWaitlisted() {
		return 0, nil
	}
	return w.bookings.WaitlistPosition(ctx, booking)
}

func (w *waitlistManager) ExpireStarted(ctx context.Context, limit int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.expire_started")
	defer span.End()

	classes, err := w.classes.ListWaitlistExpired(ctx, w.clock.Now(), limit)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	total := 0
	for _, class := range classes {
		expired, err := w.expireClass(ctx, class.ID)
		if err != nil {
			logger.Get().ErrorContext(ctx, fmt.Sprintf("Failed to expire waitlist of class %s", class.ID), zap.Error(err))
			continue
		}
		total += expired
	}
	span.SetAttributes(attribute.Int("expired", total))
	return total, nil
}

func (w *waitlistManager) expireClass(ctx context.Context, classInstanceID string) (int, error) {
	var expired int
	err := w.runner.run(ctx, "waitlist.expire", func(txCtx context.Context) error {
		expired = 0

		class, err := w.classes.GetForUpdate(txCtx, classInstanceID)
		if err != nil {
			return err
		}
		now := w.clock.Now()
		started, err := class.HasStarted(now)
		if err != nil {
			return err
		}
		if class.Status == domain.ClassStatusScheduled && !started {
			return nil
		}

		entries, err := w.bookings.ListWaitlisted(txCtx, classInstanceID)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := entry.Cancel(domain.CancelReasonWaitlistExpired, now); err != nil {
				return err
			}
			if err := w.bookings.Update(txCtx, entry); err != nil {
				return err
			}
			if err := enqueueNotification(txCtx, w.outbox, domain.WaitlistExpiredNotification(entry, now)); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		metrics.RecordWaitlistExpired(ctx, classInstanceID, int64(expired))
		logger.Get().InfoContext(ctx, fmt.Sprintf("Expired %d waitlist entries of class %s", expired, classInstanceID))
	}
	return expired, nil
}
