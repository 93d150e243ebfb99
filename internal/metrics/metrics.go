package metrics

import (
	"context"
	"sync"

	"github.com/prohmpiriya/studio-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Admission counters
	BookingsBooked     *telemetry.Counter
	BookingsWaitlisted *telemetry.Counter
	BookingsRejected   *telemetry.Counter
	BookingsConfirmed  *telemetry.Counter
	BookingsCancelled  *telemetry.Counter
	CreditsRefunded    *telemetry.Counter

	// Waitlist counters
	WaitlistPromotions *telemetry.Counter
	WaitlistSkips      *telemetry.Counter
	WaitlistExpired    *telemetry.Counter

	// Coupon counters
	CouponRedemptions *telemetry.Counter
	CouponRejections  *telemetry.Counter

	// Infrastructure counters
	TxRetries       *telemetry.Counter
	OutboxPublished *telemetry.Counter
	OutboxFailed    *telemetry.Counter

	// Histograms
	AdmissionDuration *telemetry.Histogram

	// Gauges
	WaitlistDepth *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all booking engine metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func counter(target **telemetry.Counter, name, description string) error {
	c, err := telemetry.NewCounter(telemetry.MetricOpts{
		Name:        name,
		Description: description,
		Unit:        "1",
	})
	if err != nil {
		return err
	}
	*target = c
	return nil
}

func initMetrics() error {
	counters := []struct {
		target      **telemetry.Counter
		name        string
		description string
	}{
		{&BookingsBooked, "booking_admissions_total", "Total number of booking requests admitted to a seat"},
		{&BookingsWaitlisted, "booking_waitlisted_total", "Total number of booking requests placed on a waitlist"},
		{&BookingsRejected, "booking_rejections_total", "Total number of booking requests rejected"},
		{&BookingsConfirmed, "booking_confirmations_total", "Total number of bookings confirmed"},
		{&BookingsCancelled, "booking_cancellations_total", "Total number of cancelled bookings"},
		{&CreditsRefunded, "booking_credit_refunds_total", "Total number of credits refunded on cancellation"},
		{&WaitlistPromotions, "waitlist_promotions_total", "Total number of waitlist entries promoted to a seat"},
		{&WaitlistSkips, "waitlist_skips_total", "Total number of waitlist entries skipped for lack of credit"},
		{&WaitlistExpired, "waitlist_expirations_total", "Total number of waitlist entries expired"},
		{&CouponRedemptions, "coupon_redemptions_total", "Total number of coupon redemptions"},
		{&CouponRejections, "coupon_rejections_total", "Total number of coupon validations that failed"},
		{&TxRetries, "booking_tx_retries_total", "Total number of transactions retried after a conflict"},
		{&OutboxPublished, "outbox_published_total", "Total number of notifications published"},
		{&OutboxFailed, "outbox_failures_total", "Total number of failed notification publish attempts"},
	}
	for _, c := range counters {
		if err := counter(c.target, c.name, c.description); err != nil {
			return err
		}
	}

	var err error
	AdmissionDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "booking_admission_duration_seconds",
		Description: "Duration of a booking admission including lock wait",
		Unit:        "s",
	}, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}) // 5ms to 5s
	if err != nil {
		return err
	}

	WaitlistDepth, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "waitlist_depth",
		Description: "Current number of waitlisted bookings",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordAdmission records the outcome of a booking request
func RecordAdmission(ctx context.Context, classInstanceID, outcome string, durationSeconds float64) {
	attrs := []attribute.KeyValue{
		attribute.String("class_instance_id", classInstanceID),
		attribute.String("outcome", outcome),
	}
	switch outcome {
	case "booked":
		if BookingsBooked != nil {
			BookingsBooked.Inc(ctx, attrs...)
		}
	case "waitlisted":
		if BookingsWaitlisted != nil {
			BookingsWaitlisted.Inc(ctx, attrs...)
		}
		if WaitlistDepth != nil {
			WaitlistDepth.Add(ctx, 1)
		}
	default:
		if BookingsRejected != nil {
			BookingsRejected.Inc(ctx, attrs...)
		}
	}
	if AdmissionDuration != nil {
		AdmissionDuration.Record(ctx, durationSeconds, attribute.String("outcome", outcome))
	}
}

// RecordConfirmation records a booking confirmation
func RecordConfirmation(ctx context.Context, classInstanceID string) {
	if BookingsConfirmed != nil {
		BookingsConfirmed.Inc(ctx, attribute.String("class_instance_id", classInstanceID))
	}
}

// RecordCancellation records a cancellation and whether credit came back
func RecordCancellation(ctx context.Context, classInstanceID string, refunded, wasWaitlisted bool) {
	if BookingsCancelled != nil {
		BookingsCancelled.Inc(ctx,
			attribute.String("class_instance_id", classInstanceID),
			attribute.Bool("refunded", refunded),
		)
	}
	if refunded && CreditsRefunded != nil {
		CreditsRefunded.Inc(ctx, attribute.String("class_instance_id", classInstanceID))
	}
	if wasWaitlisted && WaitlistDepth != nil {
		WaitlistDepth.Add(ctx, -1)
	}
}

// RecordPromotion records a waitlist promotion
func RecordPromotion(ctx context.Context, classInstanceID string) {
	if WaitlistPromotions != nil {
		WaitlistPromotions.Inc(ctx, attribute.String("class_instance_id", classInstanceID))
	}
	if WaitlistDepth != nil {
		WaitlistDepth.Add(ctx, -1)
	}
}

// RecordWaitlistSkip records a waitlist entry passed over for lack of credit
func RecordWaitlistSkip(ctx context.Context, classInstanceID string) {
	if WaitlistSkips != nil {
		WaitlistSkips.Inc(ctx, attribute.String("class_instance_id", classInstanceID))
	}
}

// RecordWaitlistExpired records expired waitlist entries for a class
func RecordWaitlistExpired(ctx context.Context, classInstanceID string, count int64) {
	if WaitlistExpired != nil {
		WaitlistExpired.Add(ctx, count, attribute.String("class_instance_id", classInstanceID))
	}
	if WaitlistDepth != nil {
		WaitlistDepth.Add(ctx, -count)
	}
}

// RecordCouponRedemption records a successful coupon redemption
func RecordCouponRedemption(ctx context.Context, studioID, couponType string) {
	if CouponRedemptions != nil {
		CouponRedemptions.Inc(ctx,
			attribute.String("studio_id", studioID),
			attribute.String("coupon_type", couponType),
		)
	}
}

// RecordCouponRejection records a failed coupon validation by reason
func RecordCouponRejection(ctx context.Context, studioID, reason string) {
	if CouponRejections != nil {
		CouponRejections.Inc(ctx,
			attribute.String("studio_id", studioID),
			attribute.String("reason", reason),
		)
	}
}

// RecordTxRetry records a transaction retried after a conflict
func RecordTxRetry(ctx context.Context, operation string) {
	if TxRetries != nil {
		TxRetries.Inc(ctx, attribute.String("operation", operation))
	}
}

// RecordOutboxPublish records the result of one publish attempt
func RecordOutboxPublish(ctx context.Context, eventType string, ok bool) {
	if ok {
		if OutboxPublished != nil {
			OutboxPublished.Inc(ctx, attribute.String("event_type", eventType))
		}
		return
	}
	if OutboxFailed != nil {
		OutboxFailed.Inc(ctx, attribute.String("event_type", eventType))
	}
}
