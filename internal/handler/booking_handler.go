package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/studio-booking/internal/dto"
	"github.com/prohmpiriya/studio-booking/internal/service"
	"github.com/prohmpiriya/studio-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingHandler handles booking HTTP requests
type BookingHandler struct {
	bookingService service.BookingService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookingService service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// CreateBooking handles POST /bookings.
// 201 when a seat is booked, 202 when the member joined the waitlist.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		unauthorized(c)
		return
	}

	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		invalidRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("user_id", actor.ID),
		attribute.String("studio_id", req.StudioID),
		attribute.String("class_instance_id", req.ClassInstanceID),
	)

	result, err := h.bookingService.CreateBooking(ctx, actor, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("booking_id", result.BookingID), attribute.String("status", result.Status))
	span.SetStatus(codes.Ok, "")
	if result.WaitlistPosition != nil {
		c.JSON(http.StatusAccepted, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// GetBooking handles GET /bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		unauthorized(c)
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	result, err := h.bookingService.GetBooking(ctx, bookingID, actor)
	if err != nil {
		span.RecordError(err)
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CancelBooking handles POST /bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		unauthorized(c)
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", actor.ID),
	)

	result, err := h.bookingService.CancelBooking(ctx, bookingID, actor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Bool("credit_refunded", result.CreditRefunded))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// ConfirmBooking handles POST /bookings/:id/confirm
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.confirm")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		unauthorized(c)
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	var req dto.ConfirmBookingRequest
	// the token is optional, so an empty body is fine
	_ = c.ShouldBindJSON(&req)

	result, err := h.bookingService.ConfirmBooking(ctx, bookingID, actor, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}
