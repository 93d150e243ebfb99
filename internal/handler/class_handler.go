package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/studio-booking/internal/service"
	"github.com/prohmpiriya/studio-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ClassHandler serves class availability and member credit reads
type ClassHandler struct {
	bookingService service.BookingService
}

// NewClassHandler creates a new class handler
func NewClassHandler(bookingService service.BookingService) *ClassHandler {
	return &ClassHandler{bookingService: bookingService}
}

// GetAvailability handles GET /classes/:id/availability
func (h *ClassHandler) GetAvailability(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.class.availability")
	defer span.End()

	classID := c.Param("id")
	span.SetAttributes(attribute.String("class_instance_id", classID))

	result, err := h.bookingService.GetAvailability(ctx, classID)
	if err != nil {
		span.RecordError(err)
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetMemberCredits handles GET /studios/:studioId/members/:memberId/credits
func (h *ClassHandler) GetMemberCredits(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.member.credits")
	defer span.End()

	actor, ok := actorFrom(c)
	if !ok {
		unauthorized(c)
		return
	}

	studioID := c.Param("studioId")
	memberID := c.Param("memberId")
	if memberID == "me" {
		memberID = actor.ID
	}
	span.SetAttributes(attribute.String("studio_id", studioID), attribute.String("member_id", memberID))

	result, err := h.bookingService.GetMemberCredits(ctx, studioID, memberID, actor)
	if err != nil {
		span.RecordError(err)
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
