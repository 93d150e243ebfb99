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

// CouponHandler handles coupon HTTP requests
type CouponHandler struct {
	couponService service.CouponService
}

// NewCouponHandler creates a new coupon handler
func NewCouponHandler(couponService service.CouponService) *CouponHandler {
	return &CouponHandler{couponService: couponService}
}

// Validate handles POST /coupons/validate. An unusable coupon is 200 with valid=false.
func (h *CouponHandler) Validate(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.coupon.validate")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req dto.ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		invalidRequest(c, err.Error())
		return
	}
	span.SetAttributes(attribute.String("studio_id", req.StudioID))

	result, err := h.couponService.Validate(ctx, actor, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Bool("valid", result.Valid))
	c.JSON(http.StatusOK, result)
}

// Redeem handles POST /coupons/redeem
func (h *CouponHandler) Redeem(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.coupon.redeem")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		unauthorized(c)
		return
	}

	var req dto.RedeemCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		invalidRequest(c, err.Error())
		return
	}
	span.SetAttributes(
		attribute.String("studio_id", req.StudioID),
		attribute.String("applied_to_type", req.AppliedToType),
	)

	result, err := h.couponService.Redeem(ctx, actor, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("redemption_id", result.RedemptionID))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusCreated, result)
}
