package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/internal/dto"
	"github.com/prohmpiriya/studio-booking/internal/service"
	"github.com/prohmpiriya/studio-booking/pkg/logger"
	"github.com/prohmpiriya/studio-booking/pkg/middleware"
	"go.uber.org/zap"
)

// actorFrom reads the authenticated caller set by the auth middleware
func actorFrom(c *gin.Context) (domain.Actor, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return domain.Actor{}, false
	}
	return domain.Actor{ID: userID, Role: middleware.GetRole(c)}, true
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
		Error: "unauthorized",
		Code:  "UNAUTHORIZED",
	})
}

func invalidRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   "invalid request",
		Code:    "INVALID_REQUEST",
		Message: message,
	})
}

// handleError converts domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := domain.ErrorCode(err)

	switch {
	case domain.IsNotFoundError(err):
		status = http.StatusNotFound
	case domain.IsConflictError(err):
		status = http.StatusConflict
	case domain.IsForbiddenError(err):
		status = http.StatusForbidden
	case domain.IsBadRequestError(err):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrOperationTimeout):
		status = http.StatusGatewayTimeout
		code = "TIMEOUT"
	}

	resp := dto.ErrorResponse{Error: err.Error(), Code: code}

	var invalid *domain.CouponInvalidError
	if errors.As(err, &invalid) {
		resp.Message = invalid.Reason
	}

	if status == http.StatusInternalServerError {
		logger.Get().ErrorContext(c.Request.Context(), "Unhandled error", zap.Error(err))
		resp.Error = "internal server error"
	}
	c.JSON(status, resp)
}
