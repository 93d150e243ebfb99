package response

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the error envelope shared by middleware and handlers
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Fail builds an error envelope for use with c.AbortWithStatusJSON.
// MISSING_IDEMPOTENCY_KEY becomes error "missing idempotency key".
func Fail(code, message string) ErrorBody {
	return ErrorBody{
		Error:   strings.ToLower(strings.ReplaceAll(code, "_", " ")),
		Code:    code,
		Message: message,
	}
}

// Unauthorized aborts the request with 401
func Unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Fail("UNAUTHORIZED", message))
}
