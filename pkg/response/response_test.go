package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFail(t *testing.T) {
	body := Fail("MISSING_IDEMPOTENCY_KEY", "X-Idempotency-Key header is required")

	assert.Equal(t, "missing idempotency key", body.Error)
	assert.Equal(t, "MISSING_IDEMPOTENCY_KEY", body.Code)
	assert.Equal(t, "X-Idempotency-Key header is required", body.Message)
}

func TestUnauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Unauthorized(c, "token expired")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.True(t, c.IsAborted())
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unauthorized", body.Error)
	assert.Equal(t, "UNAUTHORIZED", body.Code)
	assert.Equal(t, "token expired", body.Message)
}
