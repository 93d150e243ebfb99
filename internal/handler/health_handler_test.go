package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/studio-booking/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	err error
}

func (m *mockChecker) HealthCheck(ctx context.Context) error {
	return m.err
}

func serveHealth(h gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)
	h(c)
	return w
}

func TestHealthHandler_Health(t *testing.T) {
	h := NewHealthHandler("studio-booking", nil)

	w := serveHealth(h.Health)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "studio-booking", resp.Service)
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthChecker
		wantStatus int
		wantBody   string
	}{
		{
			name:       "all healthy",
			checks:     map[string]HealthChecker{"postgres": &mockChecker{}, "redis": &mockChecker{}},
			wantStatus: http.StatusOK,
			wantBody:   "ready",
		},
		{
			name:       "redis not configured",
			checks:     map[string]HealthChecker{"postgres": &mockChecker{}, "redis": nil},
			wantStatus: http.StatusOK,
			wantBody:   "ready",
		},
		{
			name:       "postgres down",
			checks:     map[string]HealthChecker{"postgres": &mockChecker{err: errors.New("connection refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "not ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("studio-booking", tt.checks)

			w := serveHealth(h.Ready)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp dto.HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantBody, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checks))
		})
	}
}
