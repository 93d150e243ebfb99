package di

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/internal/dto"
	"github.com/prohmpiriya/studio-booking/internal/repository"
	"github.com/prohmpiriya/studio-booking/pkg/clock"
	"github.com/prohmpiriya/studio-booking/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContainer_RequiresStorage(t *testing.T) {
	_, err := NewContainer(&ContainerConfig{})
	assert.Error(t, err)
}

func TestNewContainer_UnknownGateway(t *testing.T) {
	_, err := NewContainer(&ContainerConfig{
		Repos:       NewMemoryRepositories(repository.NewMemoryStore()),
		GatewayType: "paypal",
	})
	assert.Error(t, err)
}

func TestContainer_BookAndCancelOverHTTP(t *testing.T) {
	store := repository.NewMemoryStore()
	store.AddClass(&domain.ClassInstance{
		ID:                      "class-1",
		StudioID:                "studio-1",
		Capacity:                1,
		Status:                  domain.ClassStatusScheduled,
		StartDate:               "2025-03-15",
		StartTime:               "18:00",
		Timezone:                "UTC",
		CancellationWindowHours: 12,
	})
	store.AddClassPack(&domain.ClassPack{
		ID: "pack-1", StudioID: "studio-1", MemberID: "member-1",
		TotalClasses: 5, RemainingClasses: 5,
	})

	c, err := NewContainer(&ContainerConfig{
		ServiceName:      "studio-booking",
		Repos:            NewMemoryRepositories(store),
		GatewayType:      "mock",
		Clock:            clock.NewFixed(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)),
		OperationTimeout: 2 * time.Second,
		StaffRole:        "staff",
	})
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(ctx *gin.Context) {
		ctx.Set(middleware.ContextKeyUserID, "member-1")
		ctx.Set(middleware.ContextKeyRole, "member")
		ctx.Next()
	})
	router.POST("/bookings", c.BookingHandler.CreateBooking)
	router.POST("/bookings/:id/cancel", c.BookingHandler.CancelBooking)
	router.GET("/classes/:id/availability", c.ClassHandler.GetAvailability)

	body, _ := json.Marshal(map[string]string{"studio_id": "studio-1", "class_instance_id": "class-1"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/bookings", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created dto.CreateBookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "class_pack", created.CreditSource)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/classes/class-1/availability", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var avail dto.AvailabilityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &avail))
	assert.Equal(t, 1, avail.Booked)
	assert.Equal(t, 0, avail.Available)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/bookings/"+created.BookingID+"/cancel", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cancelled dto.CancelBookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cancelled))
	assert.True(t, cancelled.CreditRefunded)
}
