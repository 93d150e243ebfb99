package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClass(status ClassStatus) *ClassInstance {
	return &ClassInstance{
		ID:                      "class-1",
		StudioID:                "studio-1",
		Capacity:                12,
		Status:                  status,
		StartDate:               "2025-03-15",
		StartTime:               "18:30",
		Timezone:                "America/New_York",
		CancellationWindowHours: 12,
	}
}

func TestClassInstance_StartsAtUsesStudioTimezone(t *testing.T) {
	c := newClass(ClassStatusScheduled)

	start, err := c.StartsAt()
	require.NoError(t, err)
	// EDT starts 2025-03-09, so 18:30 local is 22:30 UTC
	assert.Equal(t, time.Date(2025, 3, 15, 22, 30, 0, 0, time.UTC), start.UTC())
}

func TestClassInstance_WithinCancellationWindowBoundary(t *testing.T) {
	c := newClass(ClassStatusScheduled)
	deadline, err := c.CancellationDeadline()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC), deadline.UTC())

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"one hour before deadline", deadline.Add(-time.Hour), true},
		{"exactly at deadline", deadline, true},
		{"one second after deadline", deadline.Add(time.Second), false},
		{"after class start", deadline.Add(13 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.WithinCancellationWindow(tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassInstance_WindowAcrossDSTChange(t *testing.T) {
	// 2025-03-09 02:00 America/New_York jumps to 03:00
	c := newClass(ClassStatusScheduled)
	c.StartDate = "2025-03-09"
	c.StartTime = "09:00"
	c.CancellationWindowHours = 12

	deadline, err := c.CancellationDeadline()
	require.NoError(t, err)
	// 09:00 EDT is 13:00 UTC; twelve real hours earlier is 01:00 UTC
	assert.Equal(t, time.Date(2025, 3, 9, 1, 0, 0, 0, time.UTC), deadline.UTC())
}

func TestClassInstance_InvalidTimezone(t *testing.T) {
	c := newClass(ClassStatusScheduled)
	c.Timezone = "Mars/Olympus_Mons"

	_, err := c.StartsAt()
	assert.ErrorIs(t, err, ErrInvalidTimezone)

	c.Timezone = ""
	start, err := c.StartsAt()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, start.Location())
}

func TestClassInstance_InvalidStart(t *testing.T) {
	c := newClass(ClassStatusScheduled)
	c.StartTime = "6pm"

	_, err := c.WithinCancellationWindow(testNow)
	assert.ErrorIs(t, err, ErrInvalidClassStart)
}

func TestClassInstance_CheckBookable(t *testing.T) {
	before := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	atStart := time.Date(2025, 3, 15, 22, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		status  ClassStatus
		now     time.Time
		wantErr error
	}{
		{"scheduled and upcoming", ClassStatusScheduled, before, nil},
		{"scheduled but started", ClassStatusScheduled, atStart, ErrClassNotAvailable},
		{"in progress", ClassStatusInProgress, before, ErrClassNotAvailable},
		{"completed", ClassStatusCompleted, before, ErrClassNotAvailable},
		{"cancelled", ClassStatusCancelled, before, ErrClassNotAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newClass(tt.status).CheckBookable(tt.now)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClassInstance_Seats(t *testing.T) {
	c := newClass(ClassStatusScheduled)
	c.Capacity = 2

	assert.True(t, c.HasFreeSeat())
	require.NoError(t, c.OccupySeat())
	require.NoError(t, c.OccupySeat())
	assert.False(t, c.HasFreeSeat())
	assert.Equal(t, 0, c.AvailableSeats())
	assert.ErrorIs(t, c.OccupySeat(), ErrCapacityExceeded)
	assert.Equal(t, 2, c.BookedCount)

	c.ReleaseSeat()
	assert.Equal(t, 1, c.AvailableSeats())
	c.ReleaseSeat()
	c.ReleaseSeat()
	assert.Equal(t, 0, c.BookedCount)
}
