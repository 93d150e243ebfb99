package domain

import (
	"strings"
	"time"
)

// ClassStatus represents the lifecycle status of a class instance
type ClassStatus string

const (
	ClassStatusScheduled  ClassStatus = "scheduled"
	ClassStatusInProgress ClassStatus = "in_progress"
	ClassStatusCompleted  ClassStatus = "completed"
	ClassStatusCancelled  ClassStatus = "cancelled"
)

// Layouts used for the stored start date and start time
const (
	StartDateLayout = "2006-01-02"
	StartTimeLayout = "15:04"
)

// IsValid checks if the status is a valid ClassStatus
func (s ClassStatus) IsValid() bool {
	switch s {
	case ClassStatusScheduled, ClassStatusInProgress, ClassStatusCompleted, ClassStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of ClassStatus
func (s ClassStatus) String() string {
	return string(s)
}

// ClassInstance is one scheduled occurrence of a class.
// StartDate and StartTime are wall-clock values in the studio's Timezone.
type ClassInstance struct {
	ID                      string      `json:"id"`
	StudioID                string      `json:"studio_id"`
	Capacity                int         `json:"capacity"`
	BookedCount             int         `json:"booked_count"`
	Status                  ClassStatus `json:"status"`
	StartDate               string      `json:"start_date"`
	StartTime               string      `json:"start_time"`
	Timezone                string      `json:"timezone"`
	CancellationWindowHours int         `json:"cancellation_window_hours"`
	CreatedAt               time.Time   `json:"created_at"`
	UpdatedAt               time.Time   `json:"updated_at"`
}

// Location loads the studio timezone, defaulting to UTC when unset
func (c *ClassInstance) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, ErrInvalidTimezone
	}
	return loc, nil
}

// StartsAt returns the absolute start instant of the class
func (c *ClassInstance) StartsAt() (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	start, err := time.ParseInLocation(StartDateLayout+" "+StartTimeLayout, c.StartDate+" "+c.StartTime, loc)
	if err != nil {
		return time.Time{}, ErrInvalidClassStart
	}
	return start, nil
}

// CancellationDeadline returns start minus the studio cancellation window
func (c *ClassInstance) CancellationDeadline() (time.Time, error) {
	start, err := c.StartsAt()
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(-time.Duration(c.CancellationWindowHours) * time.Hour), nil
}

// WithinCancellationWindow reports whether a cancellation at now still earns a refund.
// The deadline itself counts as inside the window.
func (c *ClassInstance) WithinCancellationWindow(now time.Time) (bool, error) {
	deadline, err := c.CancellationDeadline()
	if err != nil {
		return false, err
	}
	return !now.After(deadline), nil
}

// HasStarted reports whether the class start time has been reached
func (c *ClassInstance) HasStarted(now time.Time) (bool, error) {
	start, err := c.StartsAt()
	if err != nil {
		return false, err
	}
	return !now.Before(start), nil
}

// CheckBookable returns ErrClassNotAvailable unless the class is scheduled and not started
func (c *ClassInstance) CheckBookable(now time.Time) error {
	if c.Status != ClassStatusScheduled {
		return ErrClassNotAvailable
	}
	started, err := c.HasStarted(now)
	if err != nil {
		return err
	}
	if started {
		return ErrClassNotAvailable
	}
	return nil
}

// AvailableSeats returns the number of free seats, never negative
func (c *ClassInstance) AvailableSeats() int {
	if c.BookedCount >= c.Capacity {
		return 0
	}
	return c.Capacity - c.BookedCount
}

// HasFreeSeat reports whether booked count is strictly below capacity
func (c *ClassInstance) HasFreeSeat() bool {
	return c.BookedCount < c.Capacity
}

// OccupySeat increments the booked count, refusing to exceed capacity
func (c *ClassInstance) OccupySeat() error {
	if !c.HasFreeSeat() {
		return ErrCapacityExceeded
	}
	c.BookedCount++
	return nil
}

// ReleaseSeat decrements the booked count
func (c *ClassInstance) ReleaseSeat() {
	if c.BookedCount > 0 {
		c.BookedCount--
	}
}
