package service

import (
	"context"
	"testing"
	"time"

	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitlist_PromotesInFIFOOrder(t *testing.T) {
	f := newFixture(t)
	f.addClass(1)
	f.addPack("pack-x", "x", 1)
	for _, id := range []string{"a", "b", "c"} {
		f.addPack("pack-"+id, id, 1)
	}

	seated := f.admit(t, "x")
	entries := map[string]*Decision{}
	for _, id := range []string{"a", "b", "c"} {
		entries[id] = f.admit(t, id)
		require.Equal(t, AdmissionWaitlisted, entries[id].Outcome)
	}

	res, err := f.cancellation.Cancel(context.Background(), seated.Booking.ID, member("x"))
	require.NoError(t, err)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, entries["a"].Booking.ID, res.Promoted.ID)

	res, err = f.cancellation.Cancel(context.Background(), entries["a"].Booking.ID, member("a"))
	require.NoError(t, err)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, entries["b"].Booking.ID, res.Promoted.ID)

	c, err := f.bookings.GetBooking(context.Background(), entries["c"].Booking.ID, member("c"))
	require.NoError(t, err)
	assert.Equal(t, string(domain.BookingStatusWaitlisted), c.Status)
	assert.Equal(t, 1, *c.WaitlistPosition)
}

func TestWaitlist_SkipsMemberWithoutCredit(t *testing.T) {
	f := newFixture(t)
	f.addClass(1)
	f.addUnlimited("x")
	f.addUnlimited("b")

	seated := f.admit(t, "x")
	a := f.admit(t, "a") // no entitlement at all
	b := f.admit(t, "b")
	require.Equal(t, AdmissionWaitlisted, a.Outcome)
	require.Equal(t, AdmissionWaitlisted, b.Outcome)

	res, err := f.cancellation.Cancel(context.Background(), seated.Booking.ID, member("x"))
	require.NoError(t, err)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, b.Booking.ID, res.Promoted.ID)

	// a keeps its entry and is now first in line
	pos, err := f.waitlist.Position(context.Background(), mustBooking(t, f, a.Booking.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestWaitlist_PromoteNext(t *testing.T) {
	ctx := context.Background()

	t.Run("no free seat", func(t *testing.T) {
		f := newFixture(t)
		f.addClass(1)
		f.addUnlimited("x")
		f.addUnlimited("a")
		f.admit(t, "x")
		f.admit(t, "a")

		promoted, err := f.waitlist.PromoteNext(ctx, testClass)
		require.NoError(t, err)
		assert.Nil(t, promoted)
	})

	t.Run("empty waitlist", func(t *testing.T) {
		f := newFixture(t)
		f.addClass(3)

		promoted, err := f.waitlist.PromoteNext(ctx, testClass)
		require.NoError(t, err)
		assert.Nil(t, promoted)
	})

	t.Run("class already started", func(t *testing.T) {
		f := newFixture(t)
		f.addClass(1)
		f.addUnlimited("x")
		f.addUnlimited("a")
		seated := f.admit(t, "x")
		f.admit(t, "a")

		f.clock.Set(time.Date(2025, 3, 15, 18, 30, 0, 0, time.UTC))
		res, err := f.cancellation.Cancel(ctx, seated.Booking.ID, member("x"))
		require.NoError(t, err)
		assert.Nil(t, res.Promoted)
		assert.Equal(t, 0, f.bookedCount(t))
	})

	t.Run("unknown class", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.waitlist.PromoteNext(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrClassNotFound)
	})
}

func TestWaitlist_PositionDerivedAtReadTime(t *testing.T) {
	f := newFixture(t)
	f.addClass(1)
	f.addUnlimited("x")
	f.admit(t, "x")
	a := f.admit(t, "a")
	b := f.admit(t, "b")
	c := f.admit(t, "c")

	pos, _ := c.Position()
	assert.Equal(t, 3, pos)

	_, err := f.cancellation.Cancel(context.Background(), b.Booking.ID, member("b"))
	require.NoError(t, err)
	_, err = f.cancellation.Cancel(context.Background(), a.Booking.ID, member("a"))
	require.NoError(t, err)

	resp, err := f.bookings.GetBooking(context.Background(), c.Booking.ID, member("c"))
	require.NoError(t, err)
	assert.Equal(t, 1, *resp.WaitlistPosition)
}

func TestWaitlist_ExpireStarted(t *testing.T) {
	f := newFixture(t)
	f.addClass(1)
	f.addUnlimited("x")
	seated := f.admit(t, "x")
	a := f.admit(t, "a")
	b := f.admit(t, "b")

	// nothing to expire before the class starts
	n, err := f.waitlist.ExpireStarted(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.clock.Set(time.Date(2025, 3, 15, 18, 0, 0, 0, time.UTC))
	n, err = f.waitlist.ExpireStarted(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{a.Booking.ID, b.Booking.ID} {
		got := mustBooking(t, f, id)
		assert.Equal(t, domain.BookingStatusCancelled, got.Status)
		assert.Equal(t, domain.CancelReasonWaitlistExpired, got.CancelReason)
	}
	assert.Equal(t, domain.BookingStatusBooked, mustBooking(t, f, seated.Booking.ID).Status)

	expired := 0
	for _, m := range f.store.OutboxMessages() {
		if m.EventType == string(domain.NotificationWaitlistExpired) {
			expired++
		}
	}
	assert.Equal(t, 2, expired)

	n, err = f.waitlist.ExpireStarted(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func mustBooking(t *testing.T, f *fixture, id string) *domain.Booking {
	t.Helper()
	b, err := f.store.Bookings().GetByID(context.Background(), id)
	require.NoError(t, err)
	return b
}
