package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSeatedBooking(t *testing.T) {
	class := newClass(ClassStatusScheduled)
	credit := ResolvedCredit{Source: CreditSourceClassPack, SourceID: "pack-1", RemainingAfter: intPtr(0)}

	b := NewSeatedBooking("book-1", class, "member-1", "member-1", credit, testNow)

	require.NoError(t, b.Validate())
	assert.Equal(t, BookingStatusBooked, b.Status)
	assert.Equal(t, "studio-1", b.StudioID)
	assert.True(t, b.HoldsSeat())
	assert.Equal(t, testNow, *b.BookedAt)

	got, ok := b.Credit()
	require.True(t, ok)
	assert.Equal(t, credit, got)
}

func TestNewWaitlistedBooking(t *testing.T) {
	b := NewWaitlistedBooking("book-2", newClass(ClassStatusScheduled), "member-2", "staff-1", testNow)

	assert.True(t, b.IsWaitlisted())
	assert.False(t, b.HoldsSeat())
	assert.True(t, b.IsActive())
	assert.Nil(t, b.BookedAt)
	_, ok := b.Credit()
	assert.False(t, ok)
}

func TestBooking_Promote(t *testing.T) {
	b := NewWaitlistedBooking("book-2", newClass(ClassStatusScheduled), "member-2", "member-2", testNow)
	b.WaitlistPosition = intPtr(1)
	later := testNow.Add(time.Hour)

	err := b.Promote(ResolvedCredit{Source: CreditSourceSubscriptionUnlimited, SourceID: "sub-1"}, later)
	require.NoError(t, err)
	assert.Equal(t, BookingStatusBooked, b.Status)
	assert.Nil(t, b.WaitlistPosition)
	assert.Equal(t, later, *b.BookedAt)
	assert.Equal(t, CreditSourceSubscriptionUnlimited, b.CreditSource)

	assert.ErrorIs(t, b.Promote(ResolvedCredit{}, later), ErrInvalidTransition)
}

func TestBooking_Confirm(t *testing.T) {
	class := newClass(ClassStatusScheduled)

	tests := []struct {
		name    string
		status  BookingStatus
		wantErr error
	}{
		{"booked can confirm", BookingStatusBooked, nil},
		{"confirmed cannot confirm again", BookingStatusConfirmed, ErrInvalidTransition},
		{"waitlisted cannot confirm", BookingStatusWaitlisted, ErrInvalidTransition},
		{"cancelled cannot confirm", BookingStatusCancelled, ErrAlreadyCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewSeatedBooking("book-1", class, "member-1", "member-1", ResolvedCredit{}, testNow)
			b.Status = tt.status

			err := b.Confirm("pay_tok_1", testNow)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, BookingStatusConfirmed, b.Status)
			assert.Equal(t, "pay_tok_1", b.ConfirmationToken)
			assert.NotNil(t, b.ConfirmedAt)
		})
	}
}

func TestBooking_CancelIsNotRepeatable(t *testing.T) {
	b := NewSeatedBooking("book-1", newClass(ClassStatusScheduled), "member-1", "member-1", ResolvedCredit{}, testNow)

	require.NoError(t, b.Cancel(CancelReasonMember, testNow))
	assert.True(t, b.IsCancelled())
	assert.False(t, b.IsActive())
	assert.Equal(t, CancelReasonMember, b.CancelReason)

	assert.ErrorIs(t, b.Cancel(CancelReasonMember, testNow), ErrAlreadyCancelled)
}

func TestBooking_Validate(t *testing.T) {
	b := &Booking{ID: "b", ClassInstanceID: "c", MemberID: "m", Status: BookingStatusBooked}
	assert.NoError(t, b.Validate())

	b.MemberID = " "
	assert.ErrorIs(t, b.Validate(), ErrInvalidMemberID)

	b.MemberID = "m"
	b.Status = "reserved"
	assert.ErrorIs(t, b.Validate(), ErrInvalidTransition)
}
