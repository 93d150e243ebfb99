package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxStatus_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		status OutboxStatus
		want   bool
	}{
		{"pending is valid", OutboxStatusPending, true},
		{"published is valid", OutboxStatusPublished, true},
		{"failed is valid", OutboxStatusFailed, true},
		{"unknown is invalid", OutboxStatus("unknown"), false},
		{"empty is invalid", OutboxStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsValid())
		})
	}
}

func TestNotificationOutboxMessage(t *testing.T) {
	b := NewSeatedBooking("book-1", newClass(ClassStatusScheduled), "member-1", "member-1",
		ResolvedCredit{Source: CreditSourceClassPack, SourceID: "pack-1", RemainingAfter: intPtr(0)}, testNow)

	msg, err := NotificationOutboxMessage("msg-1", CancellationNotification(b, true, true, testNow))
	require.NoError(t, err)

	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, "booking", msg.AggregateType)
	assert.Equal(t, "book-1", msg.AggregateID)
	assert.Equal(t, string(NotificationBookingCancelled), msg.EventType)
	assert.Equal(t, "member-1", msg.PartitionKey)
	assert.Equal(t, OutboxStatusPending, msg.Status)
	assert.Equal(t, DefaultOutboxMaxRetries, msg.MaxRetries)

	var n Notification
	require.NoError(t, msg.GetPayload(&n))
	assert.Equal(t, "member-1", n.MemberID)
	require.NotNil(t, n.CreditRefunded)
	assert.True(t, *n.CreditRefunded)
	assert.Equal(t, CreditSourceClassPack, n.CreditSource)
}

func TestOutboxMessage_RetryLifecycle(t *testing.T) {
	msg, err := NewOutboxMessage("msg-1", "booking", "book-1", "waitlist.promoted", "", map[string]string{"k": "v"}, testNow)
	require.NoError(t, err)
	assert.Equal(t, "book-1", msg.PartitionKey)
	msg.MaxRetries = 2

	msg.MarkAsFailed("broker down", testNow)
	assert.Equal(t, OutboxStatusPending, msg.Status)
	assert.Equal(t, 1, msg.RetryCount)
	assert.True(t, msg.CanRetry())

	msg.MarkAsFailed("broker down", testNow.Add(time.Second))
	assert.Equal(t, OutboxStatusFailed, msg.Status)
	assert.False(t, msg.CanRetry())
	assert.Equal(t, "broker down", msg.LastError)

	msg.MarkAsPublished(testNow)
	assert.Equal(t, OutboxStatusPublished, msg.Status)
	assert.NotNil(t, msg.PublishedAt)
}
