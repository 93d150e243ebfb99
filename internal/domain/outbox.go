package domain

import (
	"encoding/json"
	"time"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// DefaultOutboxMaxRetries is the number of publish attempts before a message is dead-lettered
const DefaultOutboxMaxRetries = 5

// IsValid checks if the status is a valid OutboxStatus
func (s OutboxStatus) IsValid() bool {
	switch s {
	case OutboxStatusPending, OutboxStatusPublished, OutboxStatusFailed:
		return true
	}
	return false
}

// String returns the string representation of OutboxStatus
func (s OutboxStatus) String() string {
	return string(s)
}

// OutboxMessage is a notification written in the same transaction as the state change
type OutboxMessage struct {
	ID            string       `json:"id"`
	AggregateType string       `json:"aggregate_type"`
	AggregateID   string       `json:"aggregate_id"`
	EventType     string       `json:"event_type"`
	Payload       []byte       `json:"payload"`
	PartitionKey  string       `json:"partition_key"`
	Status        OutboxStatus `json:"status"`
	RetryCount    int          `json:"retry_count"`
	MaxRetries    int          `json:"max_retries"`
	LastError     string       `json:"last_error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	ProcessedAt   *time.Time   `json:"processed_at,omitempty"`
	PublishedAt   *time.Time   `json:"published_at,omitempty"`
}

// NewOutboxMessage creates a pending outbox message keyed by the member so a
// member's notifications stay ordered on one partition
func NewOutboxMessage(id, aggregateType, aggregateID, eventType, partitionKey string, payload interface{}, now time.Time) (*OutboxMessage, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if partitionKey == "" {
		partitionKey = aggregateID
	}

	return &OutboxMessage{
		ID:            id,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payloadBytes,
		PartitionKey:  partitionKey,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultOutboxMaxRetries,
		CreatedAt:     now,
	}, nil
}

// CanRetry checks if the message can be retried
func (m *OutboxMessage) CanRetry() bool {
	return m.RetryCount < m.MaxRetries
}

// MarkAsPublished marks the message as successfully published
func (m *OutboxMessage) MarkAsPublished(now time.Time) {
	m.Status = OutboxStatusPublished
	m.PublishedAt = &now
	m.ProcessedAt = &now
}

// MarkAsFailed records a failed attempt. The message stays pending until retries run out.
func (m *OutboxMessage) MarkAsFailed(err string, now time.Time) {
	m.LastError = err
	m.RetryCount++
	m.ProcessedAt = &now
	if m.CanRetry() {
		m.Status = OutboxStatusPending
		return
	}
	m.Status = OutboxStatusFailed
}

// GetPayload unmarshals the payload into the given interface
func (m *OutboxMessage) GetPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// NotificationType names a member notification
type NotificationType string

const (
	NotificationBookingCancelled NotificationType = "booking.cancelled"
	NotificationWaitlistPromoted NotificationType = "waitlist.promoted"
	NotificationWaitlistExpired  NotificationType = "waitlist.expired"
)

// Notification is the payload delivered to the external notifier
type Notification struct {
	Type            NotificationType `json:"type"`
	StudioID        string           `json:"studio_id"`
	MemberID        string           `json:"member_id"`
	BookingID       string           `json:"booking_id"`
	ClassInstanceID string           `json:"class_instance_id"`
	CreditSource    CreditSource     `json:"credit_source,omitempty"`
	CreditRefunded  *bool            `json:"credit_refunded,omitempty"`
	WithinWindow    *bool            `json:"within_cancellation_window,omitempty"`
	OccurredAt      time.Time        `json:"occurred_at"`
}

// CancellationNotification tells the member the outcome of a cancellation
func CancellationNotification(b *Booking, refunded, withinWindow bool, now time.Time) Notification {
	return Notification{
		Type:            NotificationBookingCancelled,
		StudioID:        b.StudioID,
		MemberID:        b.MemberID,
		BookingID:       b.ID,
		ClassInstanceID: b.ClassInstanceID,
		CreditSource:    b.CreditSource,
		CreditRefunded:  &refunded,
		WithinWindow:    &withinWindow,
		OccurredAt:      now,
	}
}

// PromotionNotification tells a waitlisted member they now hold a seat
func PromotionNotification(b *Booking, now time.Time) Notification {
	return Notification{
		Type:            NotificationWaitlistPromoted,
		StudioID:        b.StudioID,
		MemberID:        b.MemberID,
		BookingID:       b.ID,
		ClassInstanceID: b.ClassInstanceID,
		CreditSource:    b.CreditSource,
		OccurredAt:      now,
	}
}

// WaitlistExpiredNotification tells a member their waitlist entry lapsed
func WaitlistExpiredNotification(b *Booking, now time.Time) Notification {
	return Notification{
		Type:            NotificationWaitlistExpired,
		StudioID:        b.StudioID,
		MemberID:        b.MemberID,
		BookingID:       b.ID,
		ClassInstanceID: b.ClassInstanceID,
		OccurredAt:      now,
	}
}

// NotificationOutboxMessage wraps a notification for the outbox
func NotificationOutboxMessage(id string, n Notification) (*OutboxMessage, error) {
	return NewOutboxMessage(id, "booking", n.BookingID, string(n.Type), n.MemberID, n, n.OccurredAt)
}
