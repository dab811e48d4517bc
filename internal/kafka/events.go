package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	EventBookingCreated   = "booking.created"
	EventBookingPaid      = "booking.paid"
	EventBookingCancelled = "booking.cancelled"
	EventBookingStatus    = "booking.status_changed"

	EventOrderPaid    = "order.paid"
	EventDonationPaid = "donation.paid"

	EventPaymentCreated                = "payment.created"
	EventPaymentConfirmed              = "payment.confirmed"
	EventPaymentFailed                 = "payment.failed"
	EventPaymentAborted                = "payment.aborted"
	EventPaymentReconciliationRequired = "payment.reconciliation_required"
)

type BookingEvent struct {
	Type          string    `json:"type"`
	BookingID     int64     `json:"booking_id"`
	SlotID        int64     `json:"slot_id"`
	ServiceID     int64     `json:"service_id,omitempty"`
	ServiceName   string    `json:"service_name,omitempty"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	Status        string    `json:"status"`
	StartsAt      time.Time `json:"starts_at,omitempty"`
	EndsAt        time.Time `json:"ends_at,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type PaymentEvent struct {
	Type              string    `json:"type"`
	IntentID          string    `json:"intent_id"`
	BuyOrder          string    `json:"buy_order"`
	Reference         string    `json:"reference"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	Status            string    `json:"status"`
	Token             string    `json:"token,omitempty"`
	AuthorizationCode string    `json:"authorization_code,omitempty"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// Notification is what the worker turns into an email.
type Notification struct {
	Type       string            `json:"type"`
	Email      string            `json:"email"`
	Name       string            `json:"name,omitempty"`
	Subject    string            `json:"subject"`
	Fields     map[string]string `json:"fields,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

func DecodeNotification(msg kafka.Message) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		return n, fmt.Errorf("decode notification at offset %d: %w", msg.Offset, err)
	}
	if n.Email == "" {
		return n, fmt.Errorf("notification %q at offset %d has no recipient", n.Type, msg.Offset)
	}
	return n, nil
}
