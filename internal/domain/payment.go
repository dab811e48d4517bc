package domain

import (
	"encoding/json"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending        PaymentStatus = "PENDING"
	PaymentStatusRequiresAction PaymentStatus = "REQUIRES_ACTION"
	PaymentStatusAuthorized     PaymentStatus = "AUTHORIZED"
	PaymentStatusFailed         PaymentStatus = "FAILED"
	PaymentStatusRefunded       PaymentStatus = "REFUNDED"
	PaymentStatusAborted        PaymentStatus = "ABORTED"
)

const DefaultCurrency = "CLP"

// Terminal statuses are never changed by a confirmation or abort.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusAuthorized, PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusAborted:
		return true
	}
	return false
}

type PaymentIntent struct {
	ID                     string
	Amount                 int64
	Currency               string
	Status                 PaymentStatus
	Description            string
	Reference              Reference
	Provider               string
	BuyOrder               string
	SessionID              string
	Token                  string
	ReturnURL              string
	AuthorizationCode      string
	CardLast4              string
	ResponseCode           *int
	TransactionDate        *time.Time
	GatewayResponse        json.RawMessage
	FailureReason          string
	// Set when the gateway captured the money but finalization failed.
	ReconciliationRequired bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (p *PaymentIntent) NeedsReconciliation() bool {
	return p.Status == PaymentStatusFailed && p.ReconciliationRequired
}

// Reopenable intents may be given a fresh gateway session on checkout retry.
func (p *PaymentIntent) Reopenable() bool {
	switch p.Status {
	case PaymentStatusPending, PaymentStatusRequiresAction, PaymentStatusAborted:
		return true
	case PaymentStatusFailed:
		return !p.NeedsReconciliation()
	}
	return false
}

// PaymentAttempt is one gateway session opened for a buy order. A checkout
// retry opens a new attempt, so an intent may have several; the intent carries
// the token of the latest one.
type PaymentAttempt struct {
	Token                  string
	IntentID               string
	BuyOrder               string
	Status                 PaymentStatus
	AuthorizationCode      string
	ResponseCode           *int
	GatewayResponse        json.RawMessage
	FailureReason          string
	ReconciliationRequired bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
