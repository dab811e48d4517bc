// Package gateway defines the card payment gateway the reconciliation engine
// talks to. Implementations live in subpackages.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const (
	StatusInitialized = "INITIALIZED"
	StatusAuthorized  = "AUTHORIZED"
	StatusFailed      = "FAILED"
	StatusReversed    = "REVERSED"
	StatusNullified   = "NULLIFIED"
)

// ErrUnknownToken is returned when the gateway has no session for a token.
var ErrUnknownToken = errors.New("gateway: unknown token")

type SessionRequest struct {
	BuyOrder  string
	SessionID string
	Amount    int64
	ReturnURL string
}

type Session struct {
	Token string
	URL   string
}

// RedirectURL is where the shopper's browser is sent to pay.
func (s Session) RedirectURL() string {
	if s.URL == "" {
		return ""
	}
	return s.URL + "?token_ws=" + s.Token
}

// Result is the gateway's view of a transaction after commit or status query.
type Result struct {
	Status            string
	ResponseCode      int
	BuyOrder          string
	SessionID         string
	Amount            int64
	AuthorizationCode string
	CardLast4         string
	PaymentTypeCode   string
	Installments      int
	VCI               string
	TransactionDate   time.Time
	Raw               json.RawMessage
}

// Approved is the only outcome that counts as money captured.
func (r Result) Approved() bool {
	return r.Status == StatusAuthorized && r.ResponseCode == 0
}

type Gateway interface {
	Name() string
	OpenSession(ctx context.Context, req SessionRequest) (Session, error)
	// Confirm commits the transaction behind token. Calling it again for an
	// already committed token returns the same result.
	Confirm(ctx context.Context, token string) (Result, error)
	Status(ctx context.Context, token string) (Result, error)
}
