package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type ReferenceKind string

const (
	ReferenceOrder    ReferenceKind = "order"
	ReferenceBooking  ReferenceKind = "booking"
	ReferenceDonation ReferenceKind = "donation"
)

// Reference identifies the business object a payment settles. The set of
// implementations is closed: OrderRef, BookingRef and DonationRef.
type Reference interface {
	Kind() ReferenceKind
	ID() int64
	// BuyOrder is the merchant order number sent to the gateway.
	BuyOrder() string
	String() string
	sealed()
}

type OrderRef struct{ OrderID int64 }

type BookingRef struct{ BookingID int64 }

type DonationRef struct{ DonationID int64 }

func (r OrderRef) Kind() ReferenceKind { return ReferenceOrder }
func (r OrderRef) ID() int64           { return r.OrderID }
func (r OrderRef) BuyOrder() string    { return strconv.FormatInt(r.OrderID, 10) }
func (r OrderRef) String() string      { return fmt.Sprintf("order:%d", r.OrderID) }
func (OrderRef) sealed()               {}

func (r BookingRef) Kind() ReferenceKind { return ReferenceBooking }
func (r BookingRef) ID() int64           { return r.BookingID }
func (r BookingRef) BuyOrder() string    { return "B" + strconv.FormatInt(r.BookingID, 10) }
func (r BookingRef) String() string      { return fmt.Sprintf("booking:%d", r.BookingID) }
func (BookingRef) sealed()               {}

func (r DonationRef) Kind() ReferenceKind { return ReferenceDonation }
func (r DonationRef) ID() int64           { return r.DonationID }
func (r DonationRef) BuyOrder() string    { return "D" + strconv.FormatInt(r.DonationID, 10) }
func (r DonationRef) String() string      { return fmt.Sprintf("donation:%d", r.DonationID) }
func (DonationRef) sealed()               {}

// NewReference rebuilds a reference from its persisted (kind, id) pair.
func NewReference(kind ReferenceKind, id int64) (Reference, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id %d", ErrInvalidReference, id)
	}
	switch kind {
	case ReferenceOrder:
		return OrderRef{OrderID: id}, nil
	case ReferenceBooking:
		return BookingRef{BookingID: id}, nil
	case ReferenceDonation:
		return DonationRef{DonationID: id}, nil
	}
	return nil, fmt.Errorf("%w: kind %q", ErrInvalidReference, kind)
}

// ParseBuyOrder is the inverse of Reference.BuyOrder.
func ParseBuyOrder(buyOrder string) (Reference, error) {
	if buyOrder == "" {
		return nil, fmt.Errorf("%w: empty buy order", ErrInvalidReference)
	}
	kind := ReferenceOrder
	digits := buyOrder
	switch {
	case strings.HasPrefix(buyOrder, "B"):
		kind, digits = ReferenceBooking, buyOrder[1:]
	case strings.HasPrefix(buyOrder, "D"):
		kind, digits = ReferenceDonation, buyOrder[1:]
	}
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: buy order %q", ErrInvalidReference, buyOrder)
	}
	return NewReference(kind, id)
}
