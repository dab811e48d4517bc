package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusPaid      BookingStatus = "paid"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusFulfilled BookingStatus = "fulfilled"
	BookingStatusNoShow    BookingStatus = "no_show"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending: {BookingStatusPaid, BookingStatusCancelled, BookingStatusFulfilled, BookingStatusNoShow},
	BookingStatusPaid:    {BookingStatusFulfilled, BookingStatusNoShow},
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusPaid, BookingStatusCancelled, BookingStatusFulfilled, BookingStatusNoShow:
		return true
	}
	return false
}

// CanTransitionTo reports whether a booking may move from s to next.
// Statuses only advance; cancelled, fulfilled and no_show are terminal.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return len(bookingTransitions[s]) == 0
}

// Customer is the contact data captured with a booking.
type Customer struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"max=30"`
	Notes string `json:"notes"`
}

type Booking struct {
	ID            int64
	SlotID        int64
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Notes         string
	Status        BookingStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Echoed for display, filled on claim and read.
	Slot    *AvailabilitySlot
	Service *Service
}
