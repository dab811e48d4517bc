package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBookingStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to BookingStatus
		want     bool
	}{
		{BookingStatusPending, BookingStatusPaid, true},
		{BookingStatusPending, BookingStatusCancelled, true},
		{BookingStatusPending, BookingStatusFulfilled, true},
		{BookingStatusPending, BookingStatusNoShow, true},
		{BookingStatusPaid, BookingStatusFulfilled, true},
		{BookingStatusPaid, BookingStatusNoShow, true},
		{BookingStatusPaid, BookingStatusCancelled, false},
		{BookingStatusPaid, BookingStatusPending, false},
		{BookingStatusCancelled, BookingStatusPending, false},
		{BookingStatusFulfilled, BookingStatusPaid, false},
		{BookingStatusNoShow, BookingStatusFulfilled, false},
		{BookingStatusPending, BookingStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestBookingStatus_Terminal(t *testing.T) {
	assert.False(t, BookingStatusPending.Terminal())
	assert.False(t, BookingStatusPaid.Terminal())
	assert.True(t, BookingStatusCancelled.Terminal())
	assert.True(t, BookingStatusFulfilled.Terminal())
	assert.True(t, BookingStatusNoShow.Terminal())
}

func TestBookingStatus_Valid(t *testing.T) {
	assert.True(t, BookingStatusNoShow.Valid())
	assert.False(t, BookingStatus("expired").Valid())
}
