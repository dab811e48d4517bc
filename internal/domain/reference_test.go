package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestReference_BuyOrderRoundTrip(t *testing.T) {
	refs := []Reference{
		OrderRef{OrderID: 42},
		BookingRef{BookingID: 7},
		DonationRef{DonationID: 3},
	}
	want := []string{"42", "B7", "D3"}

	for i, ref := range refs {
		assert.Equal(t, want[i], ref.BuyOrder())
		parsed, err := ParseBuyOrder(ref.BuyOrder())
		require.NoError(t, err)
		assert.Equal(t, ref, parsed)
	}
}

func TestParseBuyOrder_Invalid(t *testing.T) {
	for _, in := range []string{"", "B", "X12", "D-1", "0"} {
		_, err := ParseBuyOrder(in)
		assert.ErrorIs(t, err, ErrInvalidReference, in)
	}
}

func TestNewReference(t *testing.T) {
	ref, err := NewReference(ReferenceBooking, 9)
	require.NoError(t, err)
	assert.Equal(t, BookingRef{BookingID: 9}, ref)
	assert.Equal(t, "booking:9", ref.String())

	_, err = NewReference("gift", 1)
	assert.ErrorIs(t, err, ErrInvalidReference)
}
