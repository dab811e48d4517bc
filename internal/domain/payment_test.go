package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentStatus_Terminal(t *testing.T) {
	assert.False(t, PaymentStatusPending.Terminal())
	assert.False(t, PaymentStatusRequiresAction.Terminal())
	assert.True(t, PaymentStatusAuthorized.Terminal())
	assert.True(t, PaymentStatusFailed.Terminal())
	assert.True(t, PaymentStatusAborted.Terminal())
	assert.True(t, PaymentStatusRefunded.Terminal())
}

func TestPaymentIntent_Reopenable(t *testing.T) {
	tests := []struct {
		name   string
		intent PaymentIntent
		want   bool
	}{
		{"pending", PaymentIntent{Status: PaymentStatusPending}, true},
		{"aborted", PaymentIntent{Status: PaymentStatusAborted}, true},
		{"declined", PaymentIntent{Status: PaymentStatusFailed, FailureReason: "declined"}, true},
		{"reconciliation", PaymentIntent{Status: PaymentStatusFailed, AuthorizationCode: "1213", FailureReason: "insufficient stock", ReconciliationRequired: true}, false},
		{"authorized", PaymentIntent{Status: PaymentStatusAuthorized}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.intent.Reopenable())
		})
	}
}
