package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/Domenick1991/esteticcore/config"
	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/internal/repository/memory"
	"github.com/Domenick1991/esteticcore/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStore(t *testing.T) {
	store, release, err := OpenStore(context.Background(), config.DatabaseConfig{Driver: "memory"})
	require.NoError(t, err)
	defer release()
	assert.IsType(t, &memory.Store{}, store)

	_, _, err = OpenStore(context.Background(), config.DatabaseConfig{Driver: "sqlite"})
	assert.Error(t, err)
}

func TestNewPaymentGateway(t *testing.T) {
	gw, err := NewPaymentGateway(config.PaymentConfig{Provider: "webpay", GatewayTimeoutSeconds: 15})
	require.NoError(t, err)
	assert.Equal(t, "webpay", gw.Name())

	gw, err = NewPaymentGateway(config.PaymentConfig{Provider: "fake", ReturnURL: "http://localhost:8080/api/payments/return"})
	require.NoError(t, err)
	assert.Equal(t, "fake", gw.Name())

	_, err = NewPaymentGateway(config.PaymentConfig{Provider: "paypal"})
	assert.Error(t, err)
}

func TestNewCalendarSyncer_Disabled(t *testing.T) {
	syncer, err := NewCalendarSyncer(context.Background(), config.CalendarConfig{}, time.UTC, logger.Nop())
	require.NoError(t, err)
	assert.False(t, syncer.Enabled())

	syncer.Notify(domain.Booking{ID: 1})
	syncer.Close()
}
