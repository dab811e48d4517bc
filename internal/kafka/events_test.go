package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNotification(t *testing.T) {
	n := Notification{
		Type:       EventBookingPaid,
		Email:      "ana@example.com",
		Subject:    "Reserva confirmada",
		Fields:     map[string]string{"booking_id": "7"},
		OccurredAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(n)
	require.NoError(t, err)

	got, err := DecodeNotification(kafka.Message{Value: data})
	require.NoError(t, err)
	assert.Equal(t, n, got)
}

func TestDecodeNotification_Errors(t *testing.T) {
	_, err := DecodeNotification(kafka.Message{Value: []byte("{"), Offset: 4})
	assert.ErrorContains(t, err, "offset 4")

	_, err = DecodeNotification(kafka.Message{Value: []byte(`{"type":"order.paid"}`)})
	assert.ErrorContains(t, err, "no recipient")
}

func TestNewProducer(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, nil)
	require.NotNil(t, p)
	assert.NoError(t, p.Close())
}

func TestProducer_CheckConnection(t *testing.T) {
	p := NewProducer(nil, nil)
	assert.ErrorContains(t, p.CheckConnection(context.Background()), "no kafka brokers")

	// Nothing listens on port 1.
	p = NewProducer([]string{"127.0.0.1:1"}, nil)
	defer p.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.ErrorContains(t, p.CheckConnection(ctx), "failed to connect to Kafka")
}

func TestProducer_PublishWithRetry(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, nil)
	defer p.Close()
	unencodable := map[string]any{"ch": make(chan int)}

	err := p.PublishWithRetry(context.Background(), "payments", "ORD-1", unencodable, 1)
	assert.ErrorContains(t, err, "failed after 1 retries")
	assert.ErrorContains(t, err, "failed to marshal payload")

	// A cancelled context stops the backoff after the first failure.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = p.PublishWithRetry(ctx, "payments", "ORD-1", unencodable, 3)
	assert.ErrorIs(t, err, context.Canceled)
}
