package email

import (
	"bytes"
	"context"
	"testing"

	"github.com/Domenick1991/esteticcore/internal/kafka"
	"github.com/Domenick1991/esteticcore/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	body := Render(kafka.Notification{
		Name:    "Ana",
		Subject: "Pago recibido",
		Fields:  map[string]string{"monto": "16980", "buy_order": "42"},
	})

	assert.Equal(t, "Hola Ana,\n\nPago recibido\nbuy_order: 42\nmonto: 16980\n", body)
}

func TestSender_SendLogs(t *testing.T) {
	var buf bytes.Buffer
	s := NewSender("reservas@example.com", logger.New(logger.Config{Format: logger.JSON, Output: &buf}))

	err := s.Send(context.Background(), kafka.Notification{Type: kafka.EventOrderPaid, Email: "ana@example.com", Subject: "Pago recibido"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"to":"ana@example.com"`)
	assert.Contains(t, buf.String(), `"type":"order.paid"`)
}
