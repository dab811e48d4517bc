package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
database:
  driver: postgres
  host: localhost
  user: commerce
  password: secret
  name: commerce
kafka:
  brokers: ["localhost:9092"]
  booking_topic: bookings
payment:
  provider: webpay
  return_url: http://localhost:8080/api/payments/return
  webpay:
    commerce_code: "597055555532"
    api_key: key
booking:
  hold_ttl_minutes: 15
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "America/Santiago", cfg.Booking.Timezone)
	assert.Equal(t, 15*time.Minute, cfg.Booking.HoldTTL())
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "CLP", cfg.Payment.Currency)
	assert.Equal(t, 15*time.Second, cfg.Payment.GatewayTimeout())
	assert.Equal(t, "https://webpay3gint.transbank.cl", cfg.Payment.Webpay.BaseURL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "host=localhost port=5432 user=commerce password=secret dbname=commerce sslmode=disable", cfg.Database.DSN())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("COMMERCE_DATABASE_PASSWORD", "from-env")
	t.Setenv("COMMERCE_BOOKING_HOLD_TTL_MINUTES", "30")
	t.Setenv("COMMERCE_PAYMENT_WEBPAY_API_KEY", "env-key")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, 30, cfg.Booking.HoldTTLMinutes)
	assert.Equal(t, "env-key", cfg.Payment.Webpay.APIKey)
	assert.Equal(t, "commerce", cfg.Database.User)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"memory driver needs no host", func(c *Config) { c.Database.Driver = "memory"; c.Database.Host = "" }, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "sqlite" }, "unknown database.driver"},
		{"fake provider needs no keys", func(c *Config) { c.Payment.Provider = "fake"; c.Payment.Webpay.APIKey = "" }, ""},
		{"webpay without keys", func(c *Config) { c.Payment.Webpay.APIKey = "" }, "api_key are required"},
		{"bad timezone", func(c *Config) { c.Booking.Timezone = "Mars/Olympus" }, "booking.timezone"},
		{"calendar without credentials", func(c *Config) { c.Calendar.Enabled = true }, "calendar.calendar_id"},
		{"missing return url", func(c *Config) { c.Payment.ReturnURL = "" }, "payment.return_url"},
		{"negative expiration sweep", func(c *Config) { c.Worker.ExpirationSweepMinutes = -1 }, "worker.expiration_sweep_minutes"},
		{"negative reconcile sweep", func(c *Config) { c.Worker.ReconcileSweepMinutes = -5 }, "worker.reconcile_sweep_minutes"},
		{"negative batch size", func(c *Config) { c.Worker.ReconcileBatchSize = -1 }, "worker.reconcile_batch_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, sampleYAML))
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
