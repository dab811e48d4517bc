package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "COMMERCE"

type Config struct {
	App      AppConfig      `yaml:"app"`
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Payment  PaymentConfig  `yaml:"payment"`
	Calendar CalendarConfig `yaml:"calendar"`
	Email    EmailConfig    `yaml:"email"`
	Worker   WorkerConfig   `yaml:"worker"`
	Otel     OtelConfig     `yaml:"otel"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir" envconfig:"SWAGGER_DIR"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

// DatabaseConfig selects the store. Driver "memory" keeps everything in
// process and is meant for local runs with the fake gateway.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode" envconfig:"SSL_MODE"`
	MaxConns int32  `yaml:"max_conns" envconfig:"MAX_CONNS"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingTopic       string   `yaml:"booking_topic" envconfig:"BOOKING_TOPIC"`
	PaymentTopic       string   `yaml:"payment_topic" envconfig:"PAYMENT_TOPIC"`
	NotificationsTopic string   `yaml:"notifications_topic" envconfig:"NOTIFICATIONS_TOPIC"`
	GroupID            string   `yaml:"group_id" envconfig:"GROUP_ID"`
}

type BookingConfig struct {
	Timezone       string `yaml:"timezone"`
	HoldTTLMinutes int    `yaml:"hold_ttl_minutes" envconfig:"HOLD_TTL_MINUTES"`
}

type CatalogConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" envconfig:"CACHE_TTL_SECONDS"`
}

type PaymentConfig struct {
	// Provider is "webpay" or "fake".
	Provider              string       `yaml:"provider"`
	Currency              string       `yaml:"currency"`
	ReturnURL             string       `yaml:"return_url" envconfig:"RETURN_URL"`
	GatewayTimeoutSeconds int          `yaml:"gateway_timeout_seconds" envconfig:"GATEWAY_TIMEOUT_SECONDS"`
	PendingTTLMinutes     int          `yaml:"pending_ttl_minutes" envconfig:"PENDING_TTL_MINUTES"`
	Webpay                WebpayConfig `yaml:"webpay"`
}

type WebpayConfig struct {
	BaseURL      string `yaml:"base_url" envconfig:"BASE_URL"`
	CommerceCode string `yaml:"commerce_code" envconfig:"COMMERCE_CODE"`
	APIKey       string `yaml:"api_key" envconfig:"API_KEY"`
}

type CalendarConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CalendarID      string `yaml:"calendar_id" envconfig:"CALENDAR_ID"`
	CredentialsFile string `yaml:"credentials_file" envconfig:"CREDENTIALS_FILE"`
	QueueSize       int    `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
}

type EmailConfig struct {
	From string `yaml:"from"`
}

type WorkerConfig struct {
	ExpirationSweepMinutes int `yaml:"expiration_sweep_minutes" envconfig:"EXPIRATION_SWEEP_MINUTES"`
	ReconcileSweepMinutes  int `yaml:"reconcile_sweep_minutes" envconfig:"RECONCILE_SWEEP_MINUTES"`
	ReconcileBatchSize     int `yaml:"reconcile_batch_size" envconfig:"RECONCILE_BATCH_SIZE"`
}

type OtelConfig struct {
	Endpoint string `yaml:"endpoint"`
}

func (c BookingConfig) HoldTTL() time.Duration {
	return time.Duration(c.HoldTTLMinutes) * time.Minute
}

func (c BookingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c CatalogConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c PaymentConfig) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutSeconds) * time.Second
}

func (c PaymentConfig) PendingTTL() time.Duration {
	return time.Duration(c.PendingTTLMinutes) * time.Minute
}

// LoadConfig reads the YAML file, applies COMMERCE_* environment overrides,
// fills defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.App.Name, "esteticcore")
	setDefault(&c.App.LogLevel, "info")
	setDefault(&c.App.LogFormat, "json")
	setDefault(&c.HTTP.Address, ":8080")
	setDefault(&c.GRPC.Address, ":9090")
	setDefault(&c.Database.Driver, "postgres")
	setDefault(&c.Database.SSLMode, "disable")
	setDefault(&c.Booking.Timezone, "America/Santiago")
	setDefault(&c.Payment.Provider, "webpay")
	setDefault(&c.Payment.Currency, "CLP")
	setDefault(&c.Payment.Webpay.BaseURL, "https://webpay3gint.transbank.cl")
	setDefault(&c.Kafka.GroupID, "esteticcore-worker")

	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Catalog.CacheTTLSeconds == 0 {
		c.Catalog.CacheTTLSeconds = 60
	}
	if c.Payment.GatewayTimeoutSeconds == 0 {
		c.Payment.GatewayTimeoutSeconds = 15
	}
	if c.Payment.PendingTTLMinutes == 0 {
		c.Payment.PendingTTLMinutes = 30
	}
	if c.Calendar.QueueSize == 0 {
		c.Calendar.QueueSize = 64
	}
	if c.Worker.ExpirationSweepMinutes == 0 {
		c.Worker.ExpirationSweepMinutes = 1
	}
	if c.Worker.ReconcileSweepMinutes == 0 {
		c.Worker.ReconcileSweepMinutes = 5
	}
	if c.Worker.ReconcileBatchSize == 0 {
		c.Worker.ReconcileBatchSize = 50
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" || c.Database.Name == "" {
			errs = append(errs, errors.New("database.host and database.name are required for postgres"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}

	switch c.Payment.Provider {
	case "webpay":
		if c.Payment.Webpay.CommerceCode == "" || c.Payment.Webpay.APIKey == "" {
			errs = append(errs, errors.New("payment.webpay.commerce_code and payment.webpay.api_key are required"))
		}
	case "fake":
	default:
		errs = append(errs, fmt.Errorf("unknown payment.provider %q", c.Payment.Provider))
	}
	if c.Payment.ReturnURL == "" {
		errs = append(errs, errors.New("payment.return_url is required"))
	}

	if _, err := c.Booking.Location(); err != nil {
		errs = append(errs, fmt.Errorf("booking.timezone: %w", err))
	}
	if c.Booking.HoldTTLMinutes < 0 {
		errs = append(errs, errors.New("booking.hold_ttl_minutes must not be negative"))
	}

	if c.Calendar.Enabled && (c.Calendar.CalendarID == "" || c.Calendar.CredentialsFile == "") {
		errs = append(errs, errors.New("calendar.calendar_id and calendar.credentials_file are required when calendar is enabled"))
	}

	if c.Worker.ExpirationSweepMinutes <= 0 || c.Worker.ReconcileSweepMinutes <= 0 {
		errs = append(errs, errors.New("worker.expiration_sweep_minutes and worker.reconcile_sweep_minutes must be positive"))
	}
	if c.Worker.ReconcileBatchSize <= 0 {
		errs = append(errs, errors.New("worker.reconcile_batch_size must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
