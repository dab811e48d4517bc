package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/esteticcore/config"
	"github.com/Domenick1991/esteticcore/internal/calendar"
	"github.com/Domenick1991/esteticcore/internal/gateway"
	"github.com/Domenick1991/esteticcore/internal/gateway/fake"
	"github.com/Domenick1991/esteticcore/internal/gateway/webpay"
	"github.com/Domenick1991/esteticcore/internal/repository"
	"github.com/Domenick1991/esteticcore/internal/repository/memory"
	"github.com/Domenick1991/esteticcore/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenStore connects the configured store. The returned func releases it.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (repository.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		return memory.NewStore(), func() {}, nil
	case "postgres":
		poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("parse postgres dsn: %w", err)
		}
		if cfg.MaxConns > 0 {
			poolCfg.MaxConns = cfg.MaxConns
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		return repository.NewPGStore(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// NewPaymentGateway builds the configured provider. The fake provider sends
// the payer straight back to the return URL.
func NewPaymentGateway(cfg config.PaymentConfig) (gateway.Gateway, error) {
	switch cfg.Provider {
	case "webpay":
		return webpay.New(webpay.Config{
			BaseURL:      cfg.Webpay.BaseURL,
			CommerceCode: cfg.Webpay.CommerceCode,
			APIKey:       cfg.Webpay.APIKey,
			Timeout:      2 * cfg.GatewayTimeout(),
		}), nil
	case "fake":
		return fake.New(cfg.ReturnURL), nil
	}
	return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
}

// NewCalendarSyncer returns a started syncer. When calendar sync is disabled
// the syncer is inert.
func NewCalendarSyncer(ctx context.Context, cfg config.CalendarConfig, loc *time.Location, log *logger.Logger) (*calendar.Syncer, error) {
	var inserter calendar.Inserter
	if cfg.Enabled {
		var err error
		inserter, err = calendar.NewGoogleInserter(ctx, cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("google calendar: %w", err)
		}
	}
	syncer := calendar.NewSyncer(inserter, cfg.CalendarID, cfg.QueueSize,
		calendar.WithLogger(log),
		calendar.WithLocation(loc),
	)
	syncer.Start(ctx)

	go func() {
		for err := range syncer.Errors() {
			log.Warn("calendar sync failed", "error", err)
		}
	}()
	return syncer, nil
}
