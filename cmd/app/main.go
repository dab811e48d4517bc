package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/esteticcore/config"
	"github.com/Domenick1991/esteticcore/internal/bootstrap"
	"github.com/Domenick1991/esteticcore/internal/cache"
	"github.com/Domenick1991/esteticcore/internal/kafka"
	"github.com/Domenick1991/esteticcore/internal/service/booking"
	"github.com/Domenick1991/esteticcore/internal/service/catalog"
	"github.com/Domenick1991/esteticcore/internal/service/orders"
	"github.com/Domenick1991/esteticcore/internal/service/payments"
	"github.com/Domenick1991/esteticcore/pkg/logger"
	"github.com/Domenick1991/esteticcore/pkg/obs"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.New(logger.Config{}).Fatal("load config", "error", err)
	}

	log := logger.New(logger.Config{
		Level:   cfg.App.LogLevel,
		Format:  cfg.App.LogFormat,
		Service: cfg.App.Name,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.Config{
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Env,
	})
	if err != nil {
		log.Fatal("init tracer", "error", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg.Database)
	if err != nil {
		log.Fatal("open store", "error", err)
	}
	defer closeStore()

	loc, _ := cfg.Booking.Location()

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Catalog.CacheTTL())
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		log.Warn("redis unavailable, locks and catalog cache degrade to the database", "error", err)
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
	defer producer.Close()
	kctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := producer.CheckConnection(kctx); err != nil {
		log.Warn("kafka unavailable, events are dropped until it recovers", "error", err)
	}
	cancel()

	syncer, err := bootstrap.NewCalendarSyncer(ctx, cfg.Calendar, loc, log)
	if err != nil {
		log.Fatal("calendar", "error", err)
	}
	defer syncer.Close()

	gw, err := bootstrap.NewPaymentGateway(cfg.Payment)
	if err != nil {
		log.Fatal("payment gateway", "error", err)
	}

	catalogService := catalog.NewCatalogService(store.Repos().Products, redisCache, log)
	orderService := orders.NewOrderService(store, log)
	bookingService := booking.NewBookingService(store,
		booking.WithCache(redisCache),
		booking.WithProducer(producer, cfg.Kafka.BookingTopic),
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithCalendar(syncer),
		booking.WithHoldTTL(cfg.Booking.HoldTTL()),
		booking.WithLocation(loc),
		booking.WithLogger(log),
	)
	paymentService := payments.NewPaymentService(store, gw,
		payments.WithLocker(redisCache),
		payments.WithProducer(producer, cfg.Kafka.PaymentTopic),
		payments.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		payments.WithCalendar(syncer),
		payments.WithStockObserver(catalogService),
		payments.WithReturnURL(cfg.Payment.ReturnURL),
		payments.WithCurrency(cfg.Payment.Currency),
		payments.WithGatewayTimeout(cfg.Payment.GatewayTimeout()),
		payments.WithLogger(log),
	)

	log.Info("starting", "env", cfg.App.Env, "store", cfg.Database.Driver, "gateway", gw.Name())
	if err := bootstrap.Run(ctx, cfg, log, bootstrap.Services{
		Catalog:  catalogService,
		Orders:   orderService,
		Bookings: bookingService,
		Payments: paymentService,
	}); err != nil {
		log.Fatal("server error", "error", err)
	}
}
