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
	"github.com/Domenick1991/esteticcore/internal/email"
	"github.com/Domenick1991/esteticcore/internal/kafka"
	"github.com/Domenick1991/esteticcore/internal/service/booking"
	"github.com/Domenick1991/esteticcore/internal/service/catalog"
	"github.com/Domenick1991/esteticcore/internal/service/payments"
	"github.com/Domenick1991/esteticcore/pkg/logger"
	"github.com/Domenick1991/esteticcore/pkg/obs"
	kafkaGo "github.com/segmentio/kafka-go"
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
		Service: cfg.App.Name + "-worker",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.Config{
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.App.Name + "-worker",
		Environment: cfg.App.Env,
	})
	if err != nil {
		log.Fatal("init tracer", "error", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	if cfg.Database.Driver == "memory" {
		log.Warn("worker running on the in-memory store sees none of the server's data")
	}
	store, closeStore, err := bootstrap.OpenStore(ctx, cfg.Database)
	if err != nil {
		log.Fatal("open store", "error", err)
	}
	defer closeStore()

	loc, _ := cfg.Booking.Location()

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Catalog.CacheTTL())
	defer redisCache.Close()

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

	bookingService := booking.NewBookingService(store,
		booking.WithCache(redisCache),
		booking.WithProducer(producer, cfg.Kafka.BookingTopic),
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithHoldTTL(cfg.Booking.HoldTTL()),
		booking.WithLocation(loc),
		booking.WithLogger(log),
	)
	paymentService := payments.NewPaymentService(store, gw,
		payments.WithLocker(redisCache),
		payments.WithProducer(producer, cfg.Kafka.PaymentTopic),
		payments.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		payments.WithCalendar(syncer),
		payments.WithStockObserver(catalog.NewCatalogService(store.Repos().Products, redisCache, log)),
		payments.WithReturnURL(cfg.Payment.ReturnURL),
		payments.WithCurrency(cfg.Payment.Currency),
		payments.WithGatewayTimeout(cfg.Payment.GatewayTimeout()),
		payments.WithLogger(log),
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, log)
	defer consumer.Close()

	emailSender := email.NewSender(cfg.Email.From, log)

	go func() {
		if err := consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
			n, err := kafka.DecodeNotification(msg)
			if err != nil {
				return err
			}
			return emailSender.Send(ctx, n)
		}); err != nil {
			log.Error("consumer stopped", "error", err)
		}
	}()

	expireTicker := time.NewTicker(time.Duration(cfg.Worker.ExpirationSweepMinutes) * time.Minute)
	defer expireTicker.Stop()
	reconcileTicker := time.NewTicker(time.Duration(cfg.Worker.ReconcileSweepMinutes) * time.Minute)
	defer reconcileTicker.Stop()

	log.Info("worker started",
		"expiration_sweep", cfg.Worker.ExpirationSweepMinutes,
		"reconcile_sweep", cfg.Worker.ReconcileSweepMinutes,
	)

	for {
		select {
		case <-expireTicker.C:
			if _, err := bookingService.ExpirePendingBookings(ctx); err != nil {
				log.Error("expire bookings", "error", err)
			}
		case <-reconcileTicker.C:
			if _, err := paymentService.ReconcileStale(ctx, cfg.Payment.PendingTTL(), cfg.Worker.ReconcileBatchSize); err != nil {
				log.Error("reconcile payments", "error", err)
			}
		case <-ctx.Done():
			log.Info("shutting down worker")
			return
		}
	}
}
