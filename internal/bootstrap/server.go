package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Domenick1991/esteticcore/api"
	"github.com/Domenick1991/esteticcore/config"
	commerceapi "github.com/Domenick1991/esteticcore/internal/api/commerce_service_api"
	"github.com/Domenick1991/esteticcore/internal/service/booking"
	"github.com/Domenick1991/esteticcore/internal/service/catalog"
	"github.com/Domenick1991/esteticcore/internal/service/orders"
	"github.com/Domenick1991/esteticcore/internal/service/payments"
	"github.com/Domenick1991/esteticcore/pkg/logger"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const shutdownTimeout = 5 * time.Second

// Services are the use cases exposed by the servers.
type Services struct {
	Catalog  catalog.CatalogUseCase
	Orders   orders.OrderUseCase
	Bookings booking.BookingUseCase
	Payments payments.PaymentUseCase
}

type Servers struct {
	grpcServer *grpc.Server
	httpServer *http.Server
}

// Run starts the gRPC server and the HTTP server (REST API, /v1 gateway and
// swagger) and blocks until ctx is canceled or a server fails.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger, svc Services) error {
	gwCtx, cancelGateway := context.WithCancel(context.Background())
	defer cancelGateway()

	s, err := newServers(gwCtx, cfg, log, svc)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}
	go func() {
		log.Info("grpc server listening", "address", cfg.GRPC.Address)
		errCh <- s.grpcServer.Serve(lis)
	}()

	go func() {
		log.Info("http server listening", "address", cfg.HTTP.Address)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.grpcServer.Stop()
		return err
	case <-ctx.Done():
		log.Info("shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		s.grpcServer.GracefulStop()
		return nil
	}
}

func newServers(ctx context.Context, cfg *config.Config, log *logger.Logger, svc Services) (*Servers, error) {
	grpcSrv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unaryLogger(log)),
	)
	commerceapi.RegisterCommerceServiceServer(grpcSrv, commerceapi.NewServer(svc.Bookings, svc.Payments))

	gwMux := runtime.NewServeMux()
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	if err := commerceapi.RegisterCommerceServiceHandlerFromEndpoint(ctx, gwMux, dialTarget(cfg.GRPC.Address), opts); err != nil {
		return nil, fmt.Errorf("register commerce gateway: %w", err)
	}

	router := api.NewRouter(log,
		api.NewCatalogHandler(svc.Catalog),
		api.NewOrderHandler(svc.Orders),
		api.NewBookingHandler(svc.Bookings),
		api.NewPaymentHandler(svc.Payments),
	)

	handler := http.NewServeMux()
	handler.Handle("/", router)
	handler.Handle("/v1/", gwMux)

	if cfg.HTTP.SwaggerDir != "" {
		fs := http.FileServer(http.Dir(cfg.HTTP.SwaggerDir))
		handler.Handle("/swagger/", http.StripPrefix("/swagger/", fs))
		handler.Handle("/docs/", httpSwagger.Handler(httpSwagger.URL("/swagger/commerce.swagger.json")))
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           otelhttp.NewHandler(handler, "http"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Servers{
		grpcServer: grpcSrv,
		httpServer: httpSrv,
	}, nil
}

// dialTarget turns a listen address such as ":9090" into something the
// gateway can dial.
func dialTarget(address string) string {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host != "" {
		return address
	}
	return net.JoinHostPort("localhost", port)
}

func unaryLogger(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			log.WarnContext(ctx, "grpc call failed",
				"method", info.FullMethod,
				"code", status.Code(err).String(),
				"duration", time.Since(start),
				"error", err,
			)
			return resp, err
		}
		log.InfoContext(ctx, "grpc call served", "method", info.FullMethod, "duration", time.Since(start))
		return resp, nil
	}
}
