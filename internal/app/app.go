package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/canteen/internal/health"
	"github.com/vladislavdragonenkov/canteen/internal/metrics"
	"github.com/vladislavdragonenkov/canteen/internal/service/idempotency"
	"github.com/vladislavdragonenkov/canteen/internal/service/ordering"
	"github.com/vladislavdragonenkov/canteen/internal/service/outbox"
	"github.com/vladislavdragonenkov/canteen/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/canteen/internal/version"
)

const (
	shutdownTimeout      = 5 * time.Second
	storageCheckInterval = 5 * time.Second
	readHeaderTimeout    = 5 * time.Second
)

// Run поднимает HTTP API, сервер метрик, gRPC health и фоновые воркеры и
// блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	a, err := newApplication(ctx, cfg, defaultBrokerDialers, logger)
	if err != nil {
		return err
	}
	defer a.close()

	lis, err := a.listen()
	if err != nil {
		return err
	}
	return a.serve(ctx, lis)
}

// application — собранный сервис столовой.
type application struct {
	cfg     Config
	logger  *log.Entry
	deps    *runtimeDependencies
	brokers *brokers

	orders        *ordering.Service
	healthHandler *healthcheck.Handler

	apiServer     *http.Server
	metricsServer *http.Server
	grpcServer    *grpc.Server
	grpcHealth    *health.Server

	outboxWorker  *outbox.Worker
	keySweeper    *idempotency.Sweeper
}

type listeners struct {
	api     net.Listener
	metrics net.Listener
	grpc    net.Listener
}

func (l listeners) close() {
	for _, lis := range []net.Listener{l.api, l.metrics, l.grpc} {
		if lis != nil {
			_ = lis.Close()
		}
	}
}

func newApplication(ctx context.Context, cfg Config, dialers brokerDialers, logger *log.Entry) (*application, error) {
	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	b := initBrokers(cfg, dialers, logger)

	opts := []ordering.Option{
		ordering.WithTimeline(deps.timeline),
		ordering.WithMetrics(metrics.NewOrderMetrics()),
		ordering.WithLogger(logger.WithField("component", "ordering")),
	}
	var worker *outbox.Worker
	if b.publisher != nil {
		opts = append(opts, ordering.WithOutbox(deps.outbox))
		worker = outbox.NewWorker(deps.outbox, b.publisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(b.dlq),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
	} else {
		logger.Info("no message broker configured, order events are not published")
	}
	orders := ordering.NewService(deps.catalog, deps.orders, deps.counter, opts...)

	api := httpapi.New(orders, deps.catalog, idempotency.NewGuard(deps.idempotency, cfg.IdempotencyTTL), httpapi.Config{
		JWTSecret:      cfg.JWTSecret,
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         logger.WithField("component", "http-api"),
	})

	healthHandler := healthcheck.NewHandler(version.Get().Short())
	healthHandler.RegisterChecker("storage", deps.storageChecker)

	grpcServer, grpcHealth := newGRPCHealthServer(logger)

	return &application{
		cfg:           cfg,
		logger:        logger,
		deps:          deps,
		brokers:       b,
		orders:        orders,
		healthHandler: healthHandler,
		apiServer: &http.Server{
			Handler:           api.Routes(),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		metricsServer: &http.Server{
			Handler:           newMetricsMux(healthHandler),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		grpcServer:   grpcServer,
		grpcHealth:   grpcHealth,
		outboxWorker: worker,
		keySweeper: idempotency.NewSweeper(deps.idempotency,
			idempotency.WithSweepLogger(logger.WithField("component", "placement-key-sweeper")),
			idempotency.WithSweepInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithSweepBatchSize(cfg.IdempotencyCleanupBatchSize),
		),
	}, nil
}

// newGRPCHealthServer собирает gRPC-сервер с health-протоколом, reflection и метриками.
func newGRPCHealthServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	return server, healthServer
}

// newMetricsMux отдаёт /metrics для Prometheus и пробы здоровья.
func newMetricsMux(healthHandler *healthcheck.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

func (a *application) listen() (listeners, error) {
	var lis listeners
	var err error
	if lis.api, err = net.Listen("tcp", a.cfg.HTTPAddr); err != nil {
		return listeners{}, fmt.Errorf("listen http api on %s: %w", a.cfg.HTTPAddr, err)
	}
	if lis.metrics, err = net.Listen("tcp", a.cfg.MetricsAddr); err != nil {
		lis.close()
		return listeners{}, fmt.Errorf("listen metrics on %s: %w", a.cfg.MetricsAddr, err)
	}
	if lis.grpc, err = net.Listen("tcp", a.cfg.GRPCHealthAddr); err != nil {
		lis.close()
		return listeners{}, fmt.Errorf("listen grpc health on %s: %w", a.cfg.GRPCHealthAddr, err)
	}
	return lis, nil
}

// serve запускает серверы и воркеры; первая ошибка любого из них останавливает остальные.
func (a *application) serve(ctx context.Context, lis listeners) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Infof("HTTP API слушает %s", lis.api.Addr())
		return serveHTTP(a.apiServer, lis.api)
	})
	g.Go(func() error {
		a.logger.Infof("метрики доступны по адресу %s/metrics", lis.metrics.Addr())
		a.logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", lis.metrics.Addr(), lis.metrics.Addr(), lis.metrics.Addr())
		return serveHTTP(a.metricsServer, lis.metrics)
	})
	g.Go(func() error {
		a.logger.Infof("gRPC health сервер слушает %s", lis.grpc.Addr())
		if err := a.grpcServer.Serve(lis.grpc); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.watchStorage(gctx)
		return nil
	})
	if a.outboxWorker != nil {
		g.Go(func() error {
			a.outboxWorker.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		a.keySweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("получен сигнал остановки, останавливаем серверы")
		a.shutdown()
		return nil
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// watchStorage переводит gRPC health в NOT_SERVING, пока хранилище недоступно.
func (a *application) watchStorage(ctx context.Context) {
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if !a.healthHandler.Ready(ctx) {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if ctx.Err() == nil {
			a.grpcHealth.SetServingStatus("", status)
		}
	}

	update()
	ticker := time.NewTicker(storageCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

func (a *application) shutdown() {
	a.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(a.apiServer, a.logger)

	stopped := make(chan struct{})
	go func() {
		a.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		a.logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		a.grpcServer.Stop()
	}

	shutdownHTTP(a.metricsServer, a.logger)
}

// close освобождает брокеры и хранилище после остановки воркеров.
func (a *application) close() {
	a.brokers.close(a.logger)
	a.deps.close(a.logger)
}

func serveHTTP(srv *http.Server, lis net.Listener) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http server shutdown with error")
	}
}
