// Package app собирает сервис Epic Cart: хранилище, REST API, воркеры, Kafka и служебные серверы.
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
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/epiccart/internal/auth"
	healthcheck "github.com/vladislavdragonenkov/epiccart/internal/health"
	"github.com/vladislavdragonenkov/epiccart/internal/metrics"
	httpsvc "github.com/vladislavdragonenkov/epiccart/internal/service/http"
	"github.com/vladislavdragonenkov/epiccart/internal/service/idempotency"
	"github.com/vladislavdragonenkov/epiccart/internal/service/orders"
	"github.com/vladislavdragonenkov/epiccart/internal/service/outbox"
	"github.com/vladislavdragonenkov/epiccart/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run запускает сервис и блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.closeFn(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, auth.DefaultTokenTTL)
	if err != nil {
		return fmt.Errorf("init token manager: %w", err)
	}

	registerer := prometheus.DefaultRegisterer
	orderService := orders.NewService(deps.repo, deps.products,
		orders.WithLogger(logger.WithField("component", "orders")),
		orders.WithTimeline(deps.timelineRepo),
		orders.WithOutbox(deps.outboxRepo),
		orders.WithMetrics(metrics.NewOrderMetricsWithRegisterer(registerer)),
		orders.WithStrictTransitions(cfg.StrictTransitions),
	)

	workersCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	kafkaRT := initKafka(workersCtx, cfg, orderService, registerer, logger)
	workersDone := startWorkers(workersCtx, cfg, deps, kafkaRT, registerer, logger)

	apiHandler := httpsvc.NewHandler(orderService, tokens,
		httpsvc.WithLogger(logger.WithField("component", "http")),
		httpsvc.WithIdempotency(deps.idempotencyRepo),
		httpsvc.WithMetrics(metrics.NewHTTPMetrics(registerer)),
		httpsvc.WithPayPalClientID(cfg.PayPalClientID),
		httpsvc.WithAllowedOrigins(cfg.Origins()...),
	)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	for name, checker := range deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}

	grpcServer, healthServer := newGRPCServer(logger)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownWorkers(stopWorkers, workersDone, logger)
		kafkaRT.close(logger)
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		shutdownWorkers(stopWorkers, workersDone, logger)
		kafkaRT.close(logger)
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	apiSrv := &http.Server{
		Handler:           apiHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC health server listens on %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("REST API listens on %s", apiLis.Addr())
		if err := apiSrv.Serve(apiLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(apiSrv, logger)
	stopGRPC(grpcServer, logger)
	shutdownWorkers(stopWorkers, workersDone, logger)
	kafkaRT.close(logger)
	shutdownHTTP(metricsSrv, logger)

	return runErr
}

// startWorkers запускает outbox и очистку idempotency ключей; канал закрывается,
// когда оба воркера остановились.
func startWorkers(ctx context.Context, cfg Config, deps *runtimeDependencies, rt *kafkaRuntime, registerer prometheus.Registerer, logger *log.Entry) <-chan struct{} {
	outboxOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetrics(registerer)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if rt.dlq != nil {
		outboxOpts = append(outboxOpts, outbox.WithDLQPublisher(rt.dlq))
	}
	outboxWorker := outbox.NewWorker(deps.outboxRepo, rt.publisher, outboxOpts...)

	cleanupWorker := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
		idempotency.WithMetrics(metrics.NewCleanupMetrics(registerer)),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		finished := make(chan struct{}, 2)
		go func() { outboxWorker.Run(ctx); finished <- struct{}{} }()
		go func() { cleanupWorker.Run(ctx); finished <- struct{}{} }()
		<-finished
		<-finished
	}()
	return done
}

// newGRPCServer поднимает grpc.health.v1 и reflection с метриками go-grpc-prometheus.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
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
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	return server, healthServer
}

// stopGRPC ждёт завершения активных вызовов, но не дольше shutdownTimeout.
func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop timed out, forcing grpc server stop")
		server.Stop()
	}
}

// shutdownWorkers отменяет контекст воркеров и ждёт их остановки.
func shutdownWorkers(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("background workers did not stop in time")
	}
}

// startMetricsServer запускает /metrics и health probes.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.WithField("addr", addr).Info("metrics and health probes are served")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
