package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hoangphuc3604/my-shop-backend/internal/di"
	"github.com/hoangphuc3604/my-shop-backend/internal/domain"
	"github.com/hoangphuc3604/my-shop-backend/internal/handlers"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/auth"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/config"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/idempotency"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/observability"
	"github.com/hoangphuc3604/my-shop-backend/internal/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "my-shop api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	startedAt := time.Now().UTC()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	baseLogger, err := observability.NewLogger(lookupEnv(envValues, "API_TELEMETRY_SERVICE_NAME", "my-shop-api"))
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() { _ = baseLogger.Sync() }()
	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	// From here on failures are logged as well as returned.
	fail := func(msg string, err error, fields ...zap.Field) error {
		logger.Error(msg, append(fields, zap.Error(err))...)
		return fmt.Errorf("%s: %w", msg, err)
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		return fail("secret fetcher", err)
	}
	defer closeQuietly(logger, "secret fetcher", fetcher.Close)

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	var missing *config.MissingSecretsError
	switch {
	case errors.As(err, &missing):
		return fail("missing required secrets", err, zap.Strings("secrets", missing.RedactedNames()))
	case err != nil:
		return fail("load configuration", err)
	}

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return fail("initialise tracing", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown error", zap.Error(err))
		}
	}()

	backend, err := openBackend(ctx, cfg, logger.Named("store"))
	if err != nil {
		return fail("open store", err, zap.String("driver", cfg.Store.Driver))
	}

	publisher, err := newEventPublisher(ctx, cfg.Events, logger.Named("events"))
	if err != nil {
		backend.registry.Close(ctx)
		return fail("initialise event publisher", err, zap.String("driver", cfg.Events.Driver))
	}
	defer closeQuietly(logger, "event publisher", publisher.Close)

	var (
		metrics      *observability.Metrics
		orderMetrics services.OrderMetrics
	)
	if cfg.Telemetry.MetricsEnabled {
		metrics = observability.NewMetrics()
		orderMetrics = metrics
	}

	build := buildInfoFromEnv(envValues, cfg, startedAt)
	container, err := di.NewContainer(ctx, cfg, backend.registry, di.Options{
		Events:       publisher.OrderEventPublisher,
		Metrics:      orderMetrics,
		Logger:       observability.ServiceLogger(logger.Named("orders")),
		Build:        build,
		HealthChecks: publisher.healthChecks(),
	})
	if err != nil {
		backend.registry.Close(ctx)
		return fail("build services", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("store close error", zap.Error(err))
		}
	}()

	verifier, err := newTokenVerifier(ctx, cfg.Auth)
	if err != nil {
		return fail("initialise token verifier", err, zap.String("provider", cfg.Auth.Provider))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newHandler(cfg, build, container, backend.idempotency, auth.NewAuthenticator(verifier, auth.WithRoleClaim(cfg.Auth.RoleClaim)), metrics, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		runIdempotencyCleanup(ctx, backend.idempotency, cfg.Idempotency, logger.Named("idempotency"))
	}()

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	serveErr := make(chan error, 1)
	go func() {
		serverLogger.Info("my-shop api listening",
			zap.String("store", cfg.Store.Driver),
			zap.String("events", cfg.Events.Driver),
			zap.String("auth", cfg.Auth.Provider),
		)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		stop()
		background.Wait()
		if !errors.Is(err, http.ErrServerClosed) {
			return fail("http server", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received; draining requests")
	background.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fail("graceful shutdown", err)
	}
	return nil
}

// newHandler assembles the middleware stack and routes.
func newHandler(cfg config.Config, build services.BuildInfo, container *di.Container, store idempotency.Store, authn *auth.Authenticator, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	httpLogger := logger.Named("http")
	global := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(httpLogger),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(httpLogger),
		observability.RequestLoggerMiddleware(),
	}
	if metrics != nil {
		global = append(global, metrics.HTTPMiddleware())
	}

	mutations := []func(http.Handler) http.Handler{
		handlers.MutationRateLimit(cfg.Server.MutationRateLimit),
		idempotency.Middleware(store,
			idempotency.WithHeader(cfg.Idempotency.Header),
			idempotency.WithTTL(cfg.Idempotency.TTL),
			idempotency.WithMethods(http.MethodPost),
		),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(global...),
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthBuildInfo(build),
			handlers.WithHealthSystemService(container.Services.System),
		)),
		handlers.WithAPIMiddlewares(authn.RequireRoles(domain.RoleAdmin, domain.RoleSale)),
		handlers.WithOrderMiddlewares(mutations...),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(container.Services.Orders).Routes),
		handlers.WithPromotionMiddlewares(mutations...),
		handlers.WithPromotionRoutes(handlers.NewPromotionHandlers(container.Services.PromoAdmin).Routes),
	}
	if metrics != nil {
		opts = append(opts, handlers.WithMetricsHandler(metrics.Handler()))
	}
	return handlers.NewRouter(opts...)
}

func closeQuietly(logger *zap.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Warn(what+" close error", zap.Error(err))
	}
}

// runIdempotencyCleanup purges expired records until ctx is cancelled.
func runIdempotencyCleanup(ctx context.Context, store idempotency.Store, cfg config.IdempotencyConfig, logger *zap.Logger) {
	if store == nil || cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := store.CleanupExpired(runCtx, time.Now().UTC(), cfg.CleanupBatchSize)
			cancel()
			if err != nil {
				logger.Error("idempotency cleanup error", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}
