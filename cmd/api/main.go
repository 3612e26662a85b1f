package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hanko-field/orderengine/internal/di"
	"github.com/hanko-field/orderengine/internal/handlers"
	"github.com/hanko-field/orderengine/internal/notify"
	"github.com/hanko-field/orderengine/internal/platform/auth"
	"github.com/hanko-field/orderengine/internal/platform/config"
	"github.com/hanko-field/orderengine/internal/platform/idempotency"
	"github.com/hanko-field/orderengine/internal/platform/metrics"
	"github.com/hanko-field/orderengine/internal/platform/observability"
	"github.com/hanko-field/orderengine/internal/platform/secrets"
)

const (
	checkoutRateLimit  = 10
	checkoutRateWindow = time.Minute
	authVerifyTimeout  = 5 * time.Second
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["API_LOG_LEVEL"], "orderengine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     buildInfo.Version,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		logger.Fatal("failed to initialise tracing", zap.Error(err))
	}

	registry := metrics.NewRegistry()

	stores, err := openBackends(ctx, cfg, logger.Named("storage"))
	if err != nil {
		logger.Fatal("failed to open storage backends", zap.Error(err))
	}

	sinks, sinkClosers, err := eventSinks(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise event sinks", zap.Error(err))
	}
	dispatcher := notify.NewDispatcher(sinks,
		notify.WithTimeout(cfg.Events.DispatchTimeout),
		notify.WithLogger(logger.Named("notify")),
		notify.WithRecorder(registry),
	)

	container, err := di.NewContainer(cfg, stores, di.Dependencies{
		Events:  dispatcher,
		Metrics: registry,
		Logger:  observability.EventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	svc := container.Services

	authenticator := buildAuthenticator(ctx, logger.Named("auth"), cfg)
	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg)

	idempotencyMiddleware := idempotency.Middleware(
		stores.store,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		idempotency.RunCleanup(cleanupCtx, stores.store, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
	}()

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthRepository(stores.Health()),
	)

	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Checkout, svc.Orders,
		handlers.WithOrderIdempotency(idempotencyMiddleware),
		handlers.WithOrderPayments(svc.Payments),
		handlers.WithCheckoutRateLimit(checkoutRateLimit, checkoutRateWindow),
	)
	adminHandlers := handlers.NewAdminHandlers(authenticator, svc.Orders, svc.Payments, svc.Inventory)
	internalHandlers := handlers.NewInternalHandlers(svc.Payments, stores.store)

	projectID := cfg.Firestore.ProjectID
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		registry.Middleware,
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
		handlers.WithInternalMiddlewares(oidcMiddleware),
	}
	if cfg.Telemetry.MetricsEnabled {
		opts = append(opts, handlers.WithMetricsHandler(registry.Handler()))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("order engine listening",
			zap.String("storage", cfg.Storage.Backend),
			zap.String("ledger", cfg.Storage.LedgerBackend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	cleanupCancel()
	cleanupWG.Wait()

	// Pending events are flushed before their sinks are closed.
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("event dispatcher close error", zap.Error(err))
	}
	for _, closeSink := range sinkClosers {
		if err := closeSink(shutdownCtx); err != nil {
			logger.Warn("event sink close error", zap.Error(err))
		}
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("storage close error", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown error", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

// buildAuthenticator returns an authenticator that rejects every request when
// Firebase is not configured, so a local run never serves unauthenticated writes.
func buildAuthenticator(ctx context.Context, logger *zap.Logger, cfg config.Config) *auth.Authenticator {
	if strings.TrimSpace(cfg.Firebase.ProjectID) == "" {
		logger.Warn("auth: firebase project not configured; customer and admin routes will reject requests")
		return auth.NewAuthenticator(nil)
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase, authVerifyTimeout)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	return auth.NewAuthenticator(verifier, auth.WithVerificationTimeout(authVerifyTimeout))
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL)
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(logger))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := secretProjectMapFromEnv(env); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists config fields that must resolve to a non-empty value.
func requiredSecretNames(env map[string]string) []string {
	backend := strings.ToLower(strings.TrimSpace(env["API_STORAGE_BACKEND"]))
	ledger := strings.ToLower(strings.TrimSpace(env["API_STORAGE_LEDGER_BACKEND"]))
	if backend == config.StorageBackendPostgres || ledger == config.StorageBackendPostgres {
		return []string{"Postgres.DSN"}
	}
	return nil
}

// secretProjectMapFromEnv parses API_SECRET_PROJECT_IDS ("prod=proj-a,stg=proj-b").
func secretProjectMapFromEnv(env map[string]string) map[string]string {
	projects := make(map[string]string)
	for _, entry := range strings.Split(env["API_SECRET_PROJECT_IDS"], ",") {
		label, project, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		label = strings.ToLower(strings.TrimSpace(label))
		project = strings.TrimSpace(project)
		if label == "" || project == "" {
			continue
		}
		projects[label] = project
	}
	return projects
}
