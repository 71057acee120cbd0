package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cashplanhq/cashplan-api-go/internal/config"
	"github.com/cashplanhq/cashplan-api-go/internal/handler"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/cache"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/local"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/observability"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/remote"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/resilience"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/supabase"
	"github.com/cashplanhq/cashplan-api-go/internal/port"
	"github.com/cashplanhq/cashplan-api-go/internal/scenario"
	"github.com/cashplanhq/cashplan-api-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("provider_mode", cfg.ProviderMode),
		zap.Bool("use_supabase", cfg.UseSupabase()),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "cashplan-api")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	snapshotCache := cache.New[*scenario.Snapshot](cfg.CacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("supabase")

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var supabaseClient *supabase.Client
	if cfg.UseSupabase() {
		logger.Info("using Supabase as data backend",
			zap.String("supabase_url", cfg.SupabaseURL),
		)
		supabaseClient = supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			cb,
			resilienceCfg,
			logger,
		)
	}

	// --- Scenario provider ---
	var provider port.ScenarioProvider
	switch cfg.ProviderMode {
	case config.ProviderModeLocal:
		store := local.NewStore(cfg.LocalSeedPath, logger)
		if err := store.Load(); err != nil {
			logger.Fatal("failed to load local seed",
				zap.String("path", cfg.LocalSeedPath),
				zap.Error(err),
			)
		}
		provider = local.NewProvider(store, logger)
		logger.Info("scenario provider: local seed file",
			zap.String("path", cfg.LocalSeedPath),
			zap.Strings("scenarios", store.IDs()),
		)
	case config.ProviderModeRemote:
		if cfg.RemoteAPIURL == "" {
			logger.Fatal("PROVIDER_MODE=remote requires REMOTE_API_URL")
		}
		provider = remote.NewProvider(httpClient, cfg.RemoteAPIURL, cfg.SupabaseAnonKey, cb, resilienceCfg, logger)
		logger.Info("scenario provider: remote API", zap.String("url", cfg.RemoteAPIURL))
	default:
		logger.Fatal("unknown PROVIDER_MODE", zap.String("mode", cfg.ProviderMode))
	}

	// --- Services ---
	scenarioSvc := service.NewScenarioService(provider, snapshotCache, metrics, logger)

	var catalogSvc *service.CatalogService
	var importSvc *service.ImportService
	var authSvc *service.AuthService
	if supabaseClient != nil {
		catalogSvc = service.NewCatalogService(supabaseClient, supabaseClient, snapshotCache, logger)
		importSvc = service.NewImportService(supabaseClient, metrics, logger)
		authSvc = service.NewAuthService(supabaseClient, cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, logger)
		logger.Info("catalog, import and auth services enabled")
	} else {
		logger.Warn("Supabase not configured: catalog, import and auth routes unavailable")
	}

	// --- Router ---
	router := handler.NewRouter(scenarioSvc, catalogSvc, importSvc, authSvc, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
