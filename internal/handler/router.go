package handler

import (
	"net/http"
	"time"

	"github.com/cashplanhq/cashplan-api-go/internal/domain"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/observability"
	"github.com/cashplanhq/cashplan-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Version is stamped at build time.
var Version = "dev"

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(
	scenarioSvc *service.ScenarioService,
	catalogSvc *service.CatalogService,
	importSvc *service.ImportService,
	authSvc *service.AuthService,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(catalogSvc, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// Authentication
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			if authSvc == nil {
				r.Handle("/*", supabaseUnavailableHandler("auth service"))
				return
			}
			// Public routes
			r.Post("/register", authRegisterHandler(authSvc, logger))
			r.Post("/login", authLoginHandler(authSvc, logger))
			r.Post("/refresh", authRefreshHandler(authSvc, logger))
			r.Post("/password/reset-request", authPasswordResetRequestHandler(authSvc, logger))
			r.Post("/password/reset-confirm", authPasswordResetConfirmHandler(authSvc, logger))

			// Protected routes
			r.Group(func(r chi.Router) {
				r.Use(JWTAuthMiddleware(authSvc, logger))
				r.Post("/logout", authLogoutHandler(authSvc, logger))
				r.Put("/password", authChangePasswordHandler(authSvc, logger))
			})
		})

		// =============================================
		// Scenarios & imports (protected when auth is configured)
		// =============================================
		r.Group(func(r chi.Router) {
			if authSvc != nil {
				r.Use(JWTAuthMiddleware(authSvc, logger))
			}

			// The catalog and import services need Supabase; the
			// snapshot routes below stay live in local mode.
			if catalogSvc == nil {
				catalogDown := supabaseUnavailableHandler("scenario catalog")
				r.Handle("/scenarios", catalogDown)
				r.Handle("/scenarios/{scenarioId}", catalogDown)
			} else {
				r.Get("/scenarios", listScenariosHandler(catalogSvc, logger))
				r.Post("/scenarios", createScenarioHandler(catalogSvc, logger))
				r.Get("/scenarios/{scenarioId}", getScenarioHandler(catalogSvc, logger))
				r.Patch("/scenarios/{scenarioId}", updateScenarioHandler(catalogSvc, logger))
				r.Delete("/scenarios/{scenarioId}", deleteScenarioHandler(catalogSvc, logger))
			}

			r.Get("/scenarios/{scenarioId}/snapshot", getSnapshotHandler(scenarioSvc, logger))
			r.Put("/scenarios/{scenarioId}/transactions/{transactionId}", updateTransactionHandler(scenarioSvc, logger))
			r.Post("/scenarios/{scenarioId}/moves", moveTransactionHandler(scenarioSvc, logger))
			r.Post("/scenarios/{scenarioId}/overrides", batchOverridesHandler(scenarioSvc, logger))

			if importSvc == nil {
				importsDown := supabaseUnavailableHandler("imports")
				r.Handle("/imports", importsDown)
				r.Handle("/imports/{importId}", importsDown)
				r.Handle("/imports/{importId}/rows", importsDown)
			} else {
				r.Post("/imports", createImportHandler(importSvc, logger))
				r.Get("/imports", listImportsHandler(importSvc, logger))
				r.Get("/imports/{importId}", getImportHandler(importSvc, logger))
				r.Get("/imports/{importId}/rows", getImportRowsHandler(importSvc, logger))
			}
		})

		// =============================================
		// Metrics summary
		// =============================================
		r.Get("/metrics/cache", cacheMetricsHandler(metrics))
	})

	return r
}

// ============================================================
// Operational handlers
// ============================================================

func healthzHandler(catalogSvc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		deps := map[string]string{}
		status := "healthy"

		if catalogSvc != nil {
			_, err := catalogSvc.ListScenarios(ctx, "health-check")
			if err != nil {
				logger.Warn("healthz: store check failed", zap.Error(err))
				deps["supabase"] = "degraded"
				status = "degraded"
			} else {
				deps["supabase"] = "healthy"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:       status,
			Version:      Version,
			Dependencies: deps,
			Timestamp:    time.Now().UTC(),
		})
	}
}

func supabaseUnavailableHandler(what string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusServiceUnavailable, what+" unavailable: Supabase not configured")
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func cacheMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"snapshotHitRate": metrics.CacheHitRate("snapshot"),
		})
	}
}
