package handler

import (
	"encoding/json"
	"net/http"

	"github.com/cashplanhq/cashplan-api-go/internal/domain"
	"github.com/cashplanhq/cashplan-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Scenario catalog — CRUD on scenario metadata
// ============================================================

func createScenarioHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/scenarios")
		defer span.End()

		var req domain.CreateScenarioRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		created, err := svc.CreateScenario(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, created)
	}
}

func listScenariosHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/scenarios")
		defer span.End()

		scenarios, err := svc.ListScenarios(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if scenarios == nil {
			scenarios = []domain.Scenario{}
		}

		writeJSON(w, http.StatusOK, scenarios)
	}
}

func getScenarioHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/scenarios/{scenarioId}")
		defer span.End()

		scenarioID := chi.URLParam(r, "scenarioId")
		span.SetAttributes(attribute.String("scenario.id", scenarioID))

		scn, err := svc.GetScenario(ctx, UserIDFromContext(ctx), scenarioID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, scn)
	}
}

func updateScenarioHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/scenarios/{scenarioId}")
		defer span.End()

		scenarioID := chi.URLParam(r, "scenarioId")
		span.SetAttributes(attribute.String("scenario.id", scenarioID))

		var req domain.UpdateScenarioRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		updated, err := svc.UpdateScenario(ctx, UserIDFromContext(ctx), scenarioID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteScenarioHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/scenarios/{scenarioId}")
		defer span.End()

		scenarioID := chi.URLParam(r, "scenarioId")
		span.SetAttributes(attribute.String("scenario.id", scenarioID))

		if err := svc.DeleteScenario(ctx, UserIDFromContext(ctx), scenarioID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
