package handler

import (
	"encoding/json"
	"net/http"

	"github.com/cashplanhq/cashplan-api-go/internal/domain"
	"github.com/cashplanhq/cashplan-api-go/internal/scenario"
	"github.com/cashplanhq/cashplan-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Snapshots & overrides
// ============================================================

// snapshotResponse is the full scenario view rendered for the frontend.
type snapshotResponse struct {
	ScenarioID     string                  `json:"scenarioId"`
	Weeks          []scenario.Week         `json:"weeks"`
	RunningBalance []scenario.BalancePoint `json:"runningBalance"`
}

func toSnapshotResponse(snap *scenario.Snapshot) snapshotResponse {
	return snapshotResponse{
		ScenarioID:     snap.ScenarioID,
		Weeks:          snap.Weeks,
		RunningBalance: snap.Balance,
	}
}

func getSnapshotHandler(svc *service.ScenarioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/scenarios/{scenarioId}/snapshot")
		defer span.End()

		scenarioID := chi.URLParam(r, "scenarioId")
		if scenarioID == "" {
			writeError(w, http.StatusBadRequest, "scenario_id is required")
			return
		}
		span.SetAttributes(attribute.String("scenario.id", scenarioID))

		snap, err := svc.GetSnapshot(ctx, scenarioID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
	}
}

func updateTransactionHandler(svc *service.ScenarioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/scenarios/{scenarioId}/transactions/{transactionId}")
		defer span.End()

		scenarioID := chi.URLParam(r, "scenarioId")
		transactionID := chi.URLParam(r, "transactionId")
		if scenarioID == "" || transactionID == "" {
			writeError(w, http.StatusBadRequest, "scenario_id and transaction_id are required")
			return
		}

		var req domain.UpdateTransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		snap, err := svc.UpdateTransaction(ctx, scenarioID, transactionID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
	}
}

func moveTransactionHandler(svc *service.ScenarioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/scenarios/{scenarioId}/moves")
		defer span.End()

		scenarioID := chi.URLParam(r, "scenarioId")
		if scenarioID == "" {
			writeError(w, http.StatusBadRequest, "scenario_id is required")
			return
		}

		var req domain.MoveTransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		snap, err := svc.MoveTransaction(ctx, scenarioID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
	}
}

// batchOverridesResponse pairs the per-item outcomes with the resulting view.
type batchOverridesResponse struct {
	UpdatedCount int                       `json:"updatedCount"`
	Results      []scenario.OverrideResult `json:"results"`
	Snapshot     snapshotResponse          `json:"snapshot"`
}

func batchOverridesHandler(svc *service.ScenarioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/scenarios/{scenarioId}/overrides")
		defer span.End()

		scenarioID := chi.URLParam(r, "scenarioId")
		if scenarioID == "" {
			writeError(w, http.StatusBadRequest, "scenario_id is required")
			return
		}

		var req domain.BatchOverrideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		snap, result, err := svc.SubmitBatchOverrides(ctx, scenarioID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, batchOverridesResponse{
			UpdatedCount: result.UpdatedCount,
			Results:      result.Results,
			Snapshot:     toSnapshotResponse(snap),
		})
	}
}
