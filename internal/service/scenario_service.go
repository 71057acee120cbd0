package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cashplanhq/cashplan-api-go/internal/domain"
	"github.com/cashplanhq/cashplan-api-go/internal/port"
	"github.com/cashplanhq/cashplan-api-go/internal/scenario"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/cashplanhq/cashplan-api-go/internal/infra/observability"
)

var tracer = otel.Tracer("service/scenario")

// ScenarioService serves scenario snapshots and applies transaction
// overrides through whichever provider is configured.
type ScenarioService struct {
	provider port.ScenarioProvider
	cache    port.Cache[*scenario.Snapshot]
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewScenarioService creates the scenario service with all dependencies injected.
func NewScenarioService(
	provider port.ScenarioProvider,
	cache port.Cache[*scenario.Snapshot],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ScenarioService {
	return &ScenarioService{
		provider: provider,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
	}
}

func snapshotKey(scenarioID string) string {
	return fmt.Sprintf("snapshot:%s", scenarioID)
}

// GetSnapshot returns the current snapshot, from cache when fresh.
func (s *ScenarioService) GetSnapshot(ctx context.Context, scenarioID string) (*scenario.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "ScenarioService.GetSnapshot")
	defer span.End()
	span.SetAttributes(attribute.String("scenario.id", scenarioID))

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("get_snapshot", time.Since(start))
	}()

	key := snapshotKey(scenarioID)
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.IncrCacheHit("snapshot")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("snapshot")

	snap, err := s.provider.FetchSnapshot(ctx, scenarioID)
	if err != nil {
		s.logger.Error("failed to fetch snapshot",
			zap.String("scenario_id", scenarioID),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("snapshot")
		return nil, err
	}

	s.cache.Set(key, snap)
	return snap, nil
}

// UpdateTransaction applies an amount/date override to one transaction.
func (s *ScenarioService) UpdateTransaction(ctx context.Context, scenarioID, transactionID string, req *domain.UpdateTransactionRequest) (*scenario.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "ScenarioService.UpdateTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("scenario.id", scenarioID),
		attribute.String("transaction.id", transactionID),
	)

	if req.NewDate == nil && req.NewAmountCents == nil {
		return nil, &domain.ErrValidation{Field: "body", Message: "nothing to update"}
	}
	if req.NewAmountCents != nil && *req.NewAmountCents < 0 {
		return nil, &domain.ErrValidation{Field: "new_amount_cents", Message: "amount must not be negative"}
	}

	snap, err := s.provider.UpdateTransaction(ctx, scenarioID, transactionID, req)
	if err != nil {
		s.metrics.IncrOverride("rejected")
		return nil, err
	}
	s.metrics.IncrOverride("applied")

	s.cache.Set(snapshotKey(scenarioID), snap)

	s.logger.Info("transaction updated",
		zap.String("scenario_id", scenarioID),
		zap.String("transaction_id", transactionID),
	)
	return snap, nil
}

// MoveTransaction reschedules one transaction to the week containing the
// target date.
func (s *ScenarioService) MoveTransaction(ctx context.Context, scenarioID string, req *domain.MoveTransactionRequest) (*scenario.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "ScenarioService.MoveTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("scenario.id", scenarioID),
		attribute.String("transaction.id", req.TransactionID),
	)

	if req.TransactionID == "" {
		return nil, &domain.ErrValidation{Field: "transaction_id", Message: "transaction id is required"}
	}
	if _, err := time.Parse("2006-01-02", req.TargetDate); err != nil {
		return nil, &domain.ErrValidation{Field: "target_date", Message: "target date must be YYYY-MM-DD"}
	}

	snap, err := s.provider.MoveTransaction(ctx, scenarioID, req)
	if err != nil {
		s.metrics.IncrOverride("rejected")
		return nil, err
	}
	s.metrics.IncrOverride("applied")

	s.cache.Set(snapshotKey(scenarioID), snap)

	s.logger.Info("transaction moved",
		zap.String("scenario_id", scenarioID),
		zap.String("transaction_id", req.TransactionID),
		zap.String("target_date", req.TargetDate),
	)
	return snap, nil
}

// SubmitBatchOverrides applies a set of overrides as one unit.
func (s *ScenarioService) SubmitBatchOverrides(ctx context.Context, scenarioID string, req *domain.BatchOverrideRequest) (*scenario.Snapshot, *scenario.BatchResult, error) {
	ctx, span := tracer.Start(ctx, "ScenarioService.SubmitBatchOverrides")
	defer span.End()
	span.SetAttributes(
		attribute.String("scenario.id", scenarioID),
		attribute.Int("overrides", len(req.Overrides)),
	)

	if len(req.Overrides) == 0 {
		return nil, nil, &domain.ErrValidation{Field: "overrides", Message: "at least one override is required"}
	}
	for i, o := range req.Overrides {
		if o.TransactionID == "" {
			return nil, nil, &domain.ErrValidation{
				Field:   fmt.Sprintf("overrides[%d].transaction_id", i),
				Message: "transaction id is required",
			}
		}
		if o.NewDate != nil {
			if _, err := time.Parse("2006-01-02", *o.NewDate); err != nil {
				return nil, nil, &domain.ErrValidation{
					Field:   fmt.Sprintf("overrides[%d].new_date", i),
					Message: "date must be YYYY-MM-DD",
				}
			}
		}
		if o.NewAmountCents != nil && *o.NewAmountCents < 0 {
			return nil, nil, &domain.ErrValidation{
				Field:   fmt.Sprintf("overrides[%d].new_amount_cents", i),
				Message: "amount must not be negative",
			}
		}
	}

	snap, result, err := s.provider.SubmitBatchOverrides(ctx, scenarioID, req)
	if err != nil {
		s.metrics.IncrOverride("rejected")
		return nil, result, err
	}
	s.metrics.IncrOverride("applied")

	s.cache.Set(snapshotKey(scenarioID), snap)

	s.logger.Info("batch overrides applied",
		zap.String("scenario_id", scenarioID),
		zap.Int("count", result.UpdatedCount),
	)
	return snap, result, nil
}
