package local

import (
	"context"
	"errors"

	"github.com/cashplanhq/cashplan-api-go/internal/domain"
	"github.com/cashplanhq/cashplan-api-go/internal/scenario"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("local")

// Provider serves snapshots from the in-memory store and applies
// mutations through the engine.
type Provider struct {
	store  *Store
	logger *zap.Logger
}

// NewProvider creates a local provider over a loaded store.
func NewProvider(store *Store, logger *zap.Logger) *Provider {
	return &Provider{store: store, logger: logger}
}

// FetchSnapshot returns the current snapshot. An unknown scenario id
// yields an empty snapshot rather than an error so a fresh environment
// always renders.
func (p *Provider) FetchSnapshot(ctx context.Context, scenarioID string) (*scenario.Snapshot, error) {
	_, span := tracer.Start(ctx, "Local.FetchSnapshot")
	defer span.End()
	span.SetAttributes(attribute.String("scenario.id", scenarioID))

	snap, ok := p.store.Get(scenarioID)
	if !ok {
		snap = scenario.Snapshot{
			ScenarioID:           scenarioID,
			StartingBalanceCents: scenario.DefaultStartingBalanceCents,
			Weeks:                []scenario.Week{},
			Balance:              []scenario.BalancePoint{},
		}
	}
	return &snap, nil
}

// UpdateTransaction overwrites a transaction's amount and/or date,
// recomputes the running balance, and persists the result.
func (p *Provider) UpdateTransaction(ctx context.Context, scenarioID, transactionID string, req *domain.UpdateTransactionRequest) (*scenario.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Local.UpdateTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("scenario.id", scenarioID),
		attribute.String("transaction.id", transactionID),
	)

	snap, ok := p.store.Get(scenarioID)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "scenario", ID: scenarioID}
	}

	next, err := scenario.ApplyOverride(snap, scenario.Override{
		TransactionID:  transactionID,
		NewDate:        req.NewDate,
		NewAmountCents: req.NewAmountCents,
	})
	if err != nil {
		return nil, p.mapEngineError(err)
	}

	if err := p.store.Put(next); err != nil {
		p.logger.Error("local: persist failed", zap.String("scenario_id", scenarioID), zap.Error(err))
		return nil, err
	}
	return &next, nil
}

// MoveTransaction relocates a transaction to the week containing the
// target date.
func (p *Provider) MoveTransaction(ctx context.Context, scenarioID string, req *domain.MoveTransactionRequest) (*scenario.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Local.MoveTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("scenario.id", scenarioID),
		attribute.String("transaction.id", req.TransactionID),
	)

	snap, ok := p.store.Get(scenarioID)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "scenario", ID: scenarioID}
	}

	next, err := scenario.MoveTransaction(snap, req.TransactionID, req.TargetDate)
	if err != nil {
		return nil, p.mapEngineError(err)
	}

	if err := p.store.Put(next); err != nil {
		p.logger.Error("local: persist failed", zap.String("scenario_id", scenarioID), zap.Error(err))
		return nil, err
	}
	return &next, nil
}

// SubmitBatchOverrides applies the batch atomically.
func (p *Provider) SubmitBatchOverrides(ctx context.Context, scenarioID string, req *domain.BatchOverrideRequest) (*scenario.Snapshot, *scenario.BatchResult, error) {
	ctx, span := tracer.Start(ctx, "Local.SubmitBatchOverrides")
	defer span.End()
	span.SetAttributes(
		attribute.String("scenario.id", scenarioID),
		attribute.Int("overrides", len(req.Overrides)),
	)

	snap, ok := p.store.Get(scenarioID)
	if !ok {
		return nil, nil, &domain.ErrNotFound{Resource: "scenario", ID: scenarioID}
	}

	overrides := make([]scenario.Override, 0, len(req.Overrides))
	for _, o := range req.Overrides {
		overrides = append(overrides, scenario.Override{
			TransactionID:  o.TransactionID,
			NewDate:        o.NewDate,
			NewAmountCents: o.NewAmountCents,
		})
	}

	next, result, err := scenario.ApplyOverrides(snap, overrides)
	if err != nil {
		return nil, result, p.mapEngineError(err)
	}

	if err := p.store.Put(next); err != nil {
		p.logger.Error("local: persist failed", zap.String("scenario_id", scenarioID), zap.Error(err))
		return nil, nil, err
	}
	return &next, result, nil
}

// mapEngineError translates engine errors into the shared domain error
// taxonomy so both providers surface the same types.
func (p *Provider) mapEngineError(err error) error {
	var immutable *scenario.ErrImmutableTransaction
	if errors.As(err, &immutable) {
		return &domain.ErrInvalidOperation{Operation: "move", Reason: immutable.Error()}
	}
	var notFound *scenario.ErrTransactionNotFound
	if errors.As(err, &notFound) {
		return &domain.ErrNotFound{Resource: "transaction", ID: notFound.TransactionID}
	}
	var badDate *scenario.ErrUnknownTargetDate
	if errors.As(err, &badDate) {
		return &domain.ErrValidation{Field: "target_date", Message: badDate.Error()}
	}
	return err
}
