package service

import (
	"context"
	"strings"
	"time"

	"github.com/cashplanhq/cashplan-api-go/internal/domain"
	"github.com/cashplanhq/cashplan-api-go/internal/port"
	"github.com/cashplanhq/cashplan-api-go/internal/scenario"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var catalogTracer = otel.Tracer("service/catalog")

// DefaultCurrency is used when a create request does not name one.
const DefaultCurrency = "EUR"

// CatalogService manages scenario metadata: creating scenarios (blank or
// seeded from a processed CSV import), listing, renaming and deleting them.
// Snapshot reads and mutations live on ScenarioService.
type CatalogService struct {
	store   port.ScenarioStore
	imports port.ImportStore
	cache   port.Cache[*scenario.Snapshot]
	logger  *zap.Logger
}

// NewCatalogService creates the catalog service with all dependencies
// injected. The snapshot cache is shared with ScenarioService so catalog
// mutations can invalidate cached snapshots.
func NewCatalogService(store port.ScenarioStore, imports port.ImportStore, cache port.Cache[*scenario.Snapshot], logger *zap.Logger) *CatalogService {
	return &CatalogService{
		store:   store,
		imports: imports,
		cache:   cache,
		logger:  logger,
	}
}

// CreateScenario creates a new scenario for the owner. When the request
// names an import, the import must be ready and its rows are summarized
// into the scenario's weekly buckets.
func (s *CatalogService) CreateScenario(ctx context.Context, ownerID string, req *domain.CreateScenarioRequest) (*domain.Scenario, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.CreateScenario")
	defer span.End()

	if ownerID == "" {
		return nil, &domain.ErrValidation{Field: "owner_id", Message: "required"}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "name is required"}
	}
	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	var startingBalance int64 = scenario.DefaultStartingBalanceCents
	if req.StartingBalanceCents != nil {
		startingBalance = *req.StartingBalanceCents
	}

	weeks := []scenario.WeekRaw{scenario.InitialWeekRaw(startingBalance)}
	if req.ImportID != "" {
		imported, err := s.weeksFromImport(ctx, ownerID, req.ImportID, startingBalance)
		if err != nil {
			return nil, err
		}
		weeks = imported
	}

	now := time.Now().UTC()
	scn := &domain.Scenario{
		ID:                   uuid.NewString(),
		OwnerID:              ownerID,
		Name:                 name,
		Currency:             currency,
		StartingBalanceCents: startingBalance,
		WeekCount:            len(weeks),
		SourceImportID:       req.ImportID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	span.SetAttributes(attribute.String("scenario.id", scn.ID))

	created, err := s.store.CreateScenario(ctx, scn)
	if err != nil {
		s.logger.Error("failed to create scenario",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.store.SaveScenarioWeeks(ctx, created.ID, weeks); err != nil {
		s.logger.Error("failed to save scenario weeks",
			zap.String("scenario_id", created.ID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("scenario created",
		zap.String("scenario_id", created.ID),
		zap.String("owner_id", ownerID),
		zap.Int("week_count", len(weeks)),
	)
	return created, nil
}

// weeksFromImport loads the rows of a ready import and summarizes them
// into weekly buckets, with the initial-balance week prepended.
func (s *CatalogService) weeksFromImport(ctx context.Context, ownerID, importID string, startingBalance int64) ([]scenario.WeekRaw, error) {
	imp, err := s.imports.GetImport(ctx, ownerID, importID)
	if err != nil {
		return nil, err
	}
	if imp.Status != domain.ImportStatusReady {
		return nil, &domain.ErrInvalidOperation{
			Operation: "create_scenario",
			Reason:    "import is not ready (status: " + imp.Status + ")",
		}
	}

	rows, err := s.imports.GetImportRows(ctx, importID)
	if err != nil {
		return nil, err
	}

	weeks := []scenario.WeekRaw{scenario.InitialWeekRaw(startingBalance)}
	return append(weeks, scenario.SummarizeWeeks(rowsToEntries(rows))...), nil
}

// GetScenario returns one scenario's metadata, scoped to its owner.
func (s *CatalogService) GetScenario(ctx context.Context, ownerID, scenarioID string) (*domain.Scenario, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.GetScenario")
	defer span.End()
	span.SetAttributes(attribute.String("scenario.id", scenarioID))

	if scenarioID == "" {
		return nil, &domain.ErrValidation{Field: "scenario_id", Message: "required"}
	}
	return s.store.GetScenario(ctx, ownerID, scenarioID)
}

// ListScenarios returns all scenarios owned by the user.
func (s *CatalogService) ListScenarios(ctx context.Context, ownerID string) ([]domain.Scenario, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.ListScenarios")
	defer span.End()

	return s.store.ListScenarios(ctx, ownerID)
}

// UpdateScenario renames a scenario and/or changes its starting balance.
func (s *CatalogService) UpdateScenario(ctx context.Context, ownerID, scenarioID string, req *domain.UpdateScenarioRequest) (*domain.Scenario, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.UpdateScenario")
	defer span.End()
	span.SetAttributes(attribute.String("scenario.id", scenarioID))

	// Ownership check before the patch: the store patches by ID only.
	if _, err := s.store.GetScenario(ctx, ownerID, scenarioID); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if name := strings.TrimSpace(req.Name); name != "" {
		updates["name"] = name
	}
	if req.StartingBalanceCents != nil {
		updates["starting_balance_cents"] = *req.StartingBalanceCents
	}
	if len(updates) == 0 {
		return nil, &domain.ErrValidation{Field: "body", Message: "nothing to update"}
	}
	updates["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	updated, err := s.store.UpdateScenario(ctx, scenarioID, updates)
	if err != nil {
		s.logger.Error("failed to update scenario",
			zap.String("scenario_id", scenarioID),
			zap.Error(err),
		)
		return nil, err
	}

	// The starting balance feeds the running balance, so any cached
	// snapshot is stale now.
	s.cache.Delete(snapshotKey(scenarioID))

	s.logger.Info("scenario updated", zap.String("scenario_id", scenarioID))
	return updated, nil
}

// DeleteScenario removes a scenario and its stored weeks and balance points.
func (s *CatalogService) DeleteScenario(ctx context.Context, ownerID, scenarioID string) error {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.DeleteScenario")
	defer span.End()
	span.SetAttributes(attribute.String("scenario.id", scenarioID))

	if scenarioID == "" {
		return &domain.ErrValidation{Field: "scenario_id", Message: "required"}
	}

	if err := s.store.DeleteScenario(ctx, ownerID, scenarioID); err != nil {
		s.logger.Error("failed to delete scenario",
			zap.String("scenario_id", scenarioID),
			zap.Error(err),
		)
		return err
	}

	s.cache.Delete(snapshotKey(scenarioID))

	s.logger.Info("scenario deleted",
		zap.String("scenario_id", scenarioID),
		zap.String("owner_id", ownerID),
	)
	return nil
}
