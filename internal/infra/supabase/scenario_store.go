package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cashplanhq/cashplan-api-go/internal/domain"
	"github.com/cashplanhq/cashplan-api-go/internal/scenario"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// ScenarioStore implementation — scenario CRUD via PostgREST
// ============================================================

func (c *Client) CreateScenario(ctx context.Context, s *domain.Scenario) (*domain.Scenario, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateScenario")
	defer span.End()

	id := s.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	data := map[string]any{
		"id":                     id,
		"owner_id":               s.OwnerID,
		"name":                   s.Name,
		"currency":               s.Currency,
		"starting_balance_cents": s.StartingBalanceCents,
		"week_count":             s.WeekCount,
		"created_at":             now.Format(time.RFC3339),
		"updated_at":             now.Format(time.RFC3339),
	}
	if s.SourceImportID != "" {
		data["source_import_id"] = s.SourceImportID
	}

	body, err := c.doPost(ctx, "scenarios", data)
	if err != nil {
		return nil, fmt.Errorf("create scenario: %w", err)
	}

	var rows []domain.Scenario
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}
	if len(rows) == 0 {
		created := *s
		created.ID = id
		created.CreatedAt = now
		created.UpdatedAt = now
		return &created, nil
	}
	return &rows[0], nil
}

func (c *Client) GetScenario(ctx context.Context, ownerID, scenarioID string) (*domain.Scenario, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetScenario")
	defer span.End()
	span.SetAttributes(attribute.String("scenario.id", scenarioID))

	path := fmt.Sprintf("scenarios?id=eq.%s&owner_id=eq.%s&limit=1", scenarioID, ownerID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if body == nil || string(body) == "[]" {
		return nil, &domain.ErrNotFound{Resource: "scenario", ID: scenarioID}
	}

	var rows []domain.Scenario
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "scenario", ID: scenarioID}
	}
	return &rows[0], nil
}

func (c *Client) ListScenarios(ctx context.Context, ownerID string) ([]domain.Scenario, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListScenarios")
	defer span.End()

	path := fmt.Sprintf("scenarios?owner_id=eq.%s&order=updated_at.desc", ownerID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if body == nil || string(body) == "[]" {
		return []domain.Scenario{}, nil
	}

	var rows []domain.Scenario
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}
	return rows, nil
}

func (c *Client) UpdateScenario(ctx context.Context, scenarioID string, updates map[string]any) (*domain.Scenario, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateScenario")
	defer span.End()
	span.SetAttributes(attribute.String("scenario.id", scenarioID))

	updates["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	path := fmt.Sprintf("scenarios?id=eq.%s", scenarioID)
	if err := c.doPatch(ctx, path, updates); err != nil {
		return nil, err
	}

	// Re-fetch the updated record
	fetchPath := fmt.Sprintf("scenarios?id=eq.%s&limit=1", scenarioID)
	body, err := c.doRequest(ctx, http.MethodGet, fetchPath)
	if err != nil {
		return nil, err
	}

	var rows []domain.Scenario
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "scenario", ID: scenarioID}
	}
	return &rows[0], nil
}

func (c *Client) SaveScenarioWeeks(ctx context.Context, scenarioID string, weeks []scenario.WeekRaw) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveScenarioWeeks")
	defer span.End()
	span.SetAttributes(attribute.String("scenario.id", scenarioID), attribute.Int("weeks", len(weeks)))

	// Replace, not merge: a re-import rewrites the whole aggregate set.
	if err := c.doDelete(ctx, fmt.Sprintf("scenario_weeks?scenario_id=eq.%s", scenarioID)); err != nil {
		return err
	}
	if len(weeks) == 0 {
		return nil
	}

	payload := make([]map[string]any, 0, len(weeks))
	for _, w := range weeks {
		payload = append(payload, map[string]any{
			"id":                  uuid.New().String(),
			"scenario_id":         scenarioID,
			"week_index":          w.WeekIndex,
			"label":               w.Label,
			"week_start_date":     w.StartDate,
			"inflow_cents":        w.InflowCents,
			"outflow_cents":       w.OutflowCents,
			"top_inflows":         w.TopInflows,
			"top_outflows":        w.TopOutflows,
			"other_inflow_cents":  w.OtherInflowCents,
			"other_outflow_cents": w.OtherOutflowCents,
		})
	}

	_, err := c.doPost(ctx, "scenario_weeks", payload)
	if err != nil {
		return fmt.Errorf("save scenario weeks: %w", err)
	}
	return nil
}

func (c *Client) DeleteScenario(ctx context.Context, ownerID, scenarioID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteScenario")
	defer span.End()
	span.SetAttributes(attribute.String("scenario.id", scenarioID))

	// Dependent week and balance rows go first, then the scenario itself.
	if err := c.doDelete(ctx, fmt.Sprintf("scenario_weeks?scenario_id=eq.%s", scenarioID)); err != nil {
		return err
	}
	if err := c.doDelete(ctx, fmt.Sprintf("scenario_balance_points?scenario_id=eq.%s", scenarioID)); err != nil {
		return err
	}
	return c.doDelete(ctx, fmt.Sprintf("scenarios?id=eq.%s&owner_id=eq.%s", scenarioID, ownerID))
}
