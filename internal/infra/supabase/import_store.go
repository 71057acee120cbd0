package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cashplanhq/cashplan-api-go/internal/domain"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// ImportStore implementation — CSV import tracking via PostgREST
// ============================================================

func (c *Client) CreateImport(ctx context.Context, imp *domain.Import) (*domain.Import, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateImport")
	defer span.End()

	id := imp.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	data := map[string]any{
		"id":         id,
		"owner_id":   imp.OwnerID,
		"filename":   imp.Filename,
		"status":     domain.ImportStatusPending,
		"row_count":  0,
		"week_count": 0,
		"created_at": now.Format(time.RFC3339),
	}

	body, err := c.doPost(ctx, "imports", data)
	if err != nil {
		return nil, fmt.Errorf("create import: %w", err)
	}

	var rows []domain.Import
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode imports: %w", err)
	}
	if len(rows) == 0 {
		created := *imp
		created.ID = id
		created.Status = domain.ImportStatusPending
		created.CreatedAt = now
		return &created, nil
	}
	return &rows[0], nil
}

func (c *Client) GetImport(ctx context.Context, ownerID, importID string) (*domain.Import, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetImport")
	defer span.End()
	span.SetAttributes(attribute.String("import.id", importID))

	path := fmt.Sprintf("imports?id=eq.%s&owner_id=eq.%s&limit=1", importID, ownerID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if body == nil || string(body) == "[]" {
		return nil, &domain.ErrNotFound{Resource: "import", ID: importID}
	}

	var rows []domain.Import
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode imports: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "import", ID: importID}
	}
	return &rows[0], nil
}

func (c *Client) ListImports(ctx context.Context, ownerID string) ([]domain.Import, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListImports")
	defer span.End()

	path := fmt.Sprintf("imports?owner_id=eq.%s&order=created_at.desc", ownerID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if body == nil || string(body) == "[]" {
		return []domain.Import{}, nil
	}

	var rows []domain.Import
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode imports: %w", err)
	}
	return rows, nil
}

func (c *Client) UpdateImport(ctx context.Context, importID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateImport")
	defer span.End()
	span.SetAttributes(attribute.String("import.id", importID))

	path := fmt.Sprintf("imports?id=eq.%s", importID)
	return c.doPatch(ctx, path, updates)
}

func (c *Client) SaveImportRows(ctx context.Context, importID string, rows []domain.ImportRow) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveImportRows")
	defer span.End()
	span.SetAttributes(attribute.String("import.id", importID), attribute.Int("rows", len(rows)))

	if len(rows) == 0 {
		return nil
	}

	// PostgREST accepts a JSON array for bulk insert.
	payload := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}
		payload = append(payload, map[string]any{
			"id":           id,
			"import_id":    importID,
			"line_number":  r.LineNumber,
			"direction":    r.Direction,
			"amount_cents": r.AmountCents,
			"date_due":     r.DateDue,
			"counterparty": r.Counterparty,
			"description":  r.Description,
		})
	}

	_, err := c.doPost(ctx, "import_rows", payload)
	if err != nil {
		return fmt.Errorf("save import rows: %w", err)
	}

	updates := map[string]any{"row_count": len(rows)}
	return c.doPatch(ctx, fmt.Sprintf("imports?id=eq.%s", importID), updates)
}

func (c *Client) GetImportRows(ctx context.Context, importID string) ([]domain.ImportRow, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetImportRows")
	defer span.End()
	span.SetAttributes(attribute.String("import.id", importID))

	path := fmt.Sprintf("import_rows?import_id=eq.%s&order=line_number.asc", importID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if body == nil || string(body) == "[]" {
		return []domain.ImportRow{}, nil
	}

	var rows []domain.ImportRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode import_rows: %w", err)
	}
	return rows, nil
}
