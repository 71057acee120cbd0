package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cashplanhq/cashplan-api-go/internal/domain"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/observability"
	"github.com/cashplanhq/cashplan-api-go/internal/port"
	"github.com/cashplanhq/cashplan-api-go/internal/scenario"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var importTracer = otel.Tracer("service/import")

// maxImportRows bounds a single CSV upload.
const maxImportRows = 50000

// defaultDateLayout is assumed when the column mapping names none.
const defaultDateLayout = "2006-01-02"

// ImportService runs the CSV import pipeline: register the upload, parse
// it into canonical rows, persist them, and track the lifecycle status
// (pending -> processing -> ready | failed).
type ImportService struct {
	store   port.ImportStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewImportService creates the import service with all dependencies injected.
func NewImportService(store port.ImportStore, metrics *observability.Metrics, logger *zap.Logger) *ImportService {
	return &ImportService{
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

// CreateImport registers and processes one CSV upload. Parsing is
// all-or-nothing: any bad line fails the whole import, with the line
// number in the error message. The failed record stays visible in the
// import list so the owner can inspect what went wrong.
func (s *ImportService) CreateImport(ctx context.Context, ownerID, filename string, mapping domain.ColumnMapping, file io.Reader) (*domain.Import, error) {
	ctx, span := importTracer.Start(ctx, "ImportService.CreateImport")
	defer span.End()

	if ownerID == "" {
		return nil, &domain.ErrValidation{Field: "owner_id", Message: "required"}
	}
	if strings.TrimSpace(filename) == "" {
		return nil, &domain.ErrValidation{Field: "filename", Message: "required"}
	}
	if mapping.Date == "" || mapping.Amount == "" {
		return nil, &domain.ErrValidation{Field: "mapping", Message: "date and amount columns are required"}
	}

	imp, err := s.store.CreateImport(ctx, &domain.Import{
		OwnerID:  ownerID,
		Filename: filename,
		Status:   domain.ImportStatusPending,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("import.id", imp.ID))

	if err := s.store.UpdateImport(ctx, imp.ID, map[string]any{
		"status": domain.ImportStatusProcessing,
	}); err != nil {
		return nil, err
	}

	rows, parseErr := parseCSV(imp.ID, mapping, file)
	if parseErr == nil {
		parseErr = s.store.SaveImportRows(ctx, imp.ID, rows)
	}
	if parseErr != nil {
		return nil, s.failImport(ctx, imp.ID, parseErr)
	}

	weekCount := len(scenario.SummarizeWeeks(rowsToEntries(rows)))
	now := time.Now().UTC()
	if err := s.store.UpdateImport(ctx, imp.ID, map[string]any{
		"status":       domain.ImportStatusReady,
		"row_count":    len(rows),
		"week_count":   weekCount,
		"processed_at": now.Format(time.RFC3339),
	}); err != nil {
		return nil, err
	}

	s.metrics.AddImportRows(len(rows))
	s.logger.Info("import processed",
		zap.String("import_id", imp.ID),
		zap.String("owner_id", ownerID),
		zap.Int("rows", len(rows)),
		zap.Int("weeks", weekCount),
	)

	imp.Status = domain.ImportStatusReady
	imp.RowCount = len(rows)
	imp.WeekCount = weekCount
	imp.ProcessedAt = &now
	return imp, nil
}

// failImport marks the import failed and returns the domain error for
// the caller. The status patch is best-effort: the parse error is the
// one worth reporting.
func (s *ImportService) failImport(ctx context.Context, importID string, cause error) error {
	now := time.Now().UTC()
	if err := s.store.UpdateImport(ctx, importID, map[string]any{
		"status":        domain.ImportStatusFailed,
		"error_message": cause.Error(),
		"processed_at":  now.Format(time.RFC3339),
	}); err != nil {
		s.logger.Error("failed to mark import as failed",
			zap.String("import_id", importID),
			zap.Error(err),
		)
	}

	s.logger.Warn("import failed",
		zap.String("import_id", importID),
		zap.Error(cause),
	)
	return &domain.ErrImportFailed{ImportID: importID, Reason: cause.Error()}
}

// GetImport returns one import record, scoped to its owner.
func (s *ImportService) GetImport(ctx context.Context, ownerID, importID string) (*domain.Import, error) {
	ctx, span := importTracer.Start(ctx, "ImportService.GetImport")
	defer span.End()
	span.SetAttributes(attribute.String("import.id", importID))

	if importID == "" {
		return nil, &domain.ErrValidation{Field: "import_id", Message: "required"}
	}
	return s.store.GetImport(ctx, ownerID, importID)
}

// ListImports returns all imports owned by the user, newest first.
func (s *ImportService) ListImports(ctx context.Context, ownerID string) ([]domain.Import, error) {
	ctx, span := importTracer.Start(ctx, "ImportService.ListImports")
	defer span.End()

	return s.store.ListImports(ctx, ownerID)
}

// GetImportRows returns the parsed canonical rows of an import.
func (s *ImportService) GetImportRows(ctx context.Context, ownerID, importID string) ([]domain.ImportRow, error) {
	ctx, span := importTracer.Start(ctx, "ImportService.GetImportRows")
	defer span.End()
	span.SetAttributes(attribute.String("import.id", importID))

	// Ownership check; rows are keyed by import only.
	if _, err := s.store.GetImport(ctx, ownerID, importID); err != nil {
		return nil, err
	}
	return s.store.GetImportRows(ctx, importID)
}

// ============================================================
// CSV parsing
// ============================================================

// columnIndexes resolves the mapped column names against the header row.
type columnIndexes struct {
	date         int
	amount       int
	direction    int
	counterparty int
	description  int
}

func parseCSV(importID string, mapping domain.ColumnMapping, file io.Reader) ([]domain.ImportRow, error) {
	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols, err := resolveColumns(header, mapping)
	if err != nil {
		return nil, err
	}

	layout := mapping.DateLayout
	if layout == "" {
		layout = defaultDateLayout
	}

	rows := make([]domain.ImportRow, 0, 64)
	line := 1 // header was line 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rows) >= maxImportRows {
			return nil, fmt.Errorf("too many rows (limit %d)", maxImportRows)
		}

		row, err := parseRecord(importID, line, record, cols, layout, mapping.DecimalComma)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("no data rows after header")
	}
	return rows, nil
}

func resolveColumns(header []string, mapping domain.ColumnMapping) (columnIndexes, error) {
	find := func(name string) int {
		if name == "" {
			return -1
		}
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
		return -1
	}

	cols := columnIndexes{
		date:         find(mapping.Date),
		amount:       find(mapping.Amount),
		direction:    find(mapping.Direction),
		counterparty: find(mapping.Counterparty),
		description:  find(mapping.Description),
	}
	if cols.date < 0 {
		return cols, fmt.Errorf("date column %q not found in header", mapping.Date)
	}
	if cols.amount < 0 {
		return cols, fmt.Errorf("amount column %q not found in header", mapping.Amount)
	}
	if mapping.Direction != "" && cols.direction < 0 {
		return cols, fmt.Errorf("direction column %q not found in header", mapping.Direction)
	}
	return cols, nil
}

func parseRecord(importID string, line int, record []string, cols columnIndexes, layout string, decimalComma bool) (domain.ImportRow, error) {
	field := func(idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	t, err := time.Parse(layout, field(cols.date))
	if err != nil {
		return domain.ImportRow{}, fmt.Errorf("bad date %q", field(cols.date))
	}

	cents, err := parseAmountCents(field(cols.amount), decimalComma)
	if err != nil {
		return domain.ImportRow{}, err
	}

	direction, err := resolveDirection(field(cols.direction), cents)
	if err != nil {
		return domain.ImportRow{}, err
	}
	if cents < 0 {
		cents = -cents
	}
	if cents == 0 {
		return domain.ImportRow{}, fmt.Errorf("amount is zero")
	}

	return domain.ImportRow{
		ID:           uuid.NewString(),
		ImportID:     importID,
		LineNumber:   line,
		Direction:    string(direction),
		AmountCents:  cents,
		DateDue:      t.Format(defaultDateLayout),
		Counterparty: field(cols.counterparty),
		Description:  field(cols.description),
	}, nil
}

// parseAmountCents converts a decimal amount string into signed cents
// without going through float64. At most two decimal places are
// accepted; thousands separators are stripped.
func parseAmountCents(raw string, decimalComma bool) (int64, error) {
	val := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if val == "" {
		return 0, fmt.Errorf("amount is empty")
	}

	negative := false
	switch val[0] {
	case '-':
		negative = true
		val = val[1:]
	case '+':
		val = val[1:]
	}

	if decimalComma {
		// "1.234,56" -> "1234.56"
		val = strings.ReplaceAll(val, ".", "")
		val = strings.ReplaceAll(val, ",", ".")
	} else {
		val = strings.ReplaceAll(val, ",", "")
	}

	intPart := val
	fracPart := ""
	if i := strings.IndexByte(val, '.'); i >= 0 {
		intPart, fracPart = val[:i], val[i+1:]
	}
	if len(fracPart) > 2 {
		return 0, fmt.Errorf("bad amount %q: more than two decimal places", raw)
	}
	for len(fracPart) < 2 {
		fracPart += "0"
	}
	if intPart == "" {
		intPart = "0"
	}

	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad amount %q", raw)
	}
	frac, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad amount %q", raw)
	}

	cents := units*100 + frac
	if negative {
		cents = -cents
	}
	return cents, nil
}

// resolveDirection uses the direction column when mapped, otherwise the
// sign of the amount (negative means money going out).
func resolveDirection(value string, cents int64) (scenario.Direction, error) {
	if value == "" {
		if cents < 0 {
			return scenario.Outflow, nil
		}
		return scenario.Inflow, nil
	}

	switch strings.ToUpper(value) {
	case "INFLOW", "IN", "CREDIT", "CR", "+":
		return scenario.Inflow, nil
	case "OUTFLOW", "OUT", "DEBIT", "DB", "DR", "-":
		return scenario.Outflow, nil
	}
	return "", fmt.Errorf("bad direction %q", value)
}

func rowsToEntries(rows []domain.ImportRow) []scenario.Entry {
	entries := make([]scenario.Entry, 0, len(rows))
	for _, r := range rows {
		dir := scenario.Inflow
		if r.Direction == string(scenario.Outflow) {
			dir = scenario.Outflow
		}
		entries = append(entries, scenario.Entry{
			ID:           r.ID,
			Direction:    dir,
			AmountCents:  r.AmountCents,
			DateDue:      r.DateDue,
			Counterparty: r.Counterparty,
			Description:  r.Description,
		})
	}
	return entries
}
