package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cashplanhq/cashplan-api-go/internal/domain"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/observability"
	"github.com/cashplanhq/cashplan-api-go/internal/service"

	"go.uber.org/zap"
)

// --- Mocks ---

type mockImportStore struct {
	imports map[string]*domain.Import
	rows    map[string][]domain.ImportRow
	updates map[string][]map[string]any

	createErr error
	saveErr   error
}

func newMockImportStore() *mockImportStore {
	return &mockImportStore{
		imports: map[string]*domain.Import{},
		rows:    map[string][]domain.ImportRow{},
		updates: map[string][]map[string]any{},
	}
}

func (m *mockImportStore) CreateImport(_ context.Context, imp *domain.Import) (*domain.Import, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	created := *imp
	if created.ID == "" {
		created.ID = fmt.Sprintf("imp-%d", len(m.imports)+1)
	}
	m.imports[created.ID] = &created
	return &created, nil
}

func (m *mockImportStore) GetImport(_ context.Context, ownerID, importID string) (*domain.Import, error) {
	imp, ok := m.imports[importID]
	if !ok || imp.OwnerID != ownerID {
		return nil, &domain.ErrNotFound{Resource: "import", ID: importID}
	}
	return imp, nil
}

func (m *mockImportStore) ListImports(_ context.Context, ownerID string) ([]domain.Import, error) {
	var out []domain.Import
	for _, imp := range m.imports {
		if imp.OwnerID == ownerID {
			out = append(out, *imp)
		}
	}
	return out, nil
}

func (m *mockImportStore) UpdateImport(_ context.Context, importID string, updates map[string]any) error {
	m.updates[importID] = append(m.updates[importID], updates)
	if imp, ok := m.imports[importID]; ok {
		if status, ok := updates["status"].(string); ok {
			imp.Status = status
		}
		if msg, ok := updates["error_message"].(string); ok {
			imp.ErrorMessage = msg
		}
	}
	return nil
}

func (m *mockImportStore) SaveImportRows(_ context.Context, importID string, rows []domain.ImportRow) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.rows[importID] = rows
	return nil
}

func (m *mockImportStore) GetImportRows(_ context.Context, importID string) ([]domain.ImportRow, error) {
	return m.rows[importID], nil
}

func newImportService(store *mockImportStore) *service.ImportService {
	return service.NewImportService(store, observability.NewMetrics(), zap.NewNop())
}

func defaultMapping() domain.ColumnMapping {
	return domain.ColumnMapping{
		Date:         "date",
		Amount:       "amount",
		Direction:    "direction",
		Counterparty: "counterparty",
		Description:  "description",
	}
}

// --- Tests ---

func TestCreateImport_Success(t *testing.T) {
	csvData := strings.Join([]string{
		"date,amount,direction,counterparty,description",
		"2026-01-05,500.00,inflow,Acme,Invoice 12",
		"2026-01-07,120.50,outflow,Utility Co,Power",
		"2026-01-12,80,OUT,Cafe,",
	}, "\n")

	store := newMockImportStore()
	svc := newImportService(store)

	imp, err := svc.CreateImport(context.Background(), "user-1", "jan.csv", defaultMapping(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if imp.Status != domain.ImportStatusReady {
		t.Errorf("expected status ready, got %q", imp.Status)
	}
	if imp.RowCount != 3 {
		t.Errorf("expected 3 rows, got %d", imp.RowCount)
	}
	// 2026-01-05 and 2026-01-07 share a week; 2026-01-12 starts the next.
	if imp.WeekCount != 2 {
		t.Errorf("expected 2 weeks, got %d", imp.WeekCount)
	}
	if imp.ProcessedAt == nil {
		t.Error("expected processed_at to be set")
	}

	rows := store.rows[imp.ID]
	if len(rows) != 3 {
		t.Fatalf("expected 3 persisted rows, got %d", len(rows))
	}
	if rows[0].AmountCents != 50000 || rows[0].Direction != "INFLOW" {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
	if rows[1].AmountCents != 12050 || rows[1].Direction != "OUTFLOW" {
		t.Errorf("unexpected second row: %+v", rows[1])
	}
	if rows[2].AmountCents != 8000 || rows[2].LineNumber != 4 {
		t.Errorf("unexpected third row: %+v", rows[2])
	}
	if rows[0].DateDue != "2026-01-05" {
		t.Errorf("expected normalized date, got %q", rows[0].DateDue)
	}
}

func TestCreateImport_SignDecidesDirection(t *testing.T) {
	csvData := strings.Join([]string{
		"date,amount",
		"2026-01-05,250.00",
		"2026-01-06,-99.99",
	}, "\n")

	store := newMockImportStore()
	svc := newImportService(store)

	mapping := domain.ColumnMapping{Date: "date", Amount: "amount"}
	imp, err := svc.CreateImport(context.Background(), "user-1", "signed.csv", mapping, strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	rows := store.rows[imp.ID]
	if rows[0].Direction != "INFLOW" || rows[0].AmountCents != 25000 {
		t.Errorf("unexpected inflow row: %+v", rows[0])
	}
	if rows[1].Direction != "OUTFLOW" || rows[1].AmountCents != 9999 {
		t.Errorf("expected negative amount to become an outflow, got %+v", rows[1])
	}
}

func TestCreateImport_DecimalCommaAndLayout(t *testing.T) {
	csvData := strings.Join([]string{
		"date,amount",
		"05/01/2026,\"1.234,56\"",
	}, "\n")

	store := newMockImportStore()
	svc := newImportService(store)

	mapping := domain.ColumnMapping{
		Date:         "date",
		Amount:       "amount",
		DateLayout:   "02/01/2006",
		DecimalComma: true,
	}
	imp, err := svc.CreateImport(context.Background(), "user-1", "eu.csv", mapping, strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	rows := store.rows[imp.ID]
	if rows[0].AmountCents != 123456 {
		t.Errorf("expected 123456 cents, got %d", rows[0].AmountCents)
	}
	if rows[0].DateDue != "2026-01-05" {
		t.Errorf("expected date normalized to 2026-01-05, got %q", rows[0].DateDue)
	}
}

func TestCreateImport_BadRowFailsWholeImport(t *testing.T) {
	csvData := strings.Join([]string{
		"date,amount",
		"2026-01-05,100.00",
		"2026-01-06,not-a-number",
	}, "\n")

	store := newMockImportStore()
	svc := newImportService(store)

	mapping := domain.ColumnMapping{Date: "date", Amount: "amount"}
	_, err := svc.CreateImport(context.Background(), "user-1", "bad.csv", mapping, strings.NewReader(csvData))

	var impErr *domain.ErrImportFailed
	if !errors.As(err, &impErr) {
		t.Fatalf("expected ErrImportFailed, got %v", err)
	}
	if !strings.Contains(impErr.Reason, "line 3") {
		t.Errorf("expected the failing line number in the reason, got %q", impErr.Reason)
	}

	stored := store.imports[impErr.ImportID]
	if stored.Status != domain.ImportStatusFailed {
		t.Errorf("expected stored status failed, got %q", stored.Status)
	}
	if len(store.rows[impErr.ImportID]) != 0 {
		t.Error("expected no rows persisted for a failed import")
	}
}

func TestCreateImport_MissingMappedColumn(t *testing.T) {
	csvData := "when,how_much\n2026-01-05,100.00\n"

	store := newMockImportStore()
	svc := newImportService(store)

	mapping := domain.ColumnMapping{Date: "date", Amount: "amount"}
	_, err := svc.CreateImport(context.Background(), "user-1", "cols.csv", mapping, strings.NewReader(csvData))

	var impErr *domain.ErrImportFailed
	if !errors.As(err, &impErr) {
		t.Fatalf("expected ErrImportFailed, got %v", err)
	}
	if !strings.Contains(impErr.Reason, `"date"`) {
		t.Errorf("expected missing column name in reason, got %q", impErr.Reason)
	}
}

func TestCreateImport_EmptyFile(t *testing.T) {
	store := newMockImportStore()
	svc := newImportService(store)

	mapping := domain.ColumnMapping{Date: "date", Amount: "amount"}
	_, err := svc.CreateImport(context.Background(), "user-1", "empty.csv", mapping, strings.NewReader(""))

	var impErr *domain.ErrImportFailed
	if !errors.As(err, &impErr) {
		t.Fatalf("expected ErrImportFailed, got %v", err)
	}
}

func TestCreateImport_RequiresMapping(t *testing.T) {
	store := newMockImportStore()
	svc := newImportService(store)

	_, err := svc.CreateImport(context.Background(), "user-1", "x.csv", domain.ColumnMapping{}, strings.NewReader("a,b\n"))
	var valErr *domain.ErrValidation
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(store.imports) != 0 {
		t.Error("expected no import record for an invalid request")
	}
}

func TestGetImportRows_ChecksOwnership(t *testing.T) {
	store := newMockImportStore()
	store.imports["imp-1"] = &domain.Import{ID: "imp-1", OwnerID: "user-1", Status: domain.ImportStatusReady}
	store.rows["imp-1"] = []domain.ImportRow{{ID: "row-1", ImportID: "imp-1"}}
	svc := newImportService(store)

	if _, err := svc.GetImportRows(context.Background(), "user-1", "imp-1"); err != nil {
		t.Fatalf("expected no error for the owner, got %v", err)
	}

	_, err := svc.GetImportRows(context.Background(), "user-2", "imp-1")
	var nfErr *domain.ErrNotFound
	if !errors.As(err, &nfErr) {
		t.Fatalf("expected ErrNotFound for another user, got %v", err)
	}
}
