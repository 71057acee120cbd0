package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cashplanhq/cashplan-api-go/internal/domain"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/cache"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/observability"
	"github.com/cashplanhq/cashplan-api-go/internal/scenario"
	"github.com/cashplanhq/cashplan-api-go/internal/service"

	"go.uber.org/zap"
)

// --- Mocks ---

type mockProvider struct {
	snapshot *scenario.Snapshot
	result   *scenario.BatchResult
	err      error

	fetchCalls int
	lastMove   *domain.MoveTransactionRequest
	lastBatch  *domain.BatchOverrideRequest
}

func (m *mockProvider) FetchSnapshot(_ context.Context, _ string) (*scenario.Snapshot, error) {
	m.fetchCalls++
	return m.snapshot, m.err
}

func (m *mockProvider) UpdateTransaction(_ context.Context, _, _ string, _ *domain.UpdateTransactionRequest) (*scenario.Snapshot, error) {
	return m.snapshot, m.err
}

func (m *mockProvider) MoveTransaction(_ context.Context, _ string, req *domain.MoveTransactionRequest) (*scenario.Snapshot, error) {
	m.lastMove = req
	return m.snapshot, m.err
}

func (m *mockProvider) SubmitBatchOverrides(_ context.Context, _ string, req *domain.BatchOverrideRequest) (*scenario.Snapshot, *scenario.BatchResult, error) {
	m.lastBatch = req
	return m.snapshot, m.result, m.err
}

func newScenarioService(p *mockProvider) *service.ScenarioService {
	return service.NewScenarioService(
		p,
		cache.New[*scenario.Snapshot](5*time.Minute),
		observability.NewMetrics(),
		zap.NewNop(),
	)
}

func strPtr(s string) *string { return &s }
func i64Ptr(v int64) *int64   { return &v }

// --- Tests ---

func TestGetSnapshot_CachesResult(t *testing.T) {
	provider := &mockProvider{
		snapshot: &scenario.Snapshot{ScenarioID: "scn-1", StartingBalanceCents: 100000},
	}
	svc := newScenarioService(provider)

	first, err := svc.GetSnapshot(context.Background(), "scn-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, err := svc.GetSnapshot(context.Background(), "scn-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if provider.fetchCalls != 1 {
		t.Errorf("expected 1 provider fetch, got %d", provider.fetchCalls)
	}
	if first != second {
		t.Error("expected the cached snapshot on the second read")
	}
}

func TestGetSnapshot_ProviderError(t *testing.T) {
	provider := &mockProvider{
		err: &domain.ErrExternalService{Service: "supabase", Err: errors.New("boom")},
	}
	svc := newScenarioService(provider)

	_, err := svc.GetSnapshot(context.Background(), "scn-1")
	var extErr *domain.ErrExternalService
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}

func TestUpdateTransaction_Validation(t *testing.T) {
	svc := newScenarioService(&mockProvider{})

	tests := []struct {
		name string
		req  *domain.UpdateTransactionRequest
	}{
		{"empty body", &domain.UpdateTransactionRequest{}},
		{"negative amount", &domain.UpdateTransactionRequest{NewAmountCents: i64Ptr(-100)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateTransaction(context.Background(), "scn-1", "in-1", tt.req)
			var valErr *domain.ErrValidation
			if !errors.As(err, &valErr) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestUpdateTransaction_RefreshesCache(t *testing.T) {
	provider := &mockProvider{
		snapshot: &scenario.Snapshot{ScenarioID: "scn-1", StartingBalanceCents: 200000},
	}
	svc := newScenarioService(provider)

	updated, err := svc.UpdateTransaction(context.Background(), "scn-1", "in-1",
		&domain.UpdateTransactionRequest{NewAmountCents: i64Ptr(7500)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// The mutated snapshot must be served from cache without a refetch.
	cached, err := svc.GetSnapshot(context.Background(), "scn-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cached != updated {
		t.Error("expected the snapshot returned by the mutation to be cached")
	}
	if provider.fetchCalls != 0 {
		t.Errorf("expected no provider fetch after mutation, got %d", provider.fetchCalls)
	}
}

func TestMoveTransaction_Validation(t *testing.T) {
	svc := newScenarioService(&mockProvider{})

	tests := []struct {
		name string
		req  *domain.MoveTransactionRequest
	}{
		{"missing transaction id", &domain.MoveTransactionRequest{TargetDate: "2026-01-12"}},
		{"bad target date", &domain.MoveTransactionRequest{TransactionID: "in-1", TargetDate: "12/01/2026"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.MoveTransaction(context.Background(), "scn-1", tt.req)
			var valErr *domain.ErrValidation
			if !errors.As(err, &valErr) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestMoveTransaction_PassesRequestThrough(t *testing.T) {
	provider := &mockProvider{
		snapshot: &scenario.Snapshot{ScenarioID: "scn-1"},
	}
	svc := newScenarioService(provider)

	req := &domain.MoveTransactionRequest{TransactionID: "out-1", TargetDate: "2026-02-02"}
	if _, err := svc.MoveTransaction(context.Background(), "scn-1", req); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if provider.lastMove != req {
		t.Error("expected the move request to reach the provider unchanged")
	}
}

func TestSubmitBatchOverrides_Validation(t *testing.T) {
	svc := newScenarioService(&mockProvider{})

	tests := []struct {
		name      string
		req       *domain.BatchOverrideRequest
		wantField string
	}{
		{
			"empty batch",
			&domain.BatchOverrideRequest{},
			"overrides",
		},
		{
			"missing transaction id",
			&domain.BatchOverrideRequest{Overrides: []domain.OverrideItem{{NewAmountCents: i64Ptr(100)}}},
			"overrides[0].transaction_id",
		},
		{
			"bad date in second item",
			&domain.BatchOverrideRequest{Overrides: []domain.OverrideItem{
				{TransactionID: "in-1", NewAmountCents: i64Ptr(100)},
				{TransactionID: "in-2", NewDate: strPtr("not-a-date")},
			}},
			"overrides[1].new_date",
		},
		{
			"negative amount",
			&domain.BatchOverrideRequest{Overrides: []domain.OverrideItem{
				{TransactionID: "in-1", NewAmountCents: i64Ptr(-1)},
			}},
			"overrides[0].new_amount_cents",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.SubmitBatchOverrides(context.Background(), "scn-1", tt.req)
			var valErr *domain.ErrValidation
			if !errors.As(err, &valErr) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if valErr.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, valErr.Field)
			}
		})
	}
}

func TestSubmitBatchOverrides_ReturnsResult(t *testing.T) {
	provider := &mockProvider{
		snapshot: &scenario.Snapshot{ScenarioID: "scn-1"},
		result: &scenario.BatchResult{
			UpdatedCount: 2,
			Results: []scenario.OverrideResult{
				{TransactionID: "in-1", Applied: true},
				{TransactionID: "out-1", Applied: true},
			},
		},
	}
	svc := newScenarioService(provider)

	req := &domain.BatchOverrideRequest{Overrides: []domain.OverrideItem{
		{TransactionID: "in-1", NewAmountCents: i64Ptr(100)},
		{TransactionID: "out-1", NewDate: strPtr("2026-03-02")},
	}}
	_, result, err := svc.SubmitBatchOverrides(context.Background(), "scn-1", req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.UpdatedCount != 2 {
		t.Errorf("expected 2 updates, got %d", result.UpdatedCount)
	}
	if provider.lastBatch != req {
		t.Error("expected the batch request to reach the provider unchanged")
	}
}
