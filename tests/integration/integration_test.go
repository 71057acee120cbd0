package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cashplanhq/cashplan-api-go/internal/domain"
	"github.com/cashplanhq/cashplan-api-go/internal/handler"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/cache"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/local"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/observability"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/remote"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/resilience"
	"github.com/cashplanhq/cashplan-api-go/internal/scenario"
	"github.com/cashplanhq/cashplan-api-go/internal/service"

	"go.uber.org/zap"
)

const seedJSON = `{
  "scenarios": [
    {
      "id": "scn-1",
      "starting_balance_cents": 100000,
      "weeks": [
        {
          "week_index": 0,
          "label": "Initial Balance",
          "inflow_cents": 100000,
          "top_inflows": [
            {"id": "ib-1", "amount_cents": 100000, "description": "Initial Balance"}
          ]
        },
        {
          "week_index": 1,
          "label": "Week of Jan 5, 2026",
          "week_start_date": "2026-01-05",
          "inflow_cents": 50000,
          "outflow_cents": 20000,
          "top_inflows": [
            {"id": "in-1", "amount_cents": 50000, "date_due": "2026-01-05", "counterparty": "Acme"}
          ],
          "top_outflows": [
            {"id": "out-1", "amount_cents": 20000, "date_due": "2026-01-07", "counterparty": "Utility"}
          ]
        }
      ]
    }
  ]
}`

type snapshotView struct {
	ScenarioID     string                  `json:"scenarioId"`
	Weeks          []scenario.Week         `json:"weeks"`
	RunningBalance []scenario.BalancePoint `json:"runningBalance"`
}

func newLocalRouter(t *testing.T) http.Handler {
	t.Helper()

	seedPath := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(seedPath, []byte(seedJSON), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	store := local.NewStore(seedPath, zap.NewNop())
	if err := store.Load(); err != nil {
		t.Fatalf("load store: %v", err)
	}

	metrics := observability.NewMetrics()
	scenarioSvc := service.NewScenarioService(
		local.NewProvider(store, zap.NewNop()),
		cache.New[*scenario.Snapshot](time.Minute),
		metrics,
		zap.NewNop(),
	)
	return handler.NewRouter(scenarioSvc, nil, nil, nil, metrics, zap.NewNop())
}

func getSnapshot(t *testing.T, router http.Handler) snapshotView {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/v1/scenarios/scn-1/snapshot", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var view snapshotView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return view
}

func lastBalance(t *testing.T, view snapshotView) float64 {
	t.Helper()
	if len(view.RunningBalance) == 0 {
		t.Fatal("expected running balance points")
	}
	return view.RunningBalance[len(view.RunningBalance)-1].Balance
}

// TestIntegration_LocalOverrideFlow drives the full HTTP flow against the
// seed-file provider: read a snapshot, override an amount, move a
// transaction, and watch the running balance follow.
func TestIntegration_LocalOverrideFlow(t *testing.T) {
	router := newLocalRouter(t)

	before := getSnapshot(t, router)
	if got := lastBalance(t, before); got != 1300.00 {
		t.Fatalf("expected closing balance 1300.00, got %.2f", got)
	}

	// Raise the inflow by 100.00.
	newAmount := int64(60000)
	body, _ := json.Marshal(domain.BatchOverrideRequest{
		Overrides: []domain.OverrideItem{{TransactionID: "in-1", NewAmountCents: &newAmount}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/scenarios/scn-1/overrides", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("overrides: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	after := getSnapshot(t, router)
	if got := lastBalance(t, after); got != 1400.00 {
		t.Fatalf("expected closing balance 1400.00 after override, got %.2f", got)
	}

	// Move the outflow to the inflow's date; closing balance is unchanged.
	body, _ = json.Marshal(domain.MoveTransactionRequest{TransactionID: "out-1", TargetDate: "2026-01-05"})
	req = httptest.NewRequest(http.MethodPost, "/v1/scenarios/scn-1/moves", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("move: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	moved := getSnapshot(t, router)
	if got := lastBalance(t, moved); got != 1400.00 {
		t.Fatalf("expected closing balance 1400.00 after move, got %.2f", got)
	}
	if len(moved.RunningBalance) != 1 {
		t.Errorf("expected a single balance point after merging dates, got %d", len(moved.RunningBalance))
	}
}

// TestIntegration_RemoteProviderFlow serves scenario resources from a mock
// HTTP API and reads a snapshot through the remote provider.
func TestIntegration_RemoteProviderFlow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /scenarios/scn-9", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":                     "scn-9",
			"starting_balance_cents": 50000,
		})
	})
	mux.HandleFunc("GET /scenarios/scn-9/weeks", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]scenario.WeekRaw{
			{
				WeekIndex:   1,
				Label:       "Week of Feb 2, 2026",
				StartDate:   "2026-02-02",
				InflowCents: 10000,
				TopInflows: []scenario.RawItem{
					{ID: "in-9", AmountCents: 10000, DateDue: "2026-02-03"},
				},
			},
		})
	})
	mux.HandleFunc("GET /scenarios/scn-9/balance", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]scenario.BalancePoint{})
	})
	upstream := httptest.NewServer(mux)
	defer upstream.Close()

	metrics := observability.NewMetrics()
	cb := resilience.NewCircuitBreaker("integration")
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond}
	httpClient := &http.Client{Timeout: 5 * time.Second}

	scenarioSvc := service.NewScenarioService(
		remote.NewProvider(httpClient, upstream.URL, "anon-key", cb, cfg, zap.NewNop()),
		cache.New[*scenario.Snapshot](time.Minute),
		metrics,
		zap.NewNop(),
	)
	router := handler.NewRouter(scenarioSvc, nil, nil, nil, metrics, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/scenarios/scn-9/snapshot", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var view snapshotView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if view.ScenarioID != "scn-9" {
		t.Errorf("expected scn-9, got %q", view.ScenarioID)
	}
	if len(view.Weeks) != 1 {
		t.Fatalf("expected 1 week, got %d", len(view.Weeks))
	}
	// Balance was empty upstream, so it is recomputed: 500.00 + 100.00.
	if got := lastBalance(t, view); got != 600.00 {
		t.Errorf("expected recomputed balance 600.00, got %.2f", got)
	}
}
