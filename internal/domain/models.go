// Package domain defines the core business entities for the cash plan
// API. These models are independent of external services and represent
// the canonical data structures used throughout the backend.
package domain

import "time"

// ============================================================
// Scenarios
// ============================================================

// Scenario is the metadata record for one cash-flow scenario.
type Scenario struct {
	ID                   string    `json:"id"`
	OwnerID              string    `json:"owner_id"`
	Name                 string    `json:"name"`
	Currency             string    `json:"currency"`
	StartingBalanceCents int64     `json:"starting_balance_cents"`
	WeekCount            int       `json:"week_count"`
	SourceImportID       string    `json:"source_import_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// CreateScenarioRequest is the body for POST /v1/scenarios.
type CreateScenarioRequest struct {
	Name                 string `json:"name"`
	Currency             string `json:"currency,omitempty"`
	StartingBalanceCents *int64 `json:"starting_balance_cents,omitempty"`
	ImportID             string `json:"import_id,omitempty"`
}

// UpdateScenarioRequest is the body for PATCH /v1/scenarios/{id}.
type UpdateScenarioRequest struct {
	Name                 string `json:"name,omitempty"`
	StartingBalanceCents *int64 `json:"starting_balance_cents,omitempty"`
}

// MoveTransactionRequest is the body for POST /v1/scenarios/{id}/moves.
type MoveTransactionRequest struct {
	TransactionID string `json:"transaction_id"`
	TargetDate    string `json:"target_date"` // YYYY-MM-DD
}

// UpdateTransactionRequest is the body for PUT /v1/scenarios/{id}/transactions/{txnId}.
type UpdateTransactionRequest struct {
	NewDate        *string `json:"new_date,omitempty"` // YYYY-MM-DD
	NewAmountCents *int64  `json:"new_amount_cents,omitempty"`
}

// OverrideItem is one entry in a batch override request.
type OverrideItem struct {
	TransactionID  string  `json:"transaction_id"`
	NewDate        *string `json:"new_date,omitempty"`
	NewAmountCents *int64  `json:"new_amount_cents,omitempty"`
}

// BatchOverrideRequest is the body for POST /v1/scenarios/{id}/overrides.
type BatchOverrideRequest struct {
	Overrides []OverrideItem `json:"overrides"`
}

// ============================================================
// CSV Imports
// ============================================================

// Import status lifecycle.
const (
	ImportStatusPending    = "pending"
	ImportStatusProcessing = "processing"
	ImportStatusReady      = "ready"
	ImportStatusFailed     = "failed"
)

// Import tracks one uploaded CSV file through processing.
type Import struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Filename     string     `json:"filename"`
	Status       string     `json:"status"`
	RowCount     int        `json:"row_count"`
	WeekCount    int        `json:"week_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// ImportRow is one canonical transaction parsed from a CSV line.
type ImportRow struct {
	ID           string `json:"id"`
	ImportID     string `json:"import_id"`
	LineNumber   int    `json:"line_number"`
	Direction    string `json:"direction"` // INFLOW, OUTFLOW
	AmountCents  int64  `json:"amount_cents"`
	DateDue      string `json:"date_due"` // YYYY-MM-DD
	Counterparty string `json:"counterparty,omitempty"`
	Description  string `json:"description,omitempty"`
}

// ColumnMapping names the CSV columns carrying each canonical field.
type ColumnMapping struct {
	Date         string `json:"date"`
	Amount       string `json:"amount"`
	Direction    string `json:"direction,omitempty"` // empty: sign of amount decides
	Counterparty string `json:"counterparty,omitempty"`
	Description  string `json:"description,omitempty"`
	DateLayout   string `json:"date_layout,omitempty"`   // Go layout, default 2006-01-02
	DecimalComma bool   `json:"decimal_comma,omitempty"` // "1.234,56" style amounts
}

// ============================================================
// Health
// ============================================================

// HealthStatus is the readiness report for the service.
type HealthStatus struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}
