// Package scenario implements the cash-flow scenario engine: weekly
// aggregate construction, running-balance recomputation and the
// override/move logic used when a user reschedules or edits a
// transaction. All functions are pure and copy-on-write — a snapshot is
// an immutable value, every mutation produces a new one.
package scenario

// Direction of a cash movement.
type Direction string

const (
	Inflow  Direction = "INFLOW"
	Outflow Direction = "OUTFLOW"
)

// Transaction kinds. A "transaction" is a real imported row; an "other"
// entry is the synthetic bucket summarizing everything outside the top 5.
const (
	KindTransaction = "transaction"
	KindOther       = "other"
)

// DefaultStartingBalanceCents is used when a scenario carries no explicit
// starting balance.
const DefaultStartingBalanceCents int64 = 100000

// Transaction is the display view of a single cash movement inside a week.
// AmountCents is always non-negative; Direction determines the sign when
// applied to the balance.
type Transaction struct {
	ID               string    `json:"id"`
	Kind             string    `json:"kind"`
	Direction        Direction `json:"direction"`
	AmountCents      int64     `json:"amount_cents"`
	DateDue          string    `json:"date_due"`
	Counterparty     string    `json:"counterparty,omitempty"`
	Description      string    `json:"description,omitempty"`
	IsInitialBalance bool      `json:"is_initial_balance"`
}

// Week is one weekly aggregate: at most 5 top inflows plus an inflow
// "other" bucket, and symmetrically for outflows. WeekIndex is unique per
// snapshot and defines chronological order; StartDate is empty only for
// the initial-balance pseudo-week (index 0).
type Week struct {
	WeekIndex    int           `json:"week_index"`
	Label        string        `json:"label"`
	StartDate    string        `json:"week_start_date,omitempty"`
	InflowCents  int64         `json:"inflow_cents"`
	OutflowCents int64         `json:"outflow_cents"`
	Transactions []Transaction `json:"transactions"`
}

// BalancePoint is the account balance, in major currency units, as of a
// date after all of that date's transactions were applied.
type BalancePoint struct {
	Date    string  `json:"date"`
	Balance float64 `json:"balance"`
}

// Snapshot is the aggregate root for one editing session: the weeks of a
// scenario plus the running balance derived from them.
type Snapshot struct {
	ScenarioID           string         `json:"scenario_id"`
	StartingBalanceCents int64          `json:"starting_balance_cents"`
	Weeks                []Week         `json:"weeks"`
	Balance              []BalancePoint `json:"running_balance"`
}

// RawItem is one top-N line of a raw weekly aggregate as delivered by the
// store or the import pipeline.
type RawItem struct {
	ID           string `json:"id"`
	AmountCents  int64  `json:"amount_cents"`
	DateDue      string `json:"date_due"`
	Counterparty string `json:"counterparty,omitempty"`
	Description  string `json:"description,omitempty"`
}

// WeekRaw is the wire form of a weekly aggregate before transformation.
type WeekRaw struct {
	WeekIndex         int       `json:"week_index"`
	Label             string    `json:"label"`
	StartDate         string    `json:"week_start_date,omitempty"`
	InflowCents       int64     `json:"inflow_cents"`
	OutflowCents      int64     `json:"outflow_cents"`
	TopInflows        []RawItem `json:"top_inflows"`
	TopOutflows       []RawItem `json:"top_outflows"`
	OtherInflowCents  int64     `json:"other_inflow_cents"`
	OtherOutflowCents int64     `json:"other_outflow_cents"`
}

// Override is a user amendment to one transaction: a new date, a new
// amount, or both. Nil fields mean "keep the current value".
type Override struct {
	TransactionID  string  `json:"transaction_id"`
	NewDate        *string `json:"new_date,omitempty"`
	NewAmountCents *int64  `json:"new_amount_cents,omitempty"`
}

// OverrideResult reports the outcome of a single override inside a batch.
type OverrideResult struct {
	TransactionID string `json:"transaction_id"`
	Applied       bool   `json:"applied"`
	Error         string `json:"error,omitempty"`
}

// BatchResult reports the outcome of a batch override submission.
type BatchResult struct {
	UpdatedCount int              `json:"updated_count"`
	Results      []OverrideResult `json:"results"`
}
