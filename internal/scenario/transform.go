package scenario

import "fmt"

// BuildWeek converts one raw weekly aggregate into its display form.
//
// The emitted order is part of the contract the dashboard relies on: all
// top inflows first, then the inflow "other" bucket (only when its total
// is positive), then all top outflows, then the outflow "other" bucket.
// Week 0 is the initial-balance pseudo-week: it has no start date and
// every transaction it emits is flagged immutable.
func BuildWeek(raw WeekRaw) Week {
	isInitial := raw.WeekIndex == 0

	txns := make([]Transaction, 0, len(raw.TopInflows)+len(raw.TopOutflows)+2)

	for _, item := range raw.TopInflows {
		txns = append(txns, displayTransaction(item, Inflow, isInitial))
	}
	if raw.OtherInflowCents > 0 {
		txns = append(txns, otherBucket(raw, Inflow, isInitial))
	}

	for _, item := range raw.TopOutflows {
		txns = append(txns, displayTransaction(item, Outflow, isInitial))
	}
	if raw.OtherOutflowCents > 0 {
		txns = append(txns, otherBucket(raw, Outflow, isInitial))
	}

	return Week{
		WeekIndex:    raw.WeekIndex,
		Label:        raw.Label,
		StartDate:    raw.StartDate,
		InflowCents:  raw.InflowCents,
		OutflowCents: raw.OutflowCents,
		Transactions: txns,
	}
}

// BuildWeeks transforms a full set of raw aggregates.
func BuildWeeks(raws []WeekRaw) []Week {
	weeks := make([]Week, 0, len(raws))
	for _, raw := range raws {
		weeks = append(weeks, BuildWeek(raw))
	}
	return weeks
}

func displayTransaction(item RawItem, dir Direction, isInitial bool) Transaction {
	return Transaction{
		ID:               item.ID,
		Kind:             KindTransaction,
		Direction:        dir,
		AmountCents:      item.AmountCents,
		DateDue:          item.DateDue,
		Counterparty:     item.Counterparty,
		Description:      item.Description,
		IsInitialBalance: isInitial,
	}
}

// otherBucket emits the synthetic bucket with a deterministic id so the
// dashboard keeps a stable row identity across refetches. Its due date is
// the week start date, which is empty for the initial-balance week.
func otherBucket(raw WeekRaw, dir Direction, isInitial bool) Transaction {
	amount := raw.OtherInflowCents
	prefix := "other-inflow"
	if dir == Outflow {
		amount = raw.OtherOutflowCents
		prefix = "other-outflow"
	}
	return Transaction{
		ID:               fmt.Sprintf("%s-%d", prefix, raw.WeekIndex),
		Kind:             KindOther,
		Direction:        dir,
		AmountCents:      amount,
		DateDue:          raw.StartDate,
		Description:      "Other",
		IsInitialBalance: isInitial,
	}
}
