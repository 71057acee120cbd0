package scenario

import "fmt"

// ErrImmutableTransaction is returned when a move targets the synthetic
// initial-balance entry, which must never change its date.
type ErrImmutableTransaction struct {
	TransactionID string
}

func (e *ErrImmutableTransaction) Error() string {
	return fmt.Sprintf("transaction %s is the initial balance entry and cannot be moved", e.TransactionID)
}

// ErrTransactionNotFound is returned when no week contains the
// referenced transaction.
type ErrTransactionNotFound struct {
	TransactionID string
}

func (e *ErrTransactionNotFound) Error() string {
	return fmt.Sprintf("transaction not found: %s", e.TransactionID)
}

// ErrUnknownTargetDate is returned when no week corresponds to the
// requested target date, so the move has nowhere to land.
type ErrUnknownTargetDate struct {
	Date string
}

func (e *ErrUnknownTargetDate) Error() string {
	return fmt.Sprintf("no week matches target date %s", e.Date)
}

// ValidateTransactionMove rejects moves of the initial-balance entry.
// The transaction's location is not assumed known, so every week is
// scanned. Any other transaction, or an unknown id, passes.
func ValidateTransactionMove(weeks []Week, transactionID string) error {
	for _, week := range weeks {
		for _, txn := range week.Transactions {
			if txn.ID == transactionID && txn.IsInitialBalance {
				return &ErrImmutableTransaction{TransactionID: transactionID}
			}
		}
	}
	return nil
}

// FindAndRemoveTransaction removes the first transaction matching the id
// and returns the new week collection plus the removed transaction. The
// input is never mutated. When the id is absent everywhere the returned
// collection is value-identical to the input and the transaction is nil.
//
// Ids are unique by construction; duplicates across weeks are a caller
// bug and only the first encounter is removed.
func FindAndRemoveTransaction(weeks []Week, transactionID string) ([]Week, *Transaction) {
	out := make([]Week, len(weeks))
	var removed *Transaction

	for i, week := range weeks {
		out[i] = week
		if removed != nil {
			continue
		}
		for j, txn := range week.Transactions {
			if txn.ID != transactionID {
				continue
			}
			hit := txn
			removed = &hit
			rest := make([]Transaction, 0, len(week.Transactions)-1)
			rest = append(rest, week.Transactions[:j]...)
			rest = append(rest, week.Transactions[j+1:]...)
			out[i].Transactions = rest
			break
		}
	}

	return out, removed
}

// AddTransactionToWeek appends the transaction to the week whose start
// date equals targetDate, or failing that to any week already containing
// a transaction due on targetDate. The appended transaction's due date is
// normalized to the week's first existing transaction's date (or to
// targetDate when the week is empty) so every transaction in a week
// shares one nominal date for grouping. When no week matches, the input
// is returned unchanged and the transaction is dropped — callers must
// pre-validate the target.
func AddTransactionToWeek(weeks []Week, txn Transaction, targetDate string) []Week {
	target := findTargetWeek(weeks, targetDate)
	if target < 0 {
		return weeks
	}

	out := make([]Week, len(weeks))
	copy(out, weeks)

	week := out[target]
	if len(week.Transactions) > 0 {
		txn.DateDue = week.Transactions[0].DateDue
	} else {
		txn.DateDue = targetDate
	}

	updated := make([]Transaction, 0, len(week.Transactions)+1)
	updated = append(updated, week.Transactions...)
	updated = append(updated, txn)
	out[target].Transactions = updated

	return out
}

func findTargetWeek(weeks []Week, targetDate string) int {
	for i, week := range weeks {
		if week.StartDate != "" && week.StartDate == targetDate {
			return i
		}
	}
	for i, week := range weeks {
		for _, txn := range week.Transactions {
			if txn.DateDue == targetDate {
				return i
			}
		}
	}
	return -1
}

// MoveTransaction relocates one transaction to the week matching
// targetDate and rebuilds the running balance. The operation is atomic:
// on any failure the input snapshot is returned untouched.
func MoveTransaction(snap Snapshot, transactionID, targetDate string) (Snapshot, error) {
	if err := ValidateTransactionMove(snap.Weeks, transactionID); err != nil {
		return snap, err
	}

	weeks, removed := FindAndRemoveTransaction(snap.Weeks, transactionID)
	if removed == nil {
		return snap, &ErrTransactionNotFound{TransactionID: transactionID}
	}
	if removed.DateDue == targetDate {
		// Already due on the target date: nothing to do.
		return snap, nil
	}
	// The target is resolved on the post-removal weeks so the moved
	// transaction cannot satisfy the date match itself and then vanish
	// when the add step fails to find a landing week.
	if findTargetWeek(weeks, targetDate) < 0 {
		return snap, &ErrUnknownTargetDate{Date: targetDate}
	}

	weeks = AddTransactionToWeek(weeks, *removed, targetDate)

	return rebuild(snap, weeks), nil
}

// ApplyOverride updates one transaction's amount and/or date in place of
// its current values, then rebuilds the running balance. Fields left nil
// keep the current value. A date change relocates the transaction to the
// matching week via MoveTransaction so the week invariants hold.
func ApplyOverride(snap Snapshot, o Override) (Snapshot, error) {
	moved := snap
	if o.NewDate != nil {
		var err error
		moved, err = MoveTransaction(snap, o.TransactionID, *o.NewDate)
		if err != nil {
			return snap, err
		}
	}

	if o.NewAmountCents == nil {
		if o.NewDate == nil {
			return snap, nil
		}
		return moved, nil
	}

	found := false
	weeks := make([]Week, len(moved.Weeks))
	for i, week := range moved.Weeks {
		weeks[i] = week
		for j, txn := range week.Transactions {
			if txn.ID != o.TransactionID {
				continue
			}
			updated := make([]Transaction, len(week.Transactions))
			copy(updated, week.Transactions)
			updated[j].AmountCents = *o.NewAmountCents
			weeks[i].Transactions = updated
			found = true
			break
		}
	}
	if !found {
		return snap, &ErrTransactionNotFound{TransactionID: o.TransactionID}
	}

	return rebuild(moved, weeks), nil
}

// ApplyOverrides applies a batch as one unit: either every override
// succeeds and the combined snapshot is returned, or the input snapshot
// is returned untouched along with the first failure.
func ApplyOverrides(snap Snapshot, overrides []Override) (Snapshot, *BatchResult, error) {
	current := snap
	results := make([]OverrideResult, 0, len(overrides))

	for _, o := range overrides {
		next, err := ApplyOverride(current, o)
		if err != nil {
			results = append(results, OverrideResult{TransactionID: o.TransactionID, Error: err.Error()})
			return snap, &BatchResult{UpdatedCount: 0, Results: results}, err
		}
		results = append(results, OverrideResult{TransactionID: o.TransactionID, Applied: true})
		current = next
	}

	return current, &BatchResult{UpdatedCount: len(overrides), Results: results}, nil
}

func rebuild(snap Snapshot, weeks []Week) Snapshot {
	// Re-sum the weekly totals so they stay consistent with the
	// transaction lists after a move or an amount change.
	resummed := make([]Week, len(weeks))
	for i, week := range weeks {
		var inflow, outflow int64
		for _, txn := range week.Transactions {
			if txn.Direction == Inflow {
				inflow += txn.AmountCents
			} else {
				outflow += txn.AmountCents
			}
		}
		resummed[i] = week
		resummed[i].InflowCents = inflow
		resummed[i].OutflowCents = outflow
	}

	return Snapshot{
		ScenarioID:           snap.ScenarioID,
		StartingBalanceCents: snap.StartingBalanceCents,
		Weeks:                resummed,
		Balance:              RecalculateRunningBalance(resummed, snap.StartingBalanceCents),
	}
}
