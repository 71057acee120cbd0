package scenario

import "sort"

// RecalculateRunningBalance derives the chronological running balance
// from a set of weekly aggregates and a starting balance in cents.
//
// Week index is the authoritative chronological order — the
// initial-balance week (index 0) has no date at all. Within a week,
// transactions are grouped by due date and the dates are sorted
// lexicographically (ISO dates sort correctly). One point is emitted per
// date that had at least one transaction, after all of that date's
// transactions were applied; dates with no transactions produce nothing.
//
// Accumulation happens in integer cents; the division to major units is
// done once per emitted point, so long scenarios do not drift.
func RecalculateRunningBalance(weeks []Week, startingBalanceCents int64) []BalancePoint {
	if len(weeks) == 0 {
		return []BalancePoint{}
	}

	ordered := make([]Week, len(weeks))
	copy(ordered, weeks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].WeekIndex < ordered[j].WeekIndex
	})

	points := make([]BalancePoint, 0)
	balance := startingBalanceCents

	for _, week := range ordered {
		if len(week.Transactions) == 0 {
			continue
		}

		// The initial-balance entry is the starting balance itself, not a
		// movement on top of it.
		byDate := make(map[string][]Transaction)
		for _, txn := range week.Transactions {
			if txn.IsInitialBalance {
				continue
			}
			byDate[txn.DateDue] = append(byDate[txn.DateDue], txn)
		}

		dates := make([]string, 0, len(byDate))
		for d := range byDate {
			dates = append(dates, d)
		}
		sort.Strings(dates)

		for _, date := range dates {
			for _, txn := range byDate[date] {
				if txn.Direction == Inflow {
					balance += txn.AmountCents
				} else {
					balance -= txn.AmountCents
				}
			}
			points = append(points, BalancePoint{
				Date:    date,
				Balance: float64(balance) / 100,
			})
		}
	}

	return points
}
