package scenario

import (
	"fmt"
	"sort"
	"time"
)

// TopN is how many individual transactions a week shows per direction;
// everything below the cut is rolled into the "other" bucket.
const TopN = 5

// Entry is one canonical imported transaction before weekly bucketing.
type Entry struct {
	ID           string
	Direction    Direction
	AmountCents  int64
	DateDue      string // YYYY-MM-DD
	Counterparty string
	Description  string
}

// InitialWeekRaw builds the index-0 pseudo-week carrying the starting
// balance as its single inflow. It has no start date.
func InitialWeekRaw(startingBalanceCents int64) WeekRaw {
	return WeekRaw{
		WeekIndex:   0,
		Label:       "Initial Balance",
		InflowCents: startingBalanceCents,
		TopInflows: []RawItem{
			{
				ID:          "initial-balance",
				AmountCents: startingBalanceCents,
				Description: "Initial Balance",
			},
		},
	}
}

// SummarizeWeeks buckets entries into calendar weeks starting on Monday
// and produces raw weekly aggregates with top-N + other summarization.
// Week indexes start at 1; index 0 is reserved for the initial-balance
// pseudo-week. Entries with unparseable dates are skipped.
func SummarizeWeeks(entries []Entry) []WeekRaw {
	buckets := make(map[string][]Entry)
	for _, e := range entries {
		start, ok := weekStart(e.DateDue)
		if !ok {
			continue
		}
		buckets[start] = append(buckets[start], e)
	}

	starts := make([]string, 0, len(buckets))
	for start := range buckets {
		starts = append(starts, start)
	}
	sort.Strings(starts)

	weeks := make([]WeekRaw, 0, len(starts))
	for i, start := range starts {
		weeks = append(weeks, summarizeWeek(i+1, start, buckets[start]))
	}
	return weeks
}

func summarizeWeek(index int, start string, entries []Entry) WeekRaw {
	var inflows, outflows []Entry
	week := WeekRaw{
		WeekIndex: index,
		Label:     weekLabel(start),
		StartDate: start,
	}

	for _, e := range entries {
		if e.Direction == Outflow {
			week.OutflowCents += e.AmountCents
			outflows = append(outflows, e)
		} else {
			week.InflowCents += e.AmountCents
			inflows = append(inflows, e)
		}
	}

	week.TopInflows, week.OtherInflowCents = pickTop(inflows)
	week.TopOutflows, week.OtherOutflowCents = pickTop(outflows)
	return week
}

// pickTop keeps the TopN largest entries (ties broken by date, then id,
// for determinism) and sums the remainder.
func pickTop(entries []Entry) ([]RawItem, int64) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].AmountCents != sorted[j].AmountCents {
			return sorted[i].AmountCents > sorted[j].AmountCents
		}
		if sorted[i].DateDue != sorted[j].DateDue {
			return sorted[i].DateDue < sorted[j].DateDue
		}
		return sorted[i].ID < sorted[j].ID
	})

	n := len(sorted)
	if n > TopN {
		n = TopN
	}

	top := make([]RawItem, 0, n)
	for _, e := range sorted[:n] {
		top = append(top, RawItem{
			ID:           e.ID,
			AmountCents:  e.AmountCents,
			DateDue:      e.DateDue,
			Counterparty: e.Counterparty,
			Description:  e.Description,
		})
	}

	var other int64
	for _, e := range sorted[n:] {
		other += e.AmountCents
	}
	return top, other
}

// weekStart returns the Monday of the week containing the date.
func weekStart(date string) (string, bool) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", false
	}
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	return t.AddDate(0, 0, -offset).Format("2006-01-02"), true
}

func weekLabel(start string) string {
	t, err := time.Parse("2006-01-02", start)
	if err != nil {
		return "Week of " + start
	}
	return fmt.Sprintf("Week of %s", t.Format("Jan 2, 2006"))
}
