// Package reconcile is the single home of all settlement arithmetic: item
// metric derivation, trip aggregation, the cash/online cross-check, and the
// group/day/book/distributor rollups. Every view computes through these
// functions so the formulas cannot drift between pages. All functions are
// pure and safe for concurrent use over a shared snapshot.
package reconcile

import (
	"strings"

	"pustaka/backend/internal/domain"
)

// DeriveItem computes the never-stored metrics for one trip item.
//
// Quantities are clamped non-negative. Units remaining with the distributor
// are quantityOut minus quantityReturn, floored at zero. An explicit sold
// count is clamped into [0, remaining]; when absent, everything not returned
// counts as sold. Price comes from the resolved book and defaults to zero
// when the reference is unresolved. The stored collected amount is read
// as-is, so a legacy negative value shows up in the signed difference rather
// than being hidden.
func DeriveItem(item domain.TripItem) domain.ItemMetrics {
	out := clampNonNeg(item.QuantityOut)
	ret := clampNonNeg(item.QuantityReturn)

	remaining := out - ret
	if remaining < 0 {
		remaining = 0
	}

	sold := remaining
	if item.QuantitySold != nil {
		sold = clampRange(*item.QuantitySold, 0, remaining)
	}

	remainingUnsold := remaining - sold
	if remainingUnsold < 0 {
		remainingUnsold = 0
	}

	var price int64
	title := ""
	if item.Book != nil {
		if item.Book.PriceCents > 0 {
			price = item.Book.PriceCents
		}
		title = item.Book.Title
	}

	expected := int64(remaining) * price
	collected := item.AmountReturnedCents

	return domain.ItemMetrics{
		BookID:          item.BookID,
		BookTitle:       title,
		QuantityOut:     out,
		QuantityReturn:  ret,
		Remaining:       remaining,
		Sold:            sold,
		RemainingUnsold: remainingUnsold,
		ExpectedCents:   expected,
		CollectedCents:  collected,
		DifferenceCents: collected - expected,
	}
}

// NormalizeItem clamps an edited item into a consistent stored state before
// it is saved. Editing quantityOut re-clamps the sold count in the same
// update, so a state where sold exceeds remaining is never observable.
// Unlike reads, edits also clamp the collected amount to be non-negative.
func NormalizeItem(item domain.TripItem) domain.TripItem {
	item.QuantityOut = clampNonNeg(item.QuantityOut)
	item.QuantityReturn = clampNonNeg(item.QuantityReturn)

	remaining := item.QuantityOut - item.QuantityReturn
	if remaining < 0 {
		remaining = 0
	}

	if item.QuantitySold != nil {
		sold := clampRange(*item.QuantitySold, 0, remaining)
		item.QuantitySold = &sold
	}

	if item.AmountReturnedCents < 0 {
		item.AmountReturnedCents = 0
	}
	item.DifferenceReason = strings.TrimSpace(item.DifferenceReason)

	return item
}

// SummarizeTrip sums the derived metrics of every item. The sum is
// order-independent and a trip with no items yields a zero summary.
func SummarizeTrip(trip domain.Trip) domain.TripSummary {
	var summary domain.TripSummary
	for _, item := range trip.Items {
		addMetrics(&summary, DeriveItem(item))
	}
	return summary
}

// CrossCheck reconciles the trip-level cash/online split against the summed
// item-level collected amounts. A non-zero diff flags a data-entry mismatch
// and is surfaced, never corrected.
func CrossCheck(trip domain.Trip, summary domain.TripSummary) domain.CashCheck {
	total := trip.CashCents + trip.OnlineCents
	diff := total - summary.CollectedCents
	return domain.CashCheck{
		CashCents:              trip.CashCents,
		OnlineCents:            trip.OnlineCents,
		CashOnlineTotalCents:   total,
		CollectedCents:         summary.CollectedCents,
		DiffFromCollectedCents: diff,
		Mismatch:               diff != 0,
	}
}

// NormalizeDate reduces any ISO datetime string to its YYYY-MM-DD prefix.
// Bucketing is by string truncation, not timezone-aware calendar math.
func NormalizeDate(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) > 10 {
		return trimmed[:10]
	}
	return trimmed
}

// FilterByDate keeps the trips whose normalized date equals the given
// normalized date. An empty date keeps everything.
func FilterByDate(trips []domain.Trip, date string) []domain.Trip {
	date = NormalizeDate(date)
	if date == "" {
		return trips
	}
	kept := make([]domain.Trip, 0, len(trips))
	for _, trip := range trips {
		if NormalizeDate(trip.Date) == date {
			kept = append(kept, trip)
		}
	}
	return kept
}

// TotalOf sums the trip summaries of the whole set.
func TotalOf(trips []domain.Trip) domain.TripSummary {
	var total domain.TripSummary
	for _, trip := range trips {
		addSummary(&total, SummarizeTrip(trip))
	}
	return total
}

func addMetrics(summary *domain.TripSummary, m domain.ItemMetrics) {
	summary.BooksOut += m.QuantityOut
	summary.BooksReturned += m.QuantityReturn
	summary.BooksSold += m.Sold
	summary.ExpectedCents += m.ExpectedCents
	summary.CollectedCents += m.CollectedCents
	summary.DifferenceCents += m.DifferenceCents
}

func addSummary(total *domain.TripSummary, s domain.TripSummary) {
	total.BooksOut += s.BooksOut
	total.BooksReturned += s.BooksReturned
	total.BooksSold += s.BooksSold
	total.ExpectedCents += s.ExpectedCents
	total.CollectedCents += s.CollectedCents
	total.DifferenceCents += s.DifferenceCents
}

func clampNonNeg(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func clampRange(v int, low int, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
