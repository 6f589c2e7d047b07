package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pustaka/backend/internal/domain"
)

func tripFixture(id, date, distributorID, name, group string, items ...domain.TripItem) domain.Trip {
	return domain.Trip{
		ID:              id,
		Date:            date,
		DistributorID:   distributorID,
		DistributorName: name,
		GroupName:       group,
		Status:          domain.TripStatusOut,
		Items:           items,
	}
}

func TestGroupTripsAggregatesGroupMembers(t *testing.T) {
	t1 := tripFixture("tr-1", "2024-01-05", "d-1", "Ravi", "North Route",
		domain.TripItem{BookID: "a", QuantityOut: 10, QuantityReturn: 2, AmountReturnedCents: 1600, Book: priced(200)})
	t2 := tripFixture("tr-2", "2024-01-05", "d-2", "Meera", "North Route",
		domain.TripItem{BookID: "a", QuantityOut: 5, QuantityReturn: 1, AmountReturnedCents: 800, Book: priced(200)})
	solo := tripFixture("tr-3", "2024-01-05", "d-3", "Anil", "",
		domain.TripItem{BookID: "b", QuantityOut: 3, AmountReturnedCents: 900, Book: priced(300)})

	groups := GroupTrips([]domain.Trip{t1, t2, solo}, "2024-01-05")
	require.Len(t, groups, 2)

	north := groups[0]
	assert.Equal(t, "group:North Route", north.Key)
	assert.Equal(t, []string{"tr-1", "tr-2"}, north.TripIDs)
	assert.Equal(t, []string{"Ravi", "Meera"}, north.DistributorNames)

	want := SummarizeTrip(t1)
	for _, m := range []domain.TripSummary{SummarizeTrip(t2)} {
		want.BooksOut += m.BooksOut
		want.BooksReturned += m.BooksReturned
		want.BooksSold += m.BooksSold
		want.ExpectedCents += m.ExpectedCents
		want.CollectedCents += m.CollectedCents
		want.DifferenceCents += m.DifferenceCents
	}
	assert.Equal(t, want, north.Summary)

	assert.Equal(t, "trip:tr-3", groups[1].Key)
	assert.Equal(t, []string{"Anil"}, groups[1].DistributorNames)
}

func TestGroupTripsScopedByDate(t *testing.T) {
	t1 := tripFixture("tr-1", "2024-01-05", "d-1", "Ravi", "North Route")
	t2 := tripFixture("tr-2", "2024-01-06", "d-2", "Meera", "North Route")

	groups := GroupTrips([]domain.Trip{t1, t2}, "2024-01-05")
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"tr-1"}, groups[0].TripIDs)
}

func TestGroupTripsTrimsGroupName(t *testing.T) {
	t1 := tripFixture("tr-1", "2024-01-05", "d-1", "Ravi", "  North Route ")
	t2 := tripFixture("tr-2", "2024-01-05", "d-2", "Meera", "North Route")

	groups := GroupTrips([]domain.Trip{t1, t2}, "")
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].TripIDs, 2)
}

func TestDaySummariesBucketsByCalendarDay(t *testing.T) {
	t1 := tripFixture("tr-1", "2024-01-05T10:00:00Z", "d-1", "Ravi", "",
		domain.TripItem{BookID: "a", QuantityOut: 4, AmountReturnedCents: 400, Book: priced(100)})
	t2 := tripFixture("tr-2", "2024-01-05", "d-2", "Meera", "",
		domain.TripItem{BookID: "a", QuantityOut: 6, AmountReturnedCents: 600, Book: priced(100)})
	t3 := tripFixture("tr-3", "2024-01-07", "d-1", "Ravi", "",
		domain.TripItem{BookID: "a", QuantityOut: 2, AmountReturnedCents: 200, Book: priced(100)})

	days := DaySummaries([]domain.Trip{t1, t2, t3})
	require.Len(t, days, 2)

	// Most recent day first.
	assert.Equal(t, "2024-01-07", days[0].Date)
	assert.Equal(t, "2024-01-05", days[1].Date)

	jan5 := days[1]
	require.Len(t, jan5.Books, 1)
	assert.Equal(t, 10, jan5.Books[0].Sold)
	assert.Equal(t, int64(1000), jan5.Total.CollectedCents)
	assert.Equal(t, 10, jan5.Total.BooksOut)
}

func TestBookAndDistributorReportsAgreeOnTotals(t *testing.T) {
	trips := []domain.Trip{
		tripFixture("tr-1", "2024-01-05", "d-1", "Ravi", "",
			domain.TripItem{BookID: "a", QuantityOut: 10, QuantityReturn: 2, AmountReturnedCents: 1500, Book: priced(200)},
			domain.TripItem{BookID: "b", QuantityOut: 5, QuantitySold: intp(3), AmountReturnedCents: 900, Book: &domain.Book{ID: "b", Title: "Bhakti Yoga", PriceCents: 300}}),
		tripFixture("tr-2", "2024-01-06", "d-2", "Meera", "",
			domain.TripItem{BookID: "a", QuantityOut: 7, QuantityReturn: 7, Book: priced(200)}),
	}

	byBook := BookReports(trips)
	byDistributor := DistributorReports(trips, "")
	overall := TotalOf(trips)

	var bookSold int
	var bookCollected int64
	for _, r := range byBook {
		bookSold += r.TotalSold
		bookCollected += r.CollectedCents
	}
	var distSold int
	var distCollected int64
	for _, r := range byDistributor {
		distSold += r.TotalSold
		distCollected += r.CollectedCents
	}

	assert.Equal(t, overall.BooksSold, bookSold)
	assert.Equal(t, overall.BooksSold, distSold)
	assert.Equal(t, overall.CollectedCents, bookCollected)
	assert.Equal(t, overall.CollectedCents, distCollected)
}

func TestBookReportsSortedAndLogged(t *testing.T) {
	trips := []domain.Trip{
		tripFixture("tr-1", "2024-01-05", "d-1", "Ravi", "",
			domain.TripItem{BookID: "z", QuantityOut: 1, Book: &domain.Book{ID: "z", Title: "Zen Stories", PriceCents: 100}}),
		tripFixture("tr-2", "2024-01-06", "d-2", "Meera", "",
			domain.TripItem{BookID: "a", QuantityOut: 2, Book: &domain.Book{ID: "a", Title: "Autobiography", PriceCents: 100}},
			domain.TripItem{BookID: "z", QuantityOut: 3, Book: &domain.Book{ID: "z", Title: "Zen Stories", PriceCents: 100}}),
	}

	reports := BookReports(trips)
	require.Len(t, reports, 2)
	assert.Equal(t, "Autobiography", reports[0].BookTitle)
	assert.Equal(t, "Zen Stories", reports[1].BookTitle)

	zen := reports[1]
	require.Len(t, zen.Log, 2)
	// Newest trip first in the per-book log.
	assert.Equal(t, "tr-2", zen.Log[0].TripID)
	assert.Equal(t, "tr-1", zen.Log[1].TripID)
	assert.Equal(t, 4, zen.TotalOut)
}

func TestDistributorReportsCarryCashSplit(t *testing.T) {
	trip := tripFixture("tr-1", "2024-01-05", "d-1", "Ravi", "",
		domain.TripItem{BookID: "a", QuantityOut: 2, AmountReturnedCents: 200, Book: priced(100)})
	trip.CashCents = 150
	trip.OnlineCents = 50

	reports := DistributorReports([]domain.Trip{trip}, "2024-01-05")
	require.Len(t, reports, 1)
	assert.Equal(t, int64(150), reports[0].CashCents)
	assert.Equal(t, int64(50), reports[0].OnlineCents)
}

func TestFilterByDateEmptyKeepsAll(t *testing.T) {
	trips := []domain.Trip{
		tripFixture("tr-1", "2024-01-05", "d-1", "Ravi", ""),
		tripFixture("tr-2", "2024-01-06", "d-2", "Meera", ""),
	}
	assert.Len(t, FilterByDate(trips, ""), 2)
	assert.Len(t, FilterByDate(trips, "2024-01-06"), 1)
}
