package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pustaka/backend/internal/domain"
)

func priced(cents int64) *domain.Book {
	return &domain.Book{ID: "bk-1", Title: "Gita Saar", PriceCents: cents}
}

func intp(v int) *int {
	return &v
}

func TestDeriveItemRemaining(t *testing.T) {
	cases := []struct {
		name      string
		out, ret  int
		remaining int
	}{
		{"returns less than out", 10, 3, 7},
		{"everything returned", 5, 5, 0},
		{"returns exceed out", 3, 10, 0},
		{"negative inputs clamp to zero", -4, -2, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := DeriveItem(domain.TripItem{QuantityOut: tc.out, QuantityReturn: tc.ret, Book: priced(100)})
			assert.Equal(t, tc.remaining, m.Remaining)
			assert.GreaterOrEqual(t, m.Remaining, 0)
		})
	}
}

func TestDeriveItemSoldAlwaysWithinRange(t *testing.T) {
	for _, sold := range []int{-5, 0, 3, 7, 50} {
		m := DeriveItem(domain.TripItem{
			QuantityOut:    10,
			QuantityReturn: 3,
			QuantitySold:   intp(sold),
			Book:           priced(100),
		})
		assert.GreaterOrEqual(t, m.Sold, 0, "sold=%d", sold)
		assert.LessOrEqual(t, m.Sold, m.Remaining, "sold=%d", sold)
	}
}

func TestDeriveItemSoldFallback(t *testing.T) {
	// Scenario: no explicit sold count means everything not returned sold.
	m := DeriveItem(domain.TripItem{QuantityOut: 10, QuantityReturn: 3, Book: priced(2000)})

	assert.Equal(t, 7, m.Remaining)
	assert.Equal(t, 7, m.Sold)
	assert.Equal(t, 0, m.RemainingUnsold)
	assert.Equal(t, int64(14000), m.ExpectedCents)
}

func TestDeriveItemExplicitSold(t *testing.T) {
	m := DeriveItem(domain.TripItem{
		QuantityOut:         10,
		QuantityReturn:      3,
		QuantitySold:        intp(4),
		AmountReturnedCents: 10000,
		Book:                priced(2000),
	})

	assert.Equal(t, 7, m.Remaining)
	assert.Equal(t, 4, m.Sold)
	assert.Equal(t, 3, m.RemainingUnsold)
	assert.Equal(t, int64(14000), m.ExpectedCents)
	assert.Equal(t, int64(-4000), m.DifferenceCents)
}

func TestDeriveItemUnresolvedBookPricesAtZero(t *testing.T) {
	m := DeriveItem(domain.TripItem{BookID: "bk-missing", QuantityOut: 10, QuantityReturn: 2})

	assert.Equal(t, int64(0), m.ExpectedCents)
	assert.Equal(t, 8, m.Remaining)
}

func TestDeriveItemNegativeStoredCollectedShownAsIs(t *testing.T) {
	// Reads do not clamp collected; only edits do.
	m := DeriveItem(domain.TripItem{QuantityOut: 1, AmountReturnedCents: -500, Book: priced(100)})

	assert.Equal(t, int64(-500), m.CollectedCents)
	assert.Equal(t, int64(-600), m.DifferenceCents)
}

func TestNormalizeItemReclampsSoldWhenQuantityOutShrinks(t *testing.T) {
	// Editing quantityOut from 10 to 2 with return=3 and sold=8 must yield a
	// consistent state in the same update, never a transient sold>remaining.
	edited := NormalizeItem(domain.TripItem{
		BookID:         "bk-1",
		QuantityOut:    2,
		QuantityReturn: 3,
		QuantitySold:   intp(8),
	})

	require.NotNil(t, edited.QuantitySold)
	assert.Equal(t, 0, *edited.QuantitySold)

	m := DeriveItem(edited)
	assert.Equal(t, 0, m.Remaining)
	assert.Equal(t, 0, m.Sold)
}

func TestNormalizeItemClampsCollectedOnEdit(t *testing.T) {
	edited := NormalizeItem(domain.TripItem{QuantityOut: 5, AmountReturnedCents: -100})
	assert.Equal(t, int64(0), edited.AmountReturnedCents)
}

func TestSummarizeTripOrderIndependent(t *testing.T) {
	a := domain.TripItem{BookID: "a", QuantityOut: 10, QuantityReturn: 2, AmountReturnedCents: 900, Book: priced(150)}
	b := domain.TripItem{BookID: "b", QuantityOut: 4, QuantityReturn: 4, Book: priced(300)}
	c := domain.TripItem{BookID: "c", QuantityOut: 6, QuantitySold: intp(2), AmountReturnedCents: 500, Book: priced(250)}

	forward := SummarizeTrip(domain.Trip{Items: []domain.TripItem{a, b, c}})
	reversed := SummarizeTrip(domain.Trip{Items: []domain.TripItem{c, b, a}})

	assert.Equal(t, forward, reversed)
	assert.Equal(t, 20, forward.BooksOut)
	assert.Equal(t, 6, forward.BooksReturned)
}

func TestSummarizeTripEmpty(t *testing.T) {
	assert.Equal(t, domain.TripSummary{}, SummarizeTrip(domain.Trip{}))
}

func TestCrossCheckFlagsSplitMismatch(t *testing.T) {
	// Scenario: cash 50 + online 30 against 100 collected per item.
	trip := domain.Trip{
		CashCents:   5000,
		OnlineCents: 3000,
		Items: []domain.TripItem{
			{BookID: "a", QuantityOut: 5, AmountReturnedCents: 10000, Book: priced(2000)},
		},
	}
	check := CrossCheck(trip, SummarizeTrip(trip))

	assert.Equal(t, int64(8000), check.CashOnlineTotalCents)
	assert.Equal(t, int64(-2000), check.DiffFromCollectedCents)
	assert.True(t, check.Mismatch)
}

func TestCrossCheckBalanced(t *testing.T) {
	trip := domain.Trip{
		CashCents:   1500,
		OnlineCents: 500,
		Items: []domain.TripItem{
			{BookID: "a", QuantityOut: 1, AmountReturnedCents: 2000, Book: priced(2000)},
		},
	}
	check := CrossCheck(trip, SummarizeTrip(trip))

	assert.False(t, check.Mismatch)
	assert.Equal(t, int64(0), check.DiffFromCollectedCents)
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "2024-01-05", NormalizeDate("2024-01-05T10:00:00Z"))
	assert.Equal(t, "2024-01-05", NormalizeDate("2024-01-05"))
	assert.Equal(t, "2024-01-05", NormalizeDate("  2024-01-05T23:59:59+05:30"))
	assert.Equal(t, "", NormalizeDate("   "))
}
