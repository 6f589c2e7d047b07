package reconcile

import (
	"sort"
	"strings"

	"pustaka/backend/internal/domain"
)

// GroupTrips buckets the trips of one calendar date into logical group
// trips. Trips sharing a non-empty trimmed group name form one group; every
// other trip is its own singleton keyed by trip identity. Group order
// follows first appearance in the input.
func GroupTrips(trips []domain.Trip, date string) []domain.GroupSummary {
	scoped := FilterByDate(trips, date)

	order := make([]string, 0, len(scoped))
	byKey := make(map[string]*domain.GroupSummary, len(scoped))

	for _, trip := range scoped {
		groupName := strings.TrimSpace(trip.GroupName)
		key := "trip:" + trip.ID
		if groupName != "" {
			key = "group:" + groupName
		}

		group, exists := byKey[key]
		if !exists {
			group = &domain.GroupSummary{
				Key:       key,
				GroupName: groupName,
				Date:      NormalizeDate(trip.Date),
			}
			byKey[key] = group
			order = append(order, key)
		}

		group.TripIDs = append(group.TripIDs, trip.ID)
		if trip.DistributorName != "" {
			group.DistributorNames = append(group.DistributorNames, trip.DistributorName)
		}
		addSummary(&group.Summary, SummarizeTrip(trip))
	}

	groups := make([]domain.GroupSummary, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byKey[key])
	}
	return groups
}

// DaySummaries buckets all trips by normalized date, and within each day by
// book, producing a per-day per-book breakdown plus a per-day total. Days
// are sorted descending so consumers can show the most recent N directly.
func DaySummaries(trips []domain.Trip) []domain.DaySummary {
	type dayAccum struct {
		rows  map[string]*domain.DayBookRow
		order []string
		total domain.TripSummary
	}

	days := make(map[string]*dayAccum)
	for _, trip := range trips {
		date := NormalizeDate(trip.Date)
		day, exists := days[date]
		if !exists {
			day = &dayAccum{rows: make(map[string]*domain.DayBookRow)}
			days[date] = day
		}

		for _, item := range trip.Items {
			metrics := DeriveItem(item)
			addMetrics(&day.total, metrics)

			key := metrics.BookTitle
			if key == "" {
				key = metrics.BookID
			}
			row, exists := day.rows[key]
			if !exists {
				row = &domain.DayBookRow{BookID: metrics.BookID, BookTitle: metrics.BookTitle}
				day.rows[key] = row
				day.order = append(day.order, key)
			}
			row.Sold += metrics.Sold
			row.ExpectedCents += metrics.ExpectedCents
			row.CollectedCents += metrics.CollectedCents
		}
	}

	dates := make([]string, 0, len(days))
	for date := range days {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	result := make([]domain.DaySummary, 0, len(dates))
	for _, date := range dates {
		day := days[date]
		sort.Strings(day.order)
		rows := make([]domain.DayBookRow, 0, len(day.order))
		for _, key := range day.order {
			rows = append(rows, *day.rows[key])
		}
		result = append(result, domain.DaySummary{Date: date, Books: rows, Total: day.total})
	}
	return result
}

// BookReports aggregates every item across all trips by book, with a
// date-descending drill-down log of trip x book occurrences. Summed over
// all books the totals equal the distributor report totals for the same
// trip set: both decompose the same item set without double counting.
func BookReports(trips []domain.Trip) []domain.BookReport {
	order := make([]string, 0, 16)
	byBook := make(map[string]*domain.BookReport)

	for _, trip := range trips {
		for _, item := range trip.Items {
			metrics := DeriveItem(item)
			report, exists := byBook[item.BookID]
			if !exists {
				report = &domain.BookReport{BookID: item.BookID, BookTitle: metrics.BookTitle}
				byBook[item.BookID] = report
				order = append(order, item.BookID)
			}
			if report.BookTitle == "" {
				report.BookTitle = metrics.BookTitle
			}
			report.TotalOut += metrics.QuantityOut
			report.TotalReturned += metrics.QuantityReturn
			report.TotalSold += metrics.Sold
			report.ExpectedCents += metrics.ExpectedCents
			report.CollectedCents += metrics.CollectedCents
			report.Log = append(report.Log, logRow(trip, metrics))
		}
	}

	reports := make([]domain.BookReport, 0, len(order))
	for _, id := range order {
		report := byBook[id]
		sortLog(report.Log)
		reports = append(reports, *report)
	}
	sort.Slice(reports, func(i, j int) bool {
		if reports[i].BookTitle == reports[j].BookTitle {
			return reports[i].BookID < reports[j].BookID
		}
		return reports[i].BookTitle < reports[j].BookTitle
	})
	return reports
}

// DistributorReports aggregates the same trip set per distributor, adding
// the trip-level cash/online totals. A non-empty date narrows the whole
// view to that day.
func DistributorReports(trips []domain.Trip, date string) []domain.DistributorReport {
	scoped := FilterByDate(trips, date)

	order := make([]string, 0, 16)
	byDistributor := make(map[string]*domain.DistributorReport)

	for _, trip := range scoped {
		report, exists := byDistributor[trip.DistributorID]
		if !exists {
			report = &domain.DistributorReport{
				DistributorID:   trip.DistributorID,
				DistributorName: trip.DistributorName,
			}
			byDistributor[trip.DistributorID] = report
			order = append(order, trip.DistributorID)
		}
		if report.DistributorName == "" {
			report.DistributorName = trip.DistributorName
		}
		report.CashCents += trip.CashCents
		report.OnlineCents += trip.OnlineCents

		for _, item := range trip.Items {
			metrics := DeriveItem(item)
			report.TotalOut += metrics.QuantityOut
			report.TotalReturned += metrics.QuantityReturn
			report.TotalSold += metrics.Sold
			report.ExpectedCents += metrics.ExpectedCents
			report.CollectedCents += metrics.CollectedCents
			report.Log = append(report.Log, logRow(trip, metrics))
		}
	}

	reports := make([]domain.DistributorReport, 0, len(order))
	for _, id := range order {
		report := byDistributor[id]
		sortLog(report.Log)
		reports = append(reports, *report)
	}
	sort.Slice(reports, func(i, j int) bool {
		if reports[i].DistributorName == reports[j].DistributorName {
			return reports[i].DistributorID < reports[j].DistributorID
		}
		return reports[i].DistributorName < reports[j].DistributorName
	})
	return reports
}

func logRow(trip domain.Trip, metrics domain.ItemMetrics) domain.TripItemLog {
	return domain.TripItemLog{
		TripID:          trip.ID,
		Date:            NormalizeDate(trip.Date),
		DistributorID:   trip.DistributorID,
		DistributorName: trip.DistributorName,
		BookID:          metrics.BookID,
		BookTitle:       metrics.BookTitle,
		QuantityOut:     metrics.QuantityOut,
		QuantityReturn:  metrics.QuantityReturn,
		Sold:            metrics.Sold,
		ExpectedCents:   metrics.ExpectedCents,
		CollectedCents:  metrics.CollectedCents,
	}
}

func sortLog(log []domain.TripItemLog) {
	sort.SliceStable(log, func(i, j int) bool {
		if log[i].Date == log[j].Date {
			return log[i].TripID > log[j].TripID
		}
		return log[i].Date > log[j].Date
	})
}
