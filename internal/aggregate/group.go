// Package aggregate turns filtered transactions into labeled series for charts.
package aggregate

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"sales-dashboard/internal/models"
)

// Mode selects how a partition is reduced to a value.
type Mode string

const (
	ModeSum   Mode = "sum"
	ModeCount Mode = "count"
)

// GroupAndAggregate partitions records by groupKey and reduces each partition
// to a count or to the sum of measure. Records without a value for groupKey
// fall into the "Unknown" partition. Output follows first-occurrence order.
func GroupAndAggregate(records []models.Transaction, groupKey models.Field, measure models.Measure, mode Mode) []models.SeriesPoint {
	sums := make(map[string]decimal.Decimal)
	order := make([]string, 0)

	for _, tx := range records {
		key, ok := tx.Value(groupKey)
		if !ok {
			key = models.UnknownKey
		}
		if _, seen := sums[key]; !seen {
			order = append(order, key)
			sums[key] = decimal.Zero
		}

		switch mode {
		case ModeCount:
			sums[key] = sums[key].Add(decimal.NewFromInt(1))
		default:
			sums[key] = sums[key].Add(tx.Amount(measure))
		}
	}

	points := make([]models.SeriesPoint, 0, len(order))
	for _, key := range order {
		points = append(points, models.SeriesPoint{
			Key:   key,
			Value: sums[key].InexactFloat64(),
		})
	}
	return points
}

// Total sums measure across all records.
func Total(records []models.Transaction, measure models.Measure) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range records {
		total = total.Add(tx.Amount(measure))
	}
	return total
}

// SortByValueDesc orders points by value, largest first. Ties keep their
// original relative order.
func SortByValueDesc(points []models.SeriesPoint) {
	slices.SortStableFunc(points, func(a, b models.SeriesPoint) int {
		return cmp.Compare(b.Value, a.Value)
	})
}

// SortByKey orders points by key, ties keep their original relative order.
func SortByKey(points []models.SeriesPoint) {
	slices.SortStableFunc(points, func(a, b models.SeriesPoint) int {
		return cmp.Compare(a.Key, b.Key)
	})
}
