package forecast

import (
	"slices"
	"sort"
	"strconv"
	"time"

	"sales-dashboard/internal/filters"
	"sales-dashboard/internal/models"
)

// bucketKeyLayout keys buckets by calendar month so "Jan'24" and "Jan'25"
// never collide.
const bucketKeyLayout = "2006-01"

// Query holds the secondary filters applied to a forecast response.
// Empty Year or Category (or filters.All) means no constraint.
type Query struct {
	Year     string
	Category string
	Start    *time.Time
	End      *time.Time
}

type datedPoint struct {
	point models.ForecastPoint
	date  time.Time
}

// Project reshapes raw forecast points for display. Points whose date cannot
// be parsed are dropped. The input slice is not modified.
func Project(points []models.ForecastPoint, q Query) models.Projection {
	out := models.Projection{
		Years:      []int{},
		Categories: []string{},
		Points:     []models.ForecastPoint{},
		Buckets:    []models.ForecastBucket{},
	}
	if len(points) == 0 {
		return out
	}

	dated := make([]datedPoint, 0, len(points))
	for _, p := range points {
		if date, ok := models.ParseDate(p.Date); ok {
			dated = append(dated, datedPoint{point: p, date: date})
		}
	}
	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].date.Before(dated[j].date)
	})

	years := make(map[int]struct{})
	categories := make(map[string]struct{})
	for _, d := range dated {
		years[d.date.Year()] = struct{}{}
		categories[d.point.Category] = struct{}{}
	}
	for y := range years {
		out.Years = append(out.Years, y)
	}
	slices.Sort(out.Years)
	for c := range categories {
		out.Categories = append(out.Categories, c)
	}
	slices.Sort(out.Categories)

	kept := make([]datedPoint, 0, len(dated))
	for _, d := range dated {
		if q.matches(d) {
			kept = append(kept, d)
			out.Points = append(out.Points, d.point)
		}
	}

	out.Buckets = bucketByMonth(kept)
	out.Stats = computeStats(out.Buckets)
	return out
}

func (q Query) matches(d datedPoint) bool {
	if q.Year != "" && q.Year != filters.All && strconv.Itoa(d.date.Year()) != q.Year {
		return false
	}
	if q.Category != "" && q.Category != filters.All && d.point.Category != q.Category {
		return false
	}
	if q.Start != nil && d.date.Before(*q.Start) {
		return false
	}
	// Projections run past any historical end date, so future points ignore End.
	if !d.point.IsFuture && q.End != nil && d.date.After(*q.End) {
		return false
	}
	return true
}

type accumulator struct {
	bucket        models.ForecastBucket
	actualSum     float64
	actualCount   int
	forecastSum   float64
	forecastCount int
}

// bucketByMonth averages actual and forecast per calendar month over the
// non-null contributions only. Label and future flag come from the first
// point of each month.
func bucketByMonth(points []datedPoint) []models.ForecastBucket {
	index := make(map[string]*accumulator)
	var order []*accumulator

	for _, d := range points {
		key := d.date.Format(bucketKeyLayout)
		acc, ok := index[key]
		if !ok {
			label := d.point.Month
			if label == "" {
				label = d.date.Format(models.MonthLabelLayout)
			}
			acc = &accumulator{bucket: models.ForecastBucket{
				Key:      key,
				Month:    label,
				IsFuture: d.point.IsFuture,
				SortTime: time.Date(d.date.Year(), d.date.Month(), 1, 0, 0, 0, 0, time.UTC),
			}}
			index[key] = acc
			order = append(order, acc)
		}
		if d.point.Actual != nil {
			acc.actualSum += *d.point.Actual
			acc.actualCount++
		}
		if d.point.Forecast != nil {
			acc.forecastSum += *d.point.Forecast
			acc.forecastCount++
		}
	}

	buckets := make([]models.ForecastBucket, 0, len(order))
	for _, acc := range order {
		b := acc.bucket
		if acc.actualCount > 0 {
			avg := acc.actualSum / float64(acc.actualCount)
			b.Actual = &avg
		}
		if acc.forecastCount > 0 {
			avg := acc.forecastSum / float64(acc.forecastCount)
			b.Forecast = &avg
		}
		buckets = append(buckets, b)
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].SortTime.Before(buckets[j].SortTime)
	})
	return buckets
}

func computeStats(buckets []models.ForecastBucket) models.ForecastStats {
	var historical, future []models.ForecastBucket
	for _, b := range buckets {
		if b.IsFuture {
			future = append(future, b)
		} else {
			historical = append(historical, b)
		}
	}

	stats := models.ForecastStats{HistoricalCount: len(historical)}

	if len(historical) > 0 {
		var total float64
		for _, b := range historical {
			if b.Actual != nil {
				total += *b.Actual
			}
		}
		stats.AvgHistorical = total / float64(len(historical))
	}

	if len(future) > 0 {
		next := future[0]
		stats.NextMonth = next.Month
		if next.Forecast != nil {
			v := *next.Forecast
			stats.NextMonthForecast = &v
		}
	}

	stats.GrowthPercentage = growth(historical, future)
	return stats
}

// growth is the change from the last historical actual to the first future
// forecast, in percent. It is 0 whenever either operand is missing or the
// last actual is 0.
func growth(historical, future []models.ForecastBucket) float64 {
	if len(historical) == 0 || len(future) == 0 {
		return 0
	}
	last := historical[len(historical)-1].Actual
	next := future[0].Forecast
	if last == nil || next == nil || *last == 0 {
		return 0
	}
	return (*next - *last) / *last * 100
}
