package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/filters"
	"sales-dashboard/internal/models"
)

func tx(airline, city string, revenue string, pax int64) models.Transaction {
	return models.Transaction{
		Date:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		HasDate: true,
		Airline: airline,
		City:    city,
		Revenue: decimal.RequireFromString(revenue),
		Pax:     decimal.NewFromInt(pax),
	}
}

func TestGroupAndAggregate_Sum(t *testing.T) {
	records := []models.Transaction{
		tx("Qatar", "Doha", "10.10", 1),
		tx("Emirates", "Dubai", "20.20", 2),
		tx("Qatar", "Doha", "0.20", 3),
		tx("", "Dubai", "5", 1),
	}

	got := GroupAndAggregate(records, models.FieldAirline, models.MeasureRevenue, ModeSum)
	assert.Equal(t, []models.SeriesPoint{
		{Key: "Qatar", Value: 10.3},
		{Key: "Emirates", Value: 20.2},
		{Key: models.UnknownKey, Value: 5},
	}, got)
}

func TestGroupAndAggregate_Count(t *testing.T) {
	records := []models.Transaction{
		tx("Qatar", "Doha", "1", 1),
		tx("Qatar", "Doha", "1", 1),
		tx("Emirates", "Dubai", "1", 1),
	}

	got := GroupAndAggregate(records, models.FieldCity, "", ModeCount)
	assert.Equal(t, []models.SeriesPoint{{Key: "Doha", Value: 2}, {Key: "Dubai", Value: 1}}, got)
}

func TestGroupAndAggregate_Empty(t *testing.T) {
	got := GroupAndAggregate(nil, models.FieldCity, models.MeasureRevenue, ModeSum)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSortByValueDesc_Stable(t *testing.T) {
	points := []models.SeriesPoint{{Key: "a", Value: 1}, {Key: "b", Value: 3}, {Key: "c", Value: 1}, {Key: "d", Value: 2}}
	SortByValueDesc(points)
	assert.Equal(t, []string{"b", "d", "a", "c"}, keys(points))

	SortByKey(points)
	assert.Equal(t, []string{"a", "b", "c", "d"}, keys(points))
}

func keys(points []models.SeriesPoint) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.Key
	}
	return out
}

func TestTotal_IsExact(t *testing.T) {
	records := make([]models.Transaction, 10)
	for i := range records {
		records[i] = tx("Qatar", "Doha", "0.1", 1)
	}
	assert.True(t, decimal.NewFromInt(1).Equal(Total(records, models.MeasureRevenue)))
	assert.True(t, decimal.NewFromInt(10).Equal(Total(records, models.MeasurePax)))
}

func TestBuild(t *testing.T) {
	records := []models.Transaction{
		tx("Qatar", "Doha", "10", 1),
		tx("Emirates", "Dubai", "30", 4),
	}

	groups := Build(records, DefaultChartGroups)
	require.Len(t, groups, len(DefaultChartGroups))

	byName := make(map[string]models.ChartGroup)
	for _, g := range groups {
		byName[g.Name] = g
	}

	airline := byName["TotalRevenueByAirline"]
	assert.Equal(t, "Airline", airline.XKey)
	assert.Equal(t, "Revenue", airline.YKey)
	assert.Equal(t, []string{"Emirates", "Qatar"}, keys(airline.Data))

	products := byName["TransactionsByProduct"]
	assert.Equal(t, "Count", products.YKey)
	assert.Equal(t, []models.SeriesPoint{{Key: models.UnknownKey, Value: 2}}, products.Data)

	assert.InDelta(t, 5, byName["PassengersByAirline"].Total(), 1e-9)
}

func TestFindSpec(t *testing.T) {
	spec, ok := FindSpec(DefaultChartGroups, "TotalRevenueByCity")
	require.True(t, ok)
	assert.Equal(t, models.FieldCity, spec.GroupBy)

	_, ok = FindSpec(DefaultChartGroups, "nope")
	assert.False(t, ok)
}

func TestSummarize(t *testing.T) {
	records := []models.Transaction{
		tx("Qatar", "Doha", "10", 1),
		tx("Emirates", "Dubai", "30.5", 4),
		tx("Emirates", "Abu Dhabi", "1", 1),
	}
	state, err := filters.NewState().With(filters.Airline, "Emirates")
	require.NoError(t, err)

	spec, _ := FindSpec(DefaultChartGroups, "TotalRevenueByCity")
	summary := Summarize(records, state, []Spec{spec})

	assert.Equal(t, 2, summary.Count)
	assert.InDelta(t, 31.5, summary.TotalRevenue, 1e-9)
	assert.InDelta(t, 5, summary.TotalPax, 1e-9)
	require.Len(t, summary.Groups, 1)
	assert.Equal(t, []string{"Dubai", "Abu Dhabi"}, keys(summary.Groups[0].Data))
}
