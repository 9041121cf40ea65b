package aggregate

import (
	"sales-dashboard/internal/filters"
	"sales-dashboard/internal/models"
)

// Sort names the ordering a chart group applies to its series.
type Sort string

const (
	SortNone      Sort = ""
	SortValueDesc Sort = "value_desc"
	SortKey       Sort = "key"
)

// Spec is a fixed (groupKey, measure, mode) triple plus display metadata.
type Spec struct {
	Name    string
	Title   string
	GroupBy models.Field
	Measure models.Measure
	Mode    Mode
	Sort    Sort
	Chart   string
}

// DefaultChartGroups are the projections shown on the raw-data dashboard.
var DefaultChartGroups = []Spec{
	{Name: "TotalRevenueByMonth", Title: "Total Revenue by Month", GroupBy: models.FieldMonth, Measure: models.MeasureRevenue, Mode: ModeSum, Chart: "bar"},
	{Name: "TotalRevenueByAirline", Title: "Total Revenue by Airline", GroupBy: models.FieldAirline, Measure: models.MeasureRevenue, Mode: ModeSum, Sort: SortValueDesc, Chart: "bar"},
	{Name: "TotalRevenueByProduct", Title: "Total Revenue by Product", GroupBy: models.FieldProduct, Measure: models.MeasureRevenue, Mode: ModeSum, Chart: "bar"},
	{Name: "TotalRevenueBySupplier", Title: "Total Revenue by Supplier", GroupBy: models.FieldSupplier, Measure: models.MeasureRevenue, Mode: ModeSum, Chart: "bar"},
	{Name: "TotalRevenueByCity", Title: "Total Revenue by City", GroupBy: models.FieldCity, Measure: models.MeasureRevenue, Mode: ModeSum, Chart: "bar"},
	{Name: "TotalRevenueBySector", Title: "Total Revenue by Sector", GroupBy: models.FieldSector, Measure: models.MeasureRevenue, Mode: ModeSum, Sort: SortValueDesc, Chart: "bar"},
	{Name: "TotalRevenueByType", Title: "Total Revenue by Type", GroupBy: models.FieldType, Measure: models.MeasureRevenue, Mode: ModeSum, Chart: "bar"},
	{Name: "TotalRevenueByJourney", Title: "Total Revenue by Journey Type", GroupBy: models.FieldJourney, Measure: models.MeasureRevenue, Mode: ModeSum, Chart: "bar"},
	{Name: "TotalRevenueBySalesPerson", Title: "Total Revenue by Sales Person", GroupBy: models.FieldSalesPerson, Measure: models.MeasureRevenue, Mode: ModeSum, Sort: SortValueDesc, Chart: "bar"},
	{Name: "TotalRevenueByAgCompany", Title: "Total Revenue by Agency Company", GroupBy: models.FieldAgCompany, Measure: models.MeasureRevenue, Mode: ModeSum, Sort: SortValueDesc, Chart: "bar"},
	{Name: "PassengersByAirline", Title: "Passengers by Airline", GroupBy: models.FieldAirline, Measure: models.MeasurePax, Mode: ModeSum, Sort: SortValueDesc, Chart: "bar"},
	{Name: "TransactionsByProduct", Title: "Transactions by Product", GroupBy: models.FieldProduct, Mode: ModeCount, Sort: SortValueDesc, Chart: "bar"},
}

// FindSpec looks up a chart group by name.
func FindSpec(specs []Spec, name string) (Spec, bool) {
	for _, s := range specs {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}

// Build applies every spec to the same, already filtered, record set.
func Build(records []models.Transaction, specs []Spec) []models.ChartGroup {
	groups := make([]models.ChartGroup, 0, len(specs))
	for _, spec := range specs {
		points := GroupAndAggregate(records, spec.GroupBy, spec.Measure, spec.Mode)
		switch spec.Sort {
		case SortValueDesc:
			SortByValueDesc(points)
		case SortKey:
			SortByKey(points)
		}

		yKey := string(spec.Measure)
		if spec.Mode == ModeCount {
			yKey = "Count"
		}
		groups = append(groups, models.ChartGroup{
			Name:  spec.Name,
			Title: spec.Title,
			XKey:  string(spec.GroupBy),
			YKey:  yKey,
			Type:  spec.Chart,
			Data:  points,
		})
	}
	return groups
}

// Summary is everything the raw-data view derives from one filter pass.
type Summary struct {
	Count        int                 `json:"count"`
	TotalRevenue float64             `json:"total_revenue"`
	TotalPax     float64             `json:"total_pax"`
	Groups       []models.ChartGroup `json:"groups"`
}

// Summarize filters records once and builds totals and chart groups from the result.
func Summarize(records []models.Transaction, state filters.State, specs []Spec) Summary {
	filtered := filters.Apply(records, state)
	return Summary{
		Count:        len(filtered),
		TotalRevenue: Total(filtered, models.MeasureRevenue).InexactFloat64(),
		TotalPax:     Total(filtered, models.MeasurePax).InexactFloat64(),
		Groups:       Build(filtered, specs),
	}
}
