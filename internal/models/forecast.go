package models

import "time"

// ForecastPoint is one dated value returned by the forecast service. Actual is
// usually set for past points and Forecast for future ones, but neither is
// guaranteed.
type ForecastPoint struct {
	Date     string   `json:"date"`
	Month    string   `json:"month"`
	Category string   `json:"category"`
	Actual   *float64 `json:"actual"`
	Forecast *float64 `json:"forecast"`
	IsFuture bool     `json:"is_future"`
}

// ForecastBucket is the per-month average of the points that survived filtering.
type ForecastBucket struct {
	Key      string    `json:"key"`
	Month    string    `json:"month"`
	Actual   *float64  `json:"actual"`
	Forecast *float64  `json:"forecast"`
	IsFuture bool      `json:"is_future"`
	SortTime time.Time `json:"-"`
}

// ForecastStats summarises a bucketed projection.
type ForecastStats struct {
	AvgHistorical     float64  `json:"avg_historical"`
	GrowthPercentage  float64  `json:"growth_percentage"`
	NextMonthForecast *float64 `json:"next_month_forecast"`
	NextMonth         string   `json:"next_month,omitempty"`
	HistoricalCount   int      `json:"historical_count"`
}

// Projection is the display-ready reshaping of a forecast response.
type Projection struct {
	Years      []int            `json:"years"`
	Categories []string         `json:"categories"`
	Points     []ForecastPoint  `json:"points"`
	Buckets    []ForecastBucket `json:"buckets"`
	Stats      ForecastStats    `json:"stats"`
}
