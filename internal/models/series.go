package models

// SeriesPoint is one labeled value of an aggregated series.
type SeriesPoint struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// ChartGroup is one named projection of the filtered records, ready to plot.
type ChartGroup struct {
	Name  string        `json:"name"`
	Title string        `json:"title"`
	XKey  string        `json:"x_key"`
	YKey  string        `json:"y_key"`
	Type  string        `json:"type"`
	Data  []SeriesPoint `json:"data"`
}

// Total returns the sum of all point values.
func (g ChartGroup) Total() float64 {
	var sum float64
	for _, p := range g.Data {
		sum += p.Value
	}
	return sum
}
