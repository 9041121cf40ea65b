package templates

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/a-h/templ"

	"sales-dashboard/internal/dimfilter"
	"sales-dashboard/internal/filters"
	"sales-dashboard/internal/forecast"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/services"
)

// ForecastPanelID is the element patched by the forecast stream.
const ForecastPanelID = "forecast-panel"

const forecastHTML = `
{{define "forecast-page"}}{{template "header" .Page}}<section data-signals="{{.Signals}}"><h1>Forecast</h1><div class="filters">` +
	`<label>Dimension<select data-bind="dimension" data-on-change="@post('/sse/forecast/dimension')">` +
	`{{range .Dimensions}}{{template "option" .}}{{end}}</select></label>` +
	`<label>Value<input type="text" list="dimension-values" data-bind="value" data-on-input="@post('/sse/forecast/value')"></label>` +
	`<label>Horizon<select data-bind="months" data-on-change="@post('/sse/forecast/query')">` +
	`{{range .Horizons}}{{template "option" .}}{{end}}</select></label>` +
	`<label>From<input type="date" data-bind="start" data-on-change="@post('/sse/forecast/query')"></label>` +
	`<label>To<input type="date" data-bind="end" data-on-change="@post('/sse/forecast/query')"></label></div>` +
	`<div data-init="@get('/sse/forecast')">{{template "forecast-panel" .Panel}}</div></section>{{template "footer"}}{{end}}
{{define "forecast-panel"}}<div id="` + ForecastPanelID + `"><datalist id="dimension-values">` +
	`{{range .Values}}<option value="{{.}}"></option>{{end}}</datalist>` +
	`{{range .Banners}}<div class="banner {{.Class}}">{{.Text}}</div>{{end}}` +
	`{{with .Body}}{{template "forecast-body" .}}{{end}}</div>{{end}}
{{define "forecast-body"}}<div class="filters">` +
	`<label>Year<select data-bind="year" data-on-change="@post('/sse/forecast/query')">{{range .Years}}{{template "option" .}}{{end}}</select></label>` +
	`{{if .Categories}}<label>Category<select data-bind="category" data-on-change="@post('/sse/forecast/query')">` +
	`{{range .Categories}}{{template "option" .}}{{end}}</select></label>{{end}}</div>` +
	`<div class="cards"><div class="card"><div>Average Historical</div><div class="value">{{money .Stats.AvgHistorical}}</div>` +
	`<div class="muted">{{.Stats.HistoricalCount}} months</div></div>` +
	`<div class="card"><div>Next Month {{.Stats.NextMonth}}</div><div class="value">{{.NextForecast}}</div></div>` +
	`<div class="card"><div>Growth</div><div class="value {{.GrowthClass}}">{{printf "%+.1f%%" .Stats.GrowthPercentage}}</div></div></div>` +
	`{{if .Rows}}<table><thead><tr><th>Month</th><th>Actual</th><th>Forecast</th><th></th></tr></thead><tbody>` +
	`{{range .Rows}}<tr><td>{{.Month}}</td><td>{{.Actual}}</td><td>{{.Forecast}}</td>` +
	`<td><div class="{{.Class}}" style="width:{{.Width}}%"></div></td></tr>{{end}}</tbody></table>` +
	`{{else}}<div class="banner info">No forecast data for the selected filters.</div>{{end}}{{end}}
`

// ForecastSignals is the client signal shape of the forecast page.
type ForecastSignals struct {
	Dimension string `json:"dimension"`
	Value     string `json:"value"`
	Months    int    `json:"months"`
	Year      string `json:"year"`
	Category  string `json:"category"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

// ForecastSignalsFor returns the signals describing a view and its query.
func ForecastSignalsFor(fv services.ForecastView, q forecast.Query) ForecastSignals {
	s := ForecastSignals{
		Dimension: fv.Filter.Dimension,
		Value:     fv.Filter.Pending,
		Months:    fv.Months,
		Year:      orAll(q.Year),
		Category:  orAll(q.Category),
	}
	if s.Dimension == "" {
		s.Dimension = dimfilter.Overall
	}
	if s.Value == "" {
		s.Value = fv.Filter.Value
	}
	if q.Start != nil {
		s.Start = q.Start.Format(filters.DateLayout)
	}
	if q.End != nil {
		s.End = q.End.Format(filters.DateLayout)
	}
	return s
}

// ForecastPageData is the initial state of the forecast page.
type ForecastPageData struct {
	Nav   []NavItem
	View  services.ForecastView
	Query forecast.Query
}

type banner struct {
	Class string
	Text  string
}

type panelView struct {
	Values  []string
	Banners []banner
	Body    *bodyView
}

type bodyView struct {
	Years        []optionView
	Categories   []optionView
	Stats        models.ForecastStats
	NextForecast string
	GrowthClass  string
	Rows         []bucketRow
}

type bucketRow struct {
	Month    string
	Actual   string
	Forecast string
	Class    string
	Width    string
}

// ForecastPage renders the forecast controls; the panel streams from /sse/forecast.
func ForecastPage(data ForecastPageData) templ.Component {
	signals, err := json.Marshal(ForecastSignalsFor(data.View, data.Query))
	if err != nil {
		return failed(err)
	}

	dimension := data.View.Filter.Dimension
	dimensions := []optionView{{Value: dimfilter.Overall, Label: "Overall", Selected: dimension == dimfilter.Overall}}
	for _, d := range forecast.ForecastDimensions {
		dimensions = append(dimensions, optionView{Value: d, Label: d, Selected: dimension == d})
	}

	horizons := make([]optionView, 0, len(forecast.HorizonChoices))
	for _, m := range forecast.HorizonChoices {
		horizons = append(horizons, optionView{Value: strconv.Itoa(m), Label: HorizonLabel(m), Selected: data.View.Months == m})
	}

	return view("forecast-page", struct {
		Page       pageData
		Signals    string
		Dimensions []optionView
		Horizons   []optionView
		Panel      panelView
	}{
		Page:       pageData{Title: "Sales Forecast", Nav: data.Nav},
		Signals:    string(signals),
		Dimensions: dimensions,
		Horizons:   horizons,
		Panel:      panelOf(data.View, data.Query),
	})
}

// ForecastPanel renders status, value suggestions, stats and the monthly table.
func ForecastPanel(fv services.ForecastView, q forecast.Query) templ.Component {
	return view("forecast-panel", panelOf(fv, q))
}

func panelOf(fv services.ForecastView, q forecast.Query) panelView {
	p := panelView{Values: fv.Filter.Options}

	switch {
	case fv.Filter.Err != "":
		p.Banners = append(p.Banners, banner{"error", fv.Filter.Err})
	case fv.Filter.Loading:
		p.Banners = append(p.Banners, banner{"info", fmt.Sprintf("Loading %s values...", fv.Filter.Dimension)})
	}

	switch fv.Status {
	case services.ForecastIdle, services.ForecastLoading:
		p.Banners = append(p.Banners, banner{"info", "Loading forecast..."})
	case services.ForecastAwaiting:
		p.Banners = append(p.Banners, banner{"info", fmt.Sprintf("Choose a %s value to see its forecast.", fv.Filter.Dimension)})
	case services.ForecastFailed:
		p.Banners = append(p.Banners, banner{"error", fv.Error})
	case services.ForecastReady:
		body := bodyOf(fv.Projection, q)
		p.Body = &body
	}
	return p
}

func bodyOf(proj models.Projection, q forecast.Query) bodyView {
	b := bodyView{
		Years:        []optionView{{Value: filters.All, Label: "All", Selected: orAll(q.Year) == filters.All}},
		Stats:        proj.Stats,
		NextForecast: "N/A",
		GrowthClass:  "positive",
	}
	for _, y := range proj.Years {
		v := strconv.Itoa(y)
		b.Years = append(b.Years, optionView{Value: v, Label: v, Selected: q.Year == v})
	}
	if len(proj.Categories) > 0 {
		b.Categories = []optionView{{Value: filters.All, Label: "All", Selected: orAll(q.Category) == filters.All}}
		for _, c := range proj.Categories {
			b.Categories = append(b.Categories, optionView{Value: c, Label: c, Selected: q.Category == c})
		}
	}
	if proj.Stats.NextMonthForecast != nil {
		b.NextForecast = money(*proj.Stats.NextMonthForecast)
	}
	if proj.Stats.GrowthPercentage < 0 {
		b.GrowthClass = "negative"
	}

	peak := 0.0
	for _, bucket := range proj.Buckets {
		peak = math.Max(peak, math.Max(deref(bucket.Actual), deref(bucket.Forecast)))
	}
	for _, bucket := range proj.Buckets {
		class, value := "bar", deref(bucket.Actual)
		if bucket.IsFuture || bucket.Actual == nil {
			class, value = "bar forecast", deref(bucket.Forecast)
		}
		width := 0.0
		if peak > 0 {
			width = math.Max(value/peak*100, 0)
		}
		b.Rows = append(b.Rows, bucketRow{
			Month:    bucket.Month,
			Actual:   optionalMoney(bucket.Actual),
			Forecast: optionalMoney(bucket.Forecast),
			Class:    class,
			Width:    fmt.Sprintf("%.1f", width),
		})
	}
	return b
}

func optionalMoney(v *float64) string {
	if v == nil {
		return "-"
	}
	return money(*v)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func orAll(s string) string {
	if s == "" {
		return filters.All
	}
	return s
}

// HorizonLabel formats a horizon for display.
func HorizonLabel(months int) string {
	return fmt.Sprintf("%d months", months)
}
