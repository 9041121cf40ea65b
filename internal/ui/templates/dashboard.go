package templates

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/a-h/templ"

	"sales-dashboard/internal/aggregate"
	"sales-dashboard/internal/filters"
	"sales-dashboard/internal/models"
)

// Element IDs patched by the raw-data stream.
const (
	FilterBarID  = "filter-bar"
	RawResultsID = "raw-results"
)

const dashboardHTML = `
{{define "dashboard"}}{{template "header" .Page}}` +
	`<section data-signals="{{.Signals}}" data-init="@get('/sse/raw')"><h1>Raw Data</h1>` +
	`{{with .Email}}<p class="muted">Signed in as {{.}}</p>{{end}}` +
	`{{template "filter-bar" .FilterBar}}{{template "raw-loading"}}</section>{{template "footer"}}{{end}}
{{define "filter-bar"}}<div id="` + FilterBarID + `" class="filters">` +
	`{{range .}}<label>{{.Label}}<select data-bind="filters.{{.Dimension}}" data-on-change="@get('/sse/raw')"{{if .Disabled}} disabled{{end}}>` +
	`{{range .Options}}{{template "option" .}}{{end}}</select></label>{{end}}` +
	`<label>From<input type="date" data-bind="start" data-on-change="@get('/sse/raw')"></label>` +
	`<label>To<input type="date" data-bind="end" data-on-change="@get('/sse/raw')"></label></div>{{end}}
{{define "raw-loading"}}<div id="` + RawResultsID + `"><div class="banner info">Loading sales data...</div></div>{{end}}
{{define "raw-error"}}<div id="` + RawResultsID + `"><div class="banner error">{{.}}</div></div>{{end}}
{{define "raw-results"}}<div id="` + RawResultsID + `"><div class="cards">` +
	`<div class="card"><div>Total Revenue</div><div class="value">{{money .TotalRevenue}}</div></div>` +
	`<div class="card"><div>Passengers</div><div class="value">{{whole .TotalPax}}</div></div>` +
	`<div class="card"><div>Transactions</div><div class="value">{{thousands .Count}}</div></div></div>` +
	`{{if not .Count}}<div class="banner info">No records match the selected filters.</div>{{end}}` +
	`<div class="charts">{{range .Charts}}{{template "chart" .}}{{end}}</div></div>{{end}}
{{define "chart"}}<article class="card" id="chart-{{.Name}}"><h3>{{.Title}}</h3>` +
	`{{range .Bars}}<div class="bar-row"><span>{{.Key}}</span><div class="bar" style="width:{{.Width}}%"></div><span>{{.Value}}</span></div>` +
	`{{else}}<p class="muted">No data</p>{{end}}</article>{{end}}
`

var dimensionLabels = map[filters.Dimension]string{
	filters.Year:        "Year",
	filters.Month:       "Month",
	filters.Product:     "Product",
	filters.Airline:     "Airline",
	filters.Supplier:    "Supplier",
	filters.SalesPerson: "Sales Person",
	filters.AgCompany:   "Agency Company",
	filters.City:        "City",
	filters.Sector:      "Sector",
	filters.TxType:      "Type",
	filters.Journey:     "Journey",
}

// DashboardData is the initial state of the raw-data page.
type DashboardData struct {
	Nav     []NavItem
	Email   string
	Filters filters.State
}

// RawSignals is the client signal shape of the raw-data page.
type RawSignals struct {
	Filters map[string]string `json:"filters"`
	Start   string            `json:"start"`
	End     string            `json:"end"`
}

// SignalsFor returns the signals describing state.
func SignalsFor(state filters.State) RawSignals {
	s := RawSignals{Filters: state.Values()}
	start, end := state.Range()
	if start != nil {
		s.Start = start.Format(filters.DateLayout)
	}
	if end != nil {
		s.End = end.Format(filters.DateLayout)
	}
	return s
}

type selectView struct {
	Label     string
	Dimension string
	Disabled  bool
	Options   []optionView
}

type chartView struct {
	Name  string
	Title string
	Bars  []barView
}

type barView struct {
	Key   string
	Width string
	Value string
}

type resultsView struct {
	TotalRevenue float64
	TotalPax     float64
	Count        int
	Charts       []chartView
}

// Dashboard renders the raw-data page. Options and results arrive over /sse/raw.
func Dashboard(data DashboardData) templ.Component {
	signals, err := json.Marshal(SignalsFor(data.Filters))
	if err != nil {
		return failed(err)
	}
	return view("dashboard", struct {
		Page      pageData
		Signals   string
		Email     string
		FilterBar []selectView
	}{
		Page:      pageData{Title: "Sales Dashboard", Nav: data.Nav},
		Signals:   string(signals),
		Email:     data.Email,
		FilterBar: filterSelects(nil, data.Filters),
	})
}

// FilterBar renders one select per dimension plus the date range inputs.
// A nil options map renders disabled selects while records load.
func FilterBar(options filters.Options, state filters.State) templ.Component {
	return view("filter-bar", filterSelects(options, state))
}

func filterSelects(options filters.Options, state filters.State) []selectView {
	selects := make([]selectView, 0, len(filters.Dimensions))
	for _, d := range filters.Dimensions {
		selected := state.Get(d)
		s := selectView{
			Label:     dimensionLabels[d],
			Dimension: string(d),
			Disabled:  options == nil,
			Options:   []optionView{{Value: filters.All, Label: "All", Selected: selected == filters.All}},
		}
		for _, v := range options[d] {
			if v == filters.All {
				continue
			}
			s.Options = append(s.Options, optionView{Value: v, Label: v, Selected: selected == v})
		}
		selects = append(selects, s)
	}
	return selects
}

// RawLoading is the results placeholder shown until records are loaded.
func RawLoading() templ.Component {
	return view("raw-loading", nil)
}

// RawError replaces the results with an error banner.
func RawError(message string) templ.Component {
	return view("raw-error", message)
}

// RawResults renders the totals and every chart group of a summary.
func RawResults(summary aggregate.Summary) templ.Component {
	v := resultsView{
		TotalRevenue: summary.TotalRevenue,
		TotalPax:     summary.TotalPax,
		Count:        summary.Count,
		Charts:       make([]chartView, 0, len(summary.Groups)),
	}
	for _, g := range summary.Groups {
		v.Charts = append(v.Charts, chartOf(g))
	}
	return view("raw-results", v)
}

// Chart renders a chart group as horizontal bars scaled to its largest value.
func Chart(g models.ChartGroup) templ.Component {
	return view("chart", chartOf(g))
}

func chartOf(g models.ChartGroup) chartView {
	peak := 0.0
	for _, pt := range g.Data {
		peak = math.Max(peak, math.Abs(pt.Value))
	}

	c := chartView{Name: g.Name, Title: g.Title, Bars: make([]barView, 0, len(g.Data))}
	for _, pt := range g.Data {
		width := 0.0
		if peak > 0 {
			width = math.Abs(pt.Value) / peak * 100
		}
		value := money(pt.Value)
		if g.YKey != string(models.MeasureRevenue) {
			value = whole(pt.Value)
		}
		c.Bars = append(c.Bars, barView{Key: pt.Key, Width: fmt.Sprintf("%.1f", width), Value: value})
	}
	return c
}
