// Package templates renders the dashboard pages and the fragments patched
// into them over SSE.
package templates

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"
)

const datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0/bundles/datastar.js"

var views = template.Must(template.New("views").Funcs(template.FuncMap{
	"money":     money,
	"whole":     whole,
	"thousands": thousands,
}).Parse(layoutHTML + dashboardHTML + forecastHTML + loginHTML))

const layoutHTML = `
{{define "header"}}<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">` +
	`<meta name="viewport" content="width=device-width, initial-scale=1"><title>{{.Title}}</title>` +
	`<script type="module" src="` + datastarScript + `"></script><style>` + styles + `</style></head><body>` +
	`<header class="topbar"><span class="brand">Sales Dashboard</span><nav>` +
	`{{range .Nav}}<a href="{{.Href}}"{{if .Active}} class="active"{{end}}>{{.Label}}</a>{{end}}` +
	`{{if .Nav}}<form method="post" action="/session/logout"><button type="submit" class="link">Log out</button></form>{{end}}` +
	`</nav></header><main>{{end}}
{{define "footer"}}</main></body></html>{{end}}
{{define "option"}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end}}
`

// NavItem is one entry of the page navigation.
type NavItem struct {
	Href   string
	Label  string
	Active bool
}

// Navigation returns the page links with active marked.
func Navigation(active string) []NavItem {
	items := []NavItem{
		{Href: "/", Label: "Raw Data"},
		{Href: "/forecast", Label: "Forecast"},
	}
	for i := range items {
		items[i].Active = items[i].Href == active
	}
	return items
}

type pageData struct {
	Title string
	Nav   []NavItem
}

type optionView struct {
	Value    string
	Label    string
	Selected bool
}

// view executes the named template as a component.
func view(name string, data any) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return views.ExecuteTemplate(w, name, data)
	})
}

func failed(err error) templ.Component {
	return templ.ComponentFunc(func(context.Context, io.Writer) error {
		return err
	})
}

// Render renders c to a string, for SSE element patches.
func Render(ctx context.Context, c templ.Component) (string, error) {
	var b strings.Builder
	if err := c.Render(ctx, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func money(v float64) string {
	return "$" + grouped(fmt.Sprintf("%.2f", v))
}

func whole(v float64) string {
	return grouped(strconv.FormatFloat(v, 'f', 0, 64))
}

func thousands(n int) string {
	return grouped(strconv.Itoa(n))
}

// grouped inserts thousands separators into a formatted decimal.
func grouped(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		return sign + b.String() + "." + frac
	}
	return sign + b.String()
}

const styles = `
body{font-family:system-ui,sans-serif;margin:0;background:#f4f6fb;color:#1b2236}
.topbar{display:flex;justify-content:space-between;align-items:center;background:#0D1F66;color:#fff;padding:.75rem 1.5rem}
.topbar nav{display:flex;gap:1rem;align-items:center}
.topbar a,.topbar .link{color:#cfd8ff;text-decoration:none;background:none;border:0;cursor:pointer;font:inherit}
.topbar a.active{color:#fff;font-weight:600}
main{padding:1.5rem;max-width:1200px;margin:auto}
.filters{display:grid;grid-template-columns:repeat(auto-fill,minmax(160px,1fr));gap:.75rem;margin-bottom:1rem}
.filters label{display:flex;flex-direction:column;font-size:.8rem;gap:.25rem}
.cards{display:flex;gap:1rem;margin-bottom:1rem}
.card{background:#fff;border-radius:8px;padding:1rem;flex:1;box-shadow:0 1px 3px rgba(0,0,0,.08)}
.card .value{font-size:1.5rem;font-weight:600}
.charts{display:grid;grid-template-columns:repeat(auto-fill,minmax(340px,1fr));gap:1rem}
.bar-row{display:grid;grid-template-columns:120px 1fr 110px;gap:.5rem;align-items:center;font-size:.8rem}
.bar{background:#3b5bdb;height:10px;border-radius:4px}
.bar.forecast{background:#f08c00}
.banner{padding:.75rem 1rem;border-radius:6px;margin-bottom:1rem}
.banner.error{background:#ffe3e3;color:#a61e1e}
.banner.info{background:#e7f5ff;color:#1864ab}
.positive{color:#2b8a3e}.negative{color:#c92a2a}.muted{color:#868e96}
table{width:100%;border-collapse:collapse;background:#fff}
th,td{padding:.4rem .6rem;border-bottom:1px solid #e9ecef;text-align:left;font-size:.85rem}
`
