// Package filters holds the dashboard filter state and the derivation of the
// values each filter may take.
package filters

import (
	"fmt"
	"maps"
	"strconv"
	"time"

	"sales-dashboard/internal/models"
)

// All is the sentinel meaning "no constraint on this dimension".
const All = "all"

// Dimension is one of the fixed filter keys of the raw-data view.
type Dimension string

const (
	Year        Dimension = "year"
	Month       Dimension = "month"
	Product     Dimension = "product"
	Airline     Dimension = "airline"
	Supplier    Dimension = "supplier"
	SalesPerson Dimension = "salesPerson"
	AgCompany   Dimension = "agCompany"
	City        Dimension = "city"
	Sector      Dimension = "sector"
	TxType      Dimension = "txType"
	Journey     Dimension = "journey"
)

// Dimensions is the closed set of filter dimensions, in display order.
var Dimensions = []Dimension{
	Year, Month, Product, Airline, Supplier, SalesPerson,
	AgCompany, City, Sector, TxType, Journey,
}

var dimensionFields = map[Dimension]models.Field{
	Product:     models.FieldProduct,
	Airline:     models.FieldAirline,
	Supplier:    models.FieldSupplier,
	SalesPerson: models.FieldSalesPerson,
	AgCompany:   models.FieldAgCompany,
	City:        models.FieldCity,
	Sector:      models.FieldSector,
	TxType:      models.FieldType,
	Journey:     models.FieldJourney,
}

// ParseDimension validates a dimension name.
func ParseDimension(name string) (Dimension, bool) {
	for _, d := range Dimensions {
		if string(d) == name {
			return d, true
		}
	}
	return "", false
}

// Value extracts the dimension value of tx. Year and month are derived from
// the transaction date; the rest read the matching record field.
func (d Dimension) Value(tx models.Transaction) (string, bool) {
	switch d {
	case Year:
		if !tx.HasDate {
			return "", false
		}
		return strconv.Itoa(tx.Date.Year()), true
	case Month:
		if !tx.HasDate {
			return "", false
		}
		return tx.Date.Format("Jan"), true
	}
	f, ok := dimensionFields[d]
	if !ok {
		return "", false
	}
	return tx.Value(f)
}

// State maps every dimension to a selected value plus an optional inclusive
// date range. It is a value type: With and WithRange return modified copies.
type State struct {
	values map[Dimension]string
	start  *time.Time
	end    *time.Time
}

// NewState returns a state with every dimension set to All and no date range.
func NewState() State {
	values := make(map[Dimension]string, len(Dimensions))
	for _, d := range Dimensions {
		values[d] = All
	}
	return State{values: values}
}

// Get returns the selection for d.
func (s State) Get(d Dimension) string {
	if v, ok := s.values[d]; ok {
		return v
	}
	return All
}

// With returns a copy of s with d set to value. An empty value resets d to All.
func (s State) With(d Dimension, value string) (State, error) {
	if _, ok := ParseDimension(string(d)); !ok {
		return s, fmt.Errorf("unknown filter dimension %q", d)
	}
	if value == "" {
		value = All
	}

	next := s.clone()
	next.values[d] = value
	return next, nil
}

// WithRange returns a copy of s with the given date range. Either bound may be nil.
func (s State) WithRange(start, end *time.Time) (State, error) {
	if start != nil && end != nil && day(*start).After(day(*end)) {
		return s, fmt.Errorf("date range start %s is after end %s",
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	next := s.clone()
	next.start = copyTime(start)
	next.end = copyTime(end)
	return next, nil
}

// Range returns the date range bounds; nil means unbounded.
func (s State) Range() (start, end *time.Time) {
	return copyTime(s.start), copyTime(s.end)
}

// Active returns the dimensions that carry a concrete selection.
func (s State) Active() map[Dimension]string {
	active := make(map[Dimension]string)
	for _, d := range Dimensions {
		if v := s.Get(d); v != All {
			active[d] = v
		}
	}
	return active
}

// Values returns every dimension selection keyed by name.
func (s State) Values() map[string]string {
	out := make(map[string]string, len(Dimensions))
	for _, d := range Dimensions {
		out[string(d)] = s.Get(d)
	}
	return out
}

// Equal reports whether two states select the same records.
func (s State) Equal(o State) bool {
	for _, d := range Dimensions {
		if s.Get(d) != o.Get(d) {
			return false
		}
	}
	return timeEqual(s.start, o.start) && timeEqual(s.end, o.end)
}

// Matches reports whether tx satisfies every concrete selection and the date range.
func (s State) Matches(tx models.Transaction) bool {
	for _, d := range Dimensions {
		want := s.Get(d)
		if want == All {
			continue
		}
		got, ok := d.Value(tx)
		if !ok || got != want {
			return false
		}
	}

	if s.start == nil && s.end == nil {
		return true
	}
	if !tx.HasDate {
		return false
	}
	date := day(tx.Date)
	if s.start != nil && date.Before(day(*s.start)) {
		return false
	}
	if s.end != nil && date.After(day(*s.end)) {
		return false
	}
	return true
}

// Apply keeps the records matching s. The input slice is not modified.
func Apply(records []models.Transaction, s State) []models.Transaction {
	out := make([]models.Transaction, 0, len(records))
	for _, tx := range records {
		if s.Matches(tx) {
			out = append(out, tx)
		}
	}
	return out
}

func (s State) clone() State {
	values := make(map[Dimension]string, len(Dimensions))
	maps.Copy(values, s.values)
	for _, d := range Dimensions {
		if _, ok := values[d]; !ok {
			values[d] = All
		}
	}
	return State{values: values, start: s.start, end: s.end}
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return day(*a).Equal(day(*b))
}
