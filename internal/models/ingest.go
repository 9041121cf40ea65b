package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is a flat record as delivered by a storage source.
type RawRecord map[string]any

// Source keys and the aliases different exports use for them.
var (
	txIDKeys    = []string{"Txid", "TxID", "TxId", "id"}
	dateKeys    = []string{"TxDate", "date", "Date"}
	revenueKeys = []string{"Revenue", "revenue"}
	paxKeys     = []string{"Pax No", "Pax_No", "PaxNo"}
)

var categoricalKeys = map[Field][]string{
	FieldMonth:       {"Month"},
	FieldProduct:     {"Product"},
	FieldAirline:     {"Airline"},
	FieldSupplier:    {"Supplier"},
	FieldSalesPerson: {"Sales_Person", "Sales Person"},
	FieldAgCompany:   {"Ag Company", "Ag_Company", "AgCompany"},
	FieldCity:        {"City"},
	FieldSector:      {"Sector"},
	FieldType:        {"Type"},
	FieldJourney:     {"Journey"},
}

// DateLayouts are tried in order when parsing TxDate strings.
var DateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
}

// MonthLabelLayout formats display month labels such as "Jan'24".
const MonthLabelLayout = "Jan'06"

// FromRaw validates a raw record into a Transaction. It never fails:
// unparsable numbers become zero and unparsable dates leave HasDate false.
func FromRaw(raw RawRecord) Transaction {
	tx := Transaction{
		TxID:    stringOf(lookup(raw, txIDKeys)),
		Revenue: CoerceNumber(lookup(raw, revenueKeys)),
		Pax:     CoerceNumber(lookup(raw, paxKeys)),
	}

	if date, ok := ParseDate(lookup(raw, dateKeys)); ok {
		tx.Date = date
		tx.HasDate = true
	}

	tx.MonthLabel = stringOf(lookup(raw, categoricalKeys[FieldMonth]))
	if tx.MonthLabel == "" && tx.HasDate {
		tx.MonthLabel = tx.Date.Format(MonthLabelLayout)
	}

	tx.Product = stringOf(lookup(raw, categoricalKeys[FieldProduct]))
	tx.Airline = stringOf(lookup(raw, categoricalKeys[FieldAirline]))
	tx.Supplier = stringOf(lookup(raw, categoricalKeys[FieldSupplier]))
	tx.SalesPerson = stringOf(lookup(raw, categoricalKeys[FieldSalesPerson]))
	tx.AgCompany = stringOf(lookup(raw, categoricalKeys[FieldAgCompany]))
	tx.City = stringOf(lookup(raw, categoricalKeys[FieldCity]))
	tx.Sector = stringOf(lookup(raw, categoricalKeys[FieldSector]))
	tx.Type = stringOf(lookup(raw, categoricalKeys[FieldType]))
	tx.Journey = stringOf(lookup(raw, categoricalKeys[FieldJourney]))

	return tx
}

// FromRawBatch converts every record in raw.
func FromRawBatch(raw []RawRecord) []Transaction {
	out := make([]Transaction, len(raw))
	for i, r := range raw {
		out[i] = FromRaw(r)
	}
	return out
}

func lookup(raw RawRecord, keys []string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// CoerceNumber converts v to a decimal. Strings may carry surrounding space
// and thousands separators. Anything unparsable, NaN or infinite is zero.
func CoerceNumber(v any) decimal.Decimal {
	switch n := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return n
	case float64:
		return fromFloat(n)
	case float32:
		return fromFloat(float64(n))
	case int:
		return decimal.NewFromInt(int64(n))
	case int32:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case json.Number:
		return parseDecimal(n.String())
	case string:
		return parseDecimal(n)
	case []byte:
		return parseDecimal(string(n))
	case driver.Valuer:
		inner, err := n.Value()
		if err != nil {
			return decimal.Zero
		}
		if _, loop := inner.(driver.Valuer); loop {
			return decimal.Zero
		}
		return CoerceNumber(inner)
	default:
		return parseDecimal(fmt.Sprint(n))
	}
}

func fromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

func parseDecimal(s string) decimal.Decimal {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseDate accepts time values and strings in any of DateLayouts.
func ParseDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		if d.IsZero() {
			return time.Time{}, false
		}
		return d, true
	case []byte:
		return ParseDate(string(d))
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range DateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func stringOf(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case []byte:
		return strings.TrimSpace(string(s))
	case time.Time:
		return s.Format("2006-01-02")
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}
