package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Field names a categorical attribute of a transaction. Values are the exact,
// case-sensitive keys used by the storage collaborator.
type Field string

const (
	FieldMonth       Field = "Month"
	FieldProduct     Field = "Product"
	FieldAirline     Field = "Airline"
	FieldSupplier    Field = "Supplier"
	FieldSalesPerson Field = "Sales_Person"
	FieldAgCompany   Field = "Ag Company"
	FieldCity        Field = "City"
	FieldSector      Field = "Sector"
	FieldType        Field = "Type"
	FieldJourney     Field = "Journey"
)

// Fields lists every categorical field in display order.
var Fields = []Field{
	FieldMonth,
	FieldProduct,
	FieldAirline,
	FieldSupplier,
	FieldSalesPerson,
	FieldAgCompany,
	FieldCity,
	FieldSector,
	FieldType,
	FieldJourney,
}

// Measure names a numeric attribute of a transaction.
type Measure string

const (
	MeasureRevenue Measure = "Revenue"
	MeasurePax     Measure = "Pax No"
)

// UnknownKey is the group key used when a record has no value for the grouping field.
const UnknownKey = "Unknown"

// Transaction is one validated sales event. It is built from a RawRecord by
// FromRaw and never mutated afterwards. Empty categorical fields mean the
// value was absent in the source.
type Transaction struct {
	TxID        string
	Date        time.Time
	HasDate     bool
	MonthLabel  string
	Revenue     decimal.Decimal
	Pax         decimal.Decimal
	Product     string
	Airline     string
	Supplier    string
	SalesPerson string
	AgCompany   string
	City        string
	Sector      string
	Type        string
	Journey     string
}

// Value returns the categorical value for f and whether it is present.
func (t Transaction) Value(f Field) (string, bool) {
	var v string
	switch f {
	case FieldMonth:
		v = t.MonthLabel
	case FieldProduct:
		v = t.Product
	case FieldAirline:
		v = t.Airline
	case FieldSupplier:
		v = t.Supplier
	case FieldSalesPerson:
		v = t.SalesPerson
	case FieldAgCompany:
		v = t.AgCompany
	case FieldCity:
		v = t.City
	case FieldSector:
		v = t.Sector
	case FieldType:
		v = t.Type
	case FieldJourney:
		v = t.Journey
	}
	return v, v != ""
}

// Amount returns the coerced value of measure m. Unknown measures are zero.
func (t Transaction) Amount(m Measure) decimal.Decimal {
	switch m {
	case MeasureRevenue:
		return t.Revenue
	case MeasurePax:
		return t.Pax
	default:
		return decimal.Zero
	}
}

// ParseField maps a field name (or its snake/space alias) to a Field.
func ParseField(name string) (Field, bool) {
	for _, f := range Fields {
		if string(f) == name {
			return f, true
		}
	}
	if f, ok := fieldAliases[name]; ok {
		return f, true
	}
	return "", false
}

var fieldAliases = map[string]Field{
	"Ag_Company":   FieldAgCompany,
	"AgCompany":    FieldAgCompany,
	"Sales Person": FieldSalesPerson,
	"SalesPerson":  FieldSalesPerson,
	"month":        FieldMonth,
	"product":      FieldProduct,
	"airline":      FieldAirline,
	"supplier":     FieldSupplier,
	"sales_person": FieldSalesPerson,
	"ag_company":   FieldAgCompany,
	"city":         FieldCity,
	"sector":       FieldSector,
	"type":         FieldType,
	"journey":      FieldJourney,
}
