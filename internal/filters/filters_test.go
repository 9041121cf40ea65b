package filters

import (
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleRecords() []models.Transaction {
	return []models.Transaction{
		{TxID: "1", Date: date(2024, 1, 5), HasDate: true, Airline: "Emirates", City: "Dubai", Revenue: decimal.NewFromInt(100)},
		{TxID: "2", Date: date(2024, 2, 11), HasDate: true, Airline: "Qatar", City: "Doha", Revenue: decimal.NewFromInt(50)},
		{TxID: "3", Date: date(2023, 12, 20), HasDate: true, Airline: "Emirates", City: "Dubai"},
		{TxID: "4", Airline: "Emirates"},
		{TxID: "5", Date: date(2009, 6, 1), HasDate: true},
	}
}

func ids(records []models.Transaction) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.TxID
	}
	return out
}

func TestNewState_AllDimensionsUnconstrained(t *testing.T) {
	s := NewState()
	for _, d := range Dimensions {
		assert.Equal(t, All, s.Get(d), d)
	}
	assert.Empty(t, s.Active())
	assert.Len(t, Apply(sampleRecords(), s), 5)
}

func TestState_WithReturnsCopy(t *testing.T) {
	base := NewState()
	next, err := base.With(Airline, "Emirates")
	require.NoError(t, err)

	assert.Equal(t, All, base.Get(Airline))
	assert.Equal(t, "Emirates", next.Get(Airline))
	assert.Equal(t, map[Dimension]string{Airline: "Emirates"}, next.Active())

	reset, err := next.With(Airline, "")
	require.NoError(t, err)
	assert.True(t, reset.Equal(base))

	_, err = base.With(Dimension("colour"), "red")
	assert.Error(t, err)
}

func TestState_WithRange(t *testing.T) {
	start, end := date(2024, 2, 1), date(2024, 1, 1)
	_, err := NewState().WithRange(&start, &end)
	assert.Error(t, err)

	s, err := NewState().WithRange(&end, &start)
	require.NoError(t, err)
	gotStart, gotEnd := s.Range()
	require.NotNil(t, gotStart)
	require.NotNil(t, gotEnd)
	assert.Equal(t, end, *gotStart)

	// Range hands out copies.
	*gotStart = date(1999, 1, 1)
	again, _ := s.Range()
	assert.Equal(t, end, *again)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		start  string
		end    string
		want   []string
	}{
		{name: "airline", values: map[string]string{"airline": "Emirates"}, want: []string{"1", "3", "4"}},
		{name: "year excludes undated", values: map[string]string{"year": "2024"}, want: []string{"1", "2"}},
		{name: "short month name", values: map[string]string{"month": "Dec"}, want: []string{"3"}},
		{name: "combined", values: map[string]string{"airline": "Emirates", "city": "Dubai", "year": "2023"}, want: []string{"3"}},
		{name: "range is inclusive by day", start: "2024-01-05", end: "2024-02-11", want: []string{"1", "2"}},
		{name: "open start", end: "2023-12-31", want: []string{"3", "5"}},
		{name: "no match", values: map[string]string{"city": "Paris"}, want: []string{}},
		{name: "case sensitive", values: map[string]string{"airline": "emirates"}, want: []string{}},
		{name: "no substring match", values: map[string]string{"airline": "Emir"}, want: []string{}},
		{name: "surrounding space is not trimmed", values: map[string]string{"city": " Dubai"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := FromMap(tt.values, tt.start, tt.end)
			require.NoError(t, err)

			once := Apply(sampleRecords(), s)
			assert.Equal(t, tt.want, ids(once))

			// Filtering an already filtered set changes nothing.
			assert.Equal(t, ids(once), ids(Apply(once, s)))
		})
	}
}

func TestApply_DoesNotModifyInput(t *testing.T) {
	records := sampleRecords()
	s, _ := NewState().With(Airline, "Qatar")
	_ = Apply(records, s)
	assert.Equal(t, ids(sampleRecords()), ids(records))
}

func TestFromMap_Errors(t *testing.T) {
	_, err := FromMap(map[string]string{"colour": "red"}, "", "")
	assert.ErrorContains(t, err, "unknown filter dimension")

	_, err = FromMap(nil, "05/01/2024", "")
	assert.ErrorContains(t, err, "invalid start date")

	_, err = FromMap(nil, "", "yesterday")
	assert.ErrorContains(t, err, "invalid end date")
}

func TestFromQuery_IgnoresUnknownParams(t *testing.T) {
	q := url.Values{}
	q.Set("airline", "Qatar")
	q.Set("groups", "TotalRevenueByCity")
	q.Set("start", "2024-01-01")

	s, err := FromQuery(q)
	require.NoError(t, err)
	assert.Equal(t, "Qatar", s.Get(Airline))
	start, end := s.Range()
	require.NotNil(t, start)
	assert.Nil(t, end)
}

func TestState_Values(t *testing.T) {
	s, _ := NewState().With(City, "Doha")
	values := s.Values()
	assert.Len(t, values, len(Dimensions))
	assert.Equal(t, "Doha", values["city"])
	assert.Equal(t, All, values["year"])
}

func TestDeriveOptions(t *testing.T) {
	records := sampleRecords()

	assert.Equal(t, []string{All, "2024", "2023", "2009"}, DeriveOptions(records, Year))
	assert.Equal(t, []string{All, "Emirates", "Qatar"}, DeriveOptions(records, Airline))
	assert.Equal(t, []string{All, "Dec", "Feb", "Jan", "Jun"}, DeriveOptions(records, Month))
	assert.Equal(t, []string{All}, DeriveOptions(records, Journey))
	assert.Equal(t, []string{All}, DeriveOptions(nil, City))
}

func TestCompareYearsDesc_Numeric(t *testing.T) {
	records := []models.Transaction{
		{Date: date(999, 1, 1), HasDate: true},
		{Date: date(2024, 1, 1), HasDate: true},
		{Date: date(10000, 1, 1), HasDate: true},
	}
	assert.Equal(t, []string{All, "10000", "2024", "999"}, DeriveOptions(records, Year))
}

func TestDeriveAll(t *testing.T) {
	opts := DeriveAll(sampleRecords())
	assert.Len(t, opts, len(Dimensions))

	names := opts.Names()
	assert.Equal(t, []string{All, "Doha", "Dubai"}, names["city"])
	assert.Contains(t, names, "salesPerson")
}
