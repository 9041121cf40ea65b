package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/models"
)

const sampleCSV = `Txid,TxDate,Month,Revenue,Pax No,Product,Airline,Supplier,Sales_Person,Ag Company,City,Sector,Type,Journey
T1,2024-01-15,Jan'24,"1,250.50",2,Flight,Emirates,Sabre,Ana,Acme,Dubai,Corporate,Intl,Return
T2,2024-02-03,Feb'24,abc,1,Hotel,,Amadeus,Ben,Globex,Paris,Leisure,Dom,OneWay
T3,,,300,,Flight,Qatar,Sabre,Ana,,,,,
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseCSV(t *testing.T) {
	records, err := ParseCSV(context.Background(), strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "T1", first.TxID)
	assert.True(t, first.Revenue.Equal(decimal.RequireFromString("1250.50")))
	assert.True(t, first.Pax.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, "Emirates", first.Airline)
	assert.Equal(t, "Acme", first.AgCompany)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), first.Date)

	second := records[1]
	assert.True(t, second.Revenue.IsZero())
	assert.Empty(t, second.Airline)

	third := records[2]
	assert.False(t, third.HasDate)
	assert.Empty(t, third.MonthLabel)
	assert.True(t, third.Pax.IsZero())
}

func TestParseCSV_PreservesOrderAcrossBatches(t *testing.T) {
	var b strings.Builder
	b.WriteString("Txid,Revenue\n")
	n := batchSize + 123
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "T%d,%d\n", i, i)
	}

	records, err := ParseCSV(context.Background(), strings.NewReader(b.String()))
	require.NoError(t, err)
	require.Len(t, records, n)

	for _, i := range []int{0, 1, batchSize - 1, batchSize, n - 1} {
		assert.Equal(t, fmt.Sprintf("T%d", i), records[i].TxID)
	}
}

func TestParseCSV_EmptyFile(t *testing.T) {
	_, err := ParseCSV(context.Background(), strings.NewReader(""))
	assert.Error(t, err)

	records, err := ParseCSV(context.Background(), strings.NewReader("Txid,Revenue\n"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ParseCSV(ctx, strings.NewReader(sampleCSV))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSVSource_LoadScopesAndCaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))
	cacheDir := filepath.Join(dir, "cache")

	src := NewCSVSource(path, cacheDir, discardLogger())
	ctx := context.Background()

	all, err := src.Load(ctx, Scope{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, int64(3), src.RecordsProcessed())

	mine, err := src.Load(ctx, Scope{Subject: "u1", SalesPerson: "Ana"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, tx := range mine {
		assert.Equal(t, "Ana", tx.SalesPerson)
	}

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	fresh := NewCSVSource(path, cacheDir, discardLogger())
	cached, err := fresh.Load(ctx, Scope{})
	require.NoError(t, err)
	require.Len(t, cached, 3)
	assert.Zero(t, fresh.RecordsProcessed())
	assert.True(t, cached[0].Revenue.Equal(all[0].Revenue))
	assert.Equal(t, all[0].Date, cached[0].Date)
}

func TestCSVSource_MissingFile(t *testing.T) {
	src := NewCSVSource(filepath.Join(t.TempDir(), "missing.csv"), "", discardLogger())

	_, err := src.Load(context.Background(), Scope{})
	assert.Error(t, err)
}

func TestScope_Apply(t *testing.T) {
	records := []models.Transaction{
		{TxID: "1", SalesPerson: "Ana"},
		{TxID: "2", SalesPerson: "Ben"},
		{TxID: "3"},
	}

	assert.Len(t, Scope{}.Apply(records), 3)
	assert.Len(t, Scope{SalesPerson: "  "}.Apply(records), 3)

	got := Scope{SalesPerson: " Ben "}.Apply(records)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].TxID)
}

func TestSelectRecords(t *testing.T) {
	query, args := selectRecords("sales_raw_data", "", "$1")
	assert.Equal(t, `SELECT * FROM "sales_raw_data"`, query)
	assert.Empty(t, args)

	query, args = selectRecords("sales_raw_data", "Ana", "$1")
	assert.Equal(t, `SELECT * FROM "sales_raw_data" WHERE "Sales_Person" = $1`, query)
	assert.Equal(t, []any{"Ana"}, args)

	assert.Equal(t, `SELECT "Sales_Person" FROM "users" WHERE id = ? LIMIT 1`, selectProfile("users", "?"))
}
