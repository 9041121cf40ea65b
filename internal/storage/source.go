// Package storage reads raw sales records from the configured backend.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/models"
)

// Source delivers the sales records visible to a session. Returned slices
// must be treated as read-only; sources may share them between callers.
type Source interface {
	Name() string
	Load(ctx context.Context, scope Scope) ([]models.Transaction, error)
	Close() error
}

// Scope restricts a load to one user's rows. Subject is the session subject
// used to look up the user's profile; SalesPerson is the fallback when no
// profile exists. An empty scope sees every row.
type Scope struct {
	Subject     string
	SalesPerson string
}

// Apply keeps the records belonging to the scope's sales person.
func (s Scope) Apply(records []models.Transaction) []models.Transaction {
	salesPerson := strings.TrimSpace(s.SalesPerson)
	if salesPerson == "" {
		return records
	}
	out := make([]models.Transaction, 0, len(records)/4)
	for _, tx := range records {
		if tx.SalesPerson == salesPerson {
			out = append(out, tx)
		}
	}
	return out
}

// Open builds the source selected by cfg.Driver.
func Open(ctx context.Context, cfg config.SourceConfig, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case "postgres":
		return NewPostgresSource(ctx, cfg, logger)
	case "sqlite":
		return NewSQLiteSource(cfg, logger)
	case "csv", "":
		return NewCSVSource(cfg.CSVFile, cfg.CacheDir, logger), nil
	default:
		return nil, fmt.Errorf("unknown source driver %q", cfg.Driver)
	}
}

// recordColumns are the stored column names, in table order.
var recordColumns = []string{
	"Txid", "TxDate", "Month", "Revenue", "Pax No",
	"Product", "Airline", "Supplier", "Sales_Person", "Ag Company",
	"City", "Sector", "Type", "Journey",
}

// selectRecords builds the record query for table, filtered by sales person
// when one is given. placeholder is the driver's first bind parameter.
func selectRecords(table, salesPerson, placeholder string) (string, []any) {
	query := "SELECT * FROM " + pgx.Identifier{table}.Sanitize()
	if salesPerson == "" {
		return query, nil
	}
	return query + ` WHERE "Sales_Person" = ` + placeholder, []any{salesPerson}
}

// selectProfile builds the lookup of a user's sales person.
func selectProfile(usersTable, placeholder string) string {
	return `SELECT "Sales_Person" FROM ` + pgx.Identifier{usersTable}.Sanitize() +
		" WHERE id = " + placeholder + " LIMIT 1"
}
