package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/models"
)

// SQLiteSource reads records from a local SQLite copy of the sales table.
// It also backs the CLI import command.
type SQLiteSource struct {
	db         *sql.DB
	table      string
	usersTable string
	logger     *slog.Logger
}

func NewSQLiteSource(cfg config.SourceConfig, logger *slog.Logger) (*SQLiteSource, error) {
	if cfg.SQLitePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.SQLitePath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: an in-memory database exists per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewSQLiteSourceFromDB(db, cfg.Table, cfg.UsersTable, logger), nil
}

// NewSQLiteSourceFromDB wraps an open database. The source closes it on Close.
func NewSQLiteSourceFromDB(db *sql.DB, table, usersTable string, logger *slog.Logger) *SQLiteSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteSource{
		db:         db,
		table:      table,
		usersTable: usersTable,
		logger:     logger.With("source", "sqlite"),
	}
}

func (s *SQLiteSource) Name() string { return "sqlite" }

func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the sales and users tables if they do not exist.
func (s *SQLiteSource) EnsureSchema(ctx context.Context) error {
	columns := make([]string, len(recordColumns))
	for i, name := range recordColumns {
		columns[i] = pgx.Identifier{name}.Sanitize() + " TEXT"
	}

	stmts := []string{
		"CREATE TABLE IF NOT EXISTS " + pgx.Identifier{s.table}.Sanitize() + " (" + strings.Join(columns, ", ") + ")",
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{"idx_" + s.table + "_sales_person"}.Sanitize() +
			" ON " + pgx.Identifier{s.table}.Sanitize() + ` ("Sales_Person")`,
	}
	if s.usersTable != "" {
		stmts = append(stmts, "CREATE TABLE IF NOT EXISTS "+pgx.Identifier{s.usersTable}.Sanitize()+
			` (id TEXT PRIMARY KEY, "Sales_Person" TEXT)`)
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Import appends records to the sales table in one transaction.
func (s *SQLiteSource) Import(ctx context.Context, records []models.Transaction) (int, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	columns := make([]string, len(recordColumns))
	for i, name := range recordColumns {
		columns[i] = pgx.Identifier{name}.Sanitize()
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(recordColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+pgx.Identifier{s.table}.Sanitize()+
		" ("+strings.Join(columns, ", ")+") VALUES ("+placeholders+")")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, record := range records {
		if _, err := stmt.ExecContext(ctx, rowValues(record)...); err != nil {
			return i, fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return len(records), nil
}

// AssignSalesPerson records the sales person on a user's profile.
func (s *SQLiteSource) AssignSalesPerson(ctx context.Context, subject, salesPerson string) error {
	if s.usersTable == "" {
		return fmt.Errorf("no users table configured")
	}
	_, err := s.db.ExecContext(ctx, "INSERT INTO "+pgx.Identifier{s.usersTable}.Sanitize()+
		` (id, "Sales_Person") VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET "Sales_Person" = excluded."Sales_Person"`,
		subject, salesPerson)
	if err != nil {
		return fmt.Errorf("failed to assign sales person: %w", err)
	}
	return nil
}

func (s *SQLiteSource) Load(ctx context.Context, scope Scope) ([]models.Transaction, error) {
	salesPerson := s.resolveSalesPerson(ctx, scope)

	query, args := selectRecords(s.table, salesPerson, "?")
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch raw data: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	records := make([]models.Transaction, 0, 1024)
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		raw := make(models.RawRecord, len(columns))
		for i, name := range columns {
			raw[name] = values[i]
		}
		records = append(records, models.FromRaw(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch raw data: %w", err)
	}
	return records, nil
}

func (s *SQLiteSource) resolveSalesPerson(ctx context.Context, scope Scope) string {
	fallback := strings.TrimSpace(scope.SalesPerson)
	if s.usersTable == "" || scope.Subject == "" {
		return fallback
	}

	var salesPerson sql.NullString
	err := s.db.QueryRowContext(ctx, selectProfile(s.usersTable, "?"), scope.Subject).Scan(&salesPerson)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fallback
	case err != nil:
		s.logger.Warn("failed to look up user profile", "subject", scope.Subject, "error", err)
		return fallback
	case strings.TrimSpace(salesPerson.String) == "":
		return fallback
	}
	return strings.TrimSpace(salesPerson.String)
}

func rowValues(tx models.Transaction) []any {
	var date any
	if tx.HasDate {
		date = tx.Date.Format("2006-01-02")
	}
	return []any{
		nullable(tx.TxID),
		date,
		nullable(tx.MonthLabel),
		tx.Revenue.String(),
		tx.Pax.String(),
		nullable(tx.Product),
		nullable(tx.Airline),
		nullable(tx.Supplier),
		nullable(tx.SalesPerson),
		nullable(tx.AgCompany),
		nullable(tx.City),
		nullable(tx.Sector),
		nullable(tx.Type),
		nullable(tx.Journey),
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
