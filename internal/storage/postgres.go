package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/models"
)

// PostgresSource reads records from the sales table of a Postgres database
// and scopes them by the sales person on the user's profile row.
type PostgresSource struct {
	pool       *pgxpool.Pool
	table      string
	usersTable string
	logger     *slog.Logger
}

func NewPostgresSource(ctx context.Context, cfg config.SourceConfig, logger *slog.Logger) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewPostgresSourceFromPool(pool, cfg.Table, cfg.UsersTable, logger), nil
}

// NewPostgresSourceFromPool wraps an existing pool. The source takes
// ownership and closes it on Close.
func NewPostgresSourceFromPool(pool *pgxpool.Pool, table, usersTable string, logger *slog.Logger) *PostgresSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSource{
		pool:       pool,
		table:      table,
		usersTable: usersTable,
		logger:     logger.With("source", "postgres"),
	}
}

func (s *PostgresSource) Name() string { return "postgres" }

func (s *PostgresSource) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresSource) Load(ctx context.Context, scope Scope) ([]models.Transaction, error) {
	salesPerson := s.resolveSalesPerson(ctx, scope)

	query, args := selectRecords(s.table, salesPerson, "$1")
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch raw data: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	records := make([]models.Transaction, 0, 1024)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		raw := make(models.RawRecord, len(fields))
		for i, fd := range fields {
			raw[fd.Name] = values[i]
		}
		records = append(records, models.FromRaw(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch raw data: %w", err)
	}

	s.logger.Debug("records loaded",
		"records", len(records),
		"sales_person", salesPerson,
	)
	return records, nil
}

// resolveSalesPerson reads the sales person from the user's profile. A
// missing profile falls back to the scope's own value, which may be empty
// (all rows).
func (s *PostgresSource) resolveSalesPerson(ctx context.Context, scope Scope) string {
	fallback := strings.TrimSpace(scope.SalesPerson)
	if s.usersTable == "" || scope.Subject == "" {
		return fallback
	}

	var salesPerson *string
	err := s.pool.QueryRow(ctx, selectProfile(s.usersTable, "$1"), scope.Subject).Scan(&salesPerson)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		s.logger.Warn("no user profile found, falling back to session scope", "subject", scope.Subject)
		return fallback
	case err != nil:
		s.logger.Warn("failed to look up user profile", "subject", scope.Subject, "error", err)
		return fallback
	case salesPerson == nil || strings.TrimSpace(*salesPerson) == "":
		return fallback
	}
	return strings.TrimSpace(*salesPerson)
}
