package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"sales-dashboard/internal/models"
)

const (
	batchSize    = 10000
	maxWorkers   = 10
	cacheVersion = "v1"
)

// CSVSource reads records from a CSV export with a header row. Parsed
// records are kept in memory and in a gob cache until the file changes.
type CSVSource struct {
	path     string
	cacheDir string
	logger   *slog.Logger

	mu      sync.Mutex
	records []models.Transaction
	modTime time.Time

	recordsProcessed atomic.Int64
}

type cacheFile struct {
	LastModified time.Time
	Records      []models.Transaction
}

func NewCSVSource(path, cacheDir string, logger *slog.Logger) *CSVSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSource{
		path:     path,
		cacheDir: cacheDir,
		logger:   logger.With("source", "csv"),
	}
}

func (s *CSVSource) Name() string { return "csv" }

func (s *CSVSource) Close() error { return nil }

// Load returns the rows visible to scope.
func (s *CSVSource) Load(ctx context.Context, scope Scope) ([]models.Transaction, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return scope.Apply(all), nil
}

// RecordsProcessed is the number of rows parsed from the file by the last parse.
func (s *CSVSource) RecordsProcessed() int64 {
	return s.recordsProcessed.Load()
}

func (s *CSVSource) all(ctx context.Context) ([]models.Transaction, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("stat csv: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records != nil && !info.ModTime().After(s.modTime) {
		return s.records, nil
	}

	if cached, err := s.loadFromCache(); err == nil && info.ModTime().Before(cached.LastModified) {
		s.records, s.modTime = cached.Records, info.ModTime()
		s.logger.Info("loaded from cache", "records", len(cached.Records))
		return s.records, nil
	}

	start := time.Now()
	s.logger.Info("processing CSV file", "filename", s.path)

	records, err := s.parse(ctx)
	if err != nil {
		return nil, fmt.Errorf("process csv: %w", err)
	}

	if err := s.saveToCache(records); err != nil {
		s.logger.Warn("failed to save cache", "error", err)
	}

	s.records, s.modTime = records, info.ModTime()
	s.recordsProcessed.Store(int64(len(records)))

	duration := time.Since(start)
	s.logger.Info("csv processing complete",
		"records", len(records),
		"duration", duration,
		"rate", fmt.Sprintf("%.0f records/sec", float64(len(records))/duration.Seconds()))

	return records, nil
}

func (s *CSVSource) parse(ctx context.Context) ([]models.Transaction, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	return ParseCSV(ctx, file)
}

// ParseCSV reads a header row followed by records. Rows are normalised in
// parallel batches; output order matches file order.
func ParseCSV(ctx context.Context, r io.Reader) ([]models.Transaction, error) {
	reader := csv.NewReader(bufio.NewReaderSize(r, 1024*1024))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, name := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}

	var records []models.Transaction
	batch := make([][]string, 0, batchSize)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		batch = append(batch, row)
		if len(batch) >= batchSize {
			parsed, err := processBatch(ctx, header, batch)
			if err != nil {
				return nil, err
			}
			records = append(records, parsed...)
			batch = make([][]string, 0, batchSize)
		}
	}

	if len(batch) > 0 {
		parsed, err := processBatch(ctx, header, batch)
		if err != nil {
			return nil, err
		}
		records = append(records, parsed...)
	}

	if records == nil {
		records = []models.Transaction{}
	}
	return records, nil
}

func processBatch(ctx context.Context, header []string, batch [][]string) ([]models.Transaction, error) {
	out := make([]models.Transaction, len(batch))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	chunk := (len(batch) + maxWorkers - 1) / maxWorkers
	for lo := 0; lo < len(batch); lo += chunk {
		hi := min(lo+chunk, len(batch))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%1000 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				out[i] = models.FromRaw(rowToRaw(header, batch[i]))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func rowToRaw(header, row []string) models.RawRecord {
	raw := make(models.RawRecord, len(header))
	for i, name := range header {
		if i >= len(row) {
			break
		}
		if v := strings.TrimSpace(row[i]); v != "" {
			raw[name] = v
		}
	}
	return raw
}

// Cache management
func (s *CSVSource) getCacheFilename() string {
	name := strings.ReplaceAll(filepath.Clean(s.path), string(filepath.Separator), "_")
	return filepath.Join(s.cacheDir, fmt.Sprintf("%s_%s.gob", name, cacheVersion))
}

func (s *CSVSource) saveToCache(records []models.Transaction) error {
	if s.cacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.cacheDir, 0755); err != nil {
		return err
	}

	file, err := os.Create(s.getCacheFilename())
	if err != nil {
		return err
	}
	defer file.Close()

	return gob.NewEncoder(file).Encode(cacheFile{
		LastModified: time.Now(),
		Records:      records,
	})
}

func (s *CSVSource) loadFromCache() (*cacheFile, error) {
	if s.cacheDir == "" {
		return nil, os.ErrNotExist
	}
	file, err := os.Open(s.getCacheFilename())
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var data cacheFile
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
