package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sales-dashboard/internal/aggregate"
	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/filters"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/storage"
)

// LoadState is the lifecycle of a RecordStore.
type LoadState string

const (
	LoadLoading LoadState = "loading"
	LoadReady   LoadState = "ready"
	LoadFailed  LoadState = "failed"
)

// RecordStore holds the records visible to one session. It is filled once
// and read-only afterwards. Until loading finishes every view reports
// LoadLoading instead of an empty result.
type RecordStore struct {
	mu       sync.RWMutex
	state    LoadState
	records  []models.Transaction
	options  filters.Options
	err      error
	loadedAt time.Time
	duration time.Duration

	once       sync.Once
	loaded     chan struct{}
	loadedOnce sync.Once

	logger *slog.Logger
}

func NewRecordStore(logger *slog.Logger) *RecordStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordStore{
		state:  LoadLoading,
		loaded: make(chan struct{}),
		logger: logger,
	}
}

// Load fetches the records from src. Only the first call does any work;
// later calls return the outcome of the first.
func (s *RecordStore) Load(ctx context.Context, src storage.Source, scope storage.Scope) error {
	s.once.Do(func() {
		start := time.Now()
		records, err := src.Load(ctx, scope)
		if err != nil {
			s.fail(errors.Wrap(err, errors.CodeServiceUnavail, "Failed to fetch raw data"))
			return
		}
		s.setData(records, time.Since(start))

		s.logger.Info("records loaded",
			"source", src.Name(),
			"records", len(records),
			"duration", time.Since(start),
		)
	})
	<-s.loaded

	_, err := s.State()
	return err
}

// SetData fills the store directly. Later Load calls become no-ops.
func (s *RecordStore) SetData(records []models.Transaction) {
	s.once.Do(func() {})
	s.setData(records, 0)
}

func (s *RecordStore) setData(records []models.Transaction, duration time.Duration) {
	options := filters.DeriveAll(records)

	s.mu.Lock()
	s.records = records
	s.options = options
	s.state = LoadReady
	s.err = nil
	s.loadedAt = time.Now()
	s.duration = duration
	s.mu.Unlock()

	s.loadedOnce.Do(func() { close(s.loaded) })
}

func (s *RecordStore) fail(err error) {
	s.logger.Error("failed to load records", "error", err)

	s.mu.Lock()
	s.state = LoadFailed
	s.err = err
	s.mu.Unlock()

	s.loadedOnce.Do(func() { close(s.loaded) })
}

// Wait blocks until loading has finished or ctx is done.
func (s *RecordStore) Wait(ctx context.Context) error {
	select {
	case <-s.loaded:
		_, err := s.State()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports the load state and, for LoadFailed, the error.
func (s *RecordStore) State() (LoadState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.err
}

// Records returns the loaded records. The slice must not be modified.
func (s *RecordStore) Records() ([]models.Transaction, LoadState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records, s.state, s.err
}

// Options returns the filter options derived from the loaded records.
func (s *RecordStore) Options() (filters.Options, LoadState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.options, s.state, s.err
}

// Summarize filters the records with state and builds the chart groups.
func (s *RecordStore) Summarize(state filters.State, specs []aggregate.Spec) (aggregate.Summary, LoadState, error) {
	records, loadState, err := s.Records()
	if loadState != LoadReady {
		return aggregate.Summary{}, loadState, err
	}
	return aggregate.Summarize(records, state, specs), loadState, nil
}

// Utility method for monitoring
func (s *RecordStore) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"state":        s.state,
		"record_count": len(s.records),
	}
	if s.state == LoadReady {
		stats["loaded_at"] = s.loadedAt
		stats["load_duration"] = s.duration.String()
		for d, values := range s.options {
			stats[string(d)+"_options"] = len(values) - 1
		}
	}
	if s.err != nil {
		stats["error"] = errors.UserMessage(s.err)
	}
	return stats
}
