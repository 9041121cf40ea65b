package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/auth"
	"sales-dashboard/internal/forecast"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/services"
	"sales-dashboard/internal/storage"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var testSession = auth.Session{Subject: "user-1", Email: "ana@example.com", Token: "tok"}

type fakeSource struct {
	records []models.Transaction
	err     error
	release chan struct{}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Close() error { return nil }

func (f *fakeSource) Load(ctx context.Context, _ storage.Scope) ([]models.Transaction, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.records, f.err
}

type fakeForecasts struct {
	mu    sync.Mutex
	calls []forecast.Request
	err   error
}

func (f *fakeForecasts) Fetch(_ context.Context, _ string, req forecast.Request) ([]models.ForecastPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	actual := 100.0
	return []models.ForecastPoint{{Date: "2024-12-01", Month: "Dec'24", Actual: &actual}}, nil
}

func (f *fakeForecasts) Calls() []forecast.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]forecast.Request(nil), f.calls...)
}

type fakeValues struct {
	values map[string][]string
	err    error
}

func (f *fakeValues) UniqueValues(_ context.Context, _, dimension string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.values[dimension], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRecords() []models.Transaction {
	date := func(y int, m time.Month) time.Time { return time.Date(y, m, 10, 0, 0, 0, 0, time.UTC) }
	return []models.Transaction{
		{TxID: "1", Date: date(2024, 1), HasDate: true, Product: "A", Airline: "Emirates", Revenue: decimal.NewFromInt(10), Pax: decimal.NewFromInt(1)},
		{TxID: "2", Date: date(2024, 2), HasDate: true, Product: "B", Airline: "Qatar", Revenue: decimal.NewFromInt(20), Pax: decimal.NewFromInt(2)},
		{TxID: "3", Date: date(2023, 3), HasDate: true, Product: "A", Airline: "Emirates", Revenue: decimal.NewFromInt(5), Pax: decimal.NewFromInt(1)},
	}
}

type fixture struct {
	workspaces *services.Workspaces
	forecasts  *fakeForecasts
	values     *fakeValues
	source     *fakeSource
}

func newFixture(t *testing.T, src *fakeSource) *fixture {
	t.Helper()
	f := &fixture{
		forecasts: &fakeForecasts{},
		values:    &fakeValues{values: map[string][]string{"Airline": {"Emirates", "Qatar"}}},
		source:    src,
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.workspaces = services.NewWorkspaces(ctx, services.Deps{
		Source:         src,
		Forecasts:      f.forecasts,
		Values:         f.values,
		Debounce:       30 * time.Millisecond,
		DefaultHorizon: 6,
		Logger:         discardLogger(),
	}, time.Minute)
	t.Cleanup(func() {
		_ = f.workspaces.Close(context.Background())
		cancel()
	})
	return f
}

// readyWorkspace returns the test session's workspace once its records loaded.
func (f *fixture) readyWorkspace(t *testing.T) *services.Workspace {
	t.Helper()
	ws := f.workspaces.Get(testSession)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	_ = ws.Store().Wait(ctx)
	return ws
}

func withSession(r *http.Request) *http.Request {
	return r.WithContext(auth.WithSession(r.Context(), testSession))
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Success bool            `json:"success"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}
