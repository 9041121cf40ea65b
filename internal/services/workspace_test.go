package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/auth"
	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/filters"
	"sales-dashboard/internal/forecast"
	"sales-dashboard/internal/models"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fetchCall struct {
	token string
	req   forecast.Request
}

type fakeForecasts struct {
	mu    sync.Mutex
	calls []fetchCall
	// gate, when set, blocks fetches for the given dimension value until closed.
	gate map[string]chan struct{}
	err  error
}

func (f *fakeForecasts) Fetch(ctx context.Context, token string, req forecast.Request) ([]models.ForecastPoint, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{token: token, req: req})
	gate := f.gate[req.Value]
	err := f.err
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	actual := 100.0
	return []models.ForecastPoint{
		{Date: "2024-12-01", Month: "Dec'24", Category: req.Value, Actual: &actual},
	}, nil
}

func (f *fakeForecasts) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

type fakeValues struct {
	values map[string][]string
}

func (f *fakeValues) UniqueValues(ctx context.Context, token, dimension string) ([]string, error) {
	return f.values[dimension], nil
}

func newTestWorkspace(t *testing.T, fc *fakeForecasts, src *fakeSource) *Workspace {
	t.Helper()
	deps := Deps{
		Forecasts: fc,
		Values: &fakeValues{values: map[string][]string{
			"Airline": {"Emirates", "Qatar"},
			"Sector":  {"Corporate"},
		}},
		Debounce:       40 * time.Millisecond,
		DefaultHorizon: 6,
		Logger:         discardLogger(),
	}
	if src != nil {
		deps.Source = src
	}
	w := NewWorkspace(context.Background(), auth.Session{Subject: "u1", Token: "tok"}, deps)
	t.Cleanup(w.Close)
	return w
}

func TestWorkspace_LoadsRecordsInBackground(t *testing.T) {
	src := &fakeSource{records: testRecords(), release: make(chan struct{})}
	w := newTestWorkspace(t, &fakeForecasts{}, src)

	_, state, _ := w.Summary(nil)
	assert.Equal(t, LoadLoading, state)

	close(src.release)
	require.NoError(t, w.Store().Wait(context.Background()))

	summary, state, err := w.Summary(nil)
	require.NoError(t, err)
	assert.Equal(t, LoadReady, state)
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, "u1", src.scopes[0].Subject)
}

func TestWorkspace_FiltersNotify(t *testing.T) {
	w := newTestWorkspace(t, &fakeForecasts{}, nil)
	ch, unsubscribe := w.Subscribe()
	defer unsubscribe()

	next, err := w.Filters().With(filters.Product, "A")
	require.NoError(t, err)
	w.SetFilters(next)

	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatal("no notification after filter change")
	}
	assert.Equal(t, "A", w.Filters().Get(filters.Product))
}

func TestWorkspace_OverallForecast(t *testing.T) {
	fc := &fakeForecasts{}
	w := newTestWorkspace(t, fc, nil)

	assert.Equal(t, ForecastIdle, w.Forecast().Status)
	w.EnsureForecast()

	require.Eventually(t, func() bool { return w.Forecast().Status == ForecastReady }, waitFor, tick)

	calls := fc.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "tok", calls[0].token)
	assert.True(t, calls[0].req.Overall())
	assert.Equal(t, 6, calls[0].req.Months)
	assert.Len(t, w.Forecast().Projection.Buckets, 1)
}

func TestWorkspace_DimensionAwaitsValue(t *testing.T) {
	fc := &fakeForecasts{}
	w := newTestWorkspace(t, fc, nil)
	w.EnsureForecast()
	require.Eventually(t, func() bool { return w.Forecast().Status == ForecastReady }, waitFor, tick)

	require.NoError(t, w.SelectDimension(context.Background(), "Airline"))
	require.Eventually(t, func() bool {
		v := w.Forecast()
		return v.Status == ForecastAwaiting && !v.Filter.Loading && v.Filter.Dimension == "Airline"
	}, waitFor, tick)
	assert.Empty(t, w.Forecast().Projection.Buckets)
	assert.Len(t, fc.Calls(), 1)

	require.NoError(t, w.TypeValue(context.Background(), "Qat"))
	require.NoError(t, w.TypeValue(context.Background(), "Qatar"))
	require.Eventually(t, func() bool { return w.Forecast().Status == ForecastReady }, waitFor, tick)

	calls := fc.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "Airline", calls[1].req.Dimension)
	assert.Equal(t, "Qatar", calls[1].req.Value)
}

func TestWorkspace_AutoSelectedValueFetches(t *testing.T) {
	fc := &fakeForecasts{}
	w := newTestWorkspace(t, fc, nil)

	require.NoError(t, w.SelectDimension(context.Background(), "Sector"))
	require.Eventually(t, func() bool { return w.Forecast().Status == ForecastReady }, waitFor, tick)

	calls := fc.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Corporate", calls[0].req.Value)
}

func TestWorkspace_StaleForecastDropped(t *testing.T) {
	slow := make(chan struct{})
	fc := &fakeForecasts{gate: map[string]chan struct{}{"": slow}}
	w := newTestWorkspace(t, fc, nil)

	w.EnsureForecast()
	require.Eventually(t, func() bool { return len(fc.Calls()) == 1 }, waitFor, tick)

	require.NoError(t, w.SelectDimension(context.Background(), "Sector"))
	require.Eventually(t, func() bool { return w.Forecast().Status == ForecastReady }, waitFor, tick)

	close(slow)
	require.Eventually(t, func() bool { return w.StaleForecasts() == 1 }, waitFor, tick)

	view := w.Forecast()
	require.Len(t, view.Projection.Categories, 1)
	assert.Equal(t, "Corporate", view.Projection.Categories[0])
}

func TestWorkspace_FailureIsVisible(t *testing.T) {
	fc := &fakeForecasts{err: errors.SessionExpired("Please log in again.")}
	w := newTestWorkspace(t, fc, nil)

	w.EnsureForecast()
	require.Eventually(t, func() bool { return w.Forecast().Status == ForecastFailed }, waitFor, tick)

	assert.Equal(t, "Please log in again.", w.Forecast().Error)
}

func TestWorkspace_QueryReprojectsWithoutFetching(t *testing.T) {
	fc := &fakeForecasts{}
	w := newTestWorkspace(t, fc, nil)
	w.EnsureForecast()
	require.Eventually(t, func() bool { return w.Forecast().Status == ForecastReady }, waitFor, tick)

	w.SetQuery(forecast.Query{Year: "2023"})
	assert.Empty(t, w.Forecast().Projection.Buckets)

	w.SetQuery(forecast.Query{Year: "2024"})
	assert.Len(t, w.Forecast().Projection.Buckets, 1)
	assert.Len(t, fc.Calls(), 1)
}

func TestWorkspace_SetHorizon(t *testing.T) {
	fc := &fakeForecasts{}
	w := newTestWorkspace(t, fc, nil)

	assert.Error(t, w.SetHorizon(0))
	require.NoError(t, w.SetHorizon(12))
	require.Eventually(t, func() bool { return w.Forecast().Status == ForecastReady }, waitFor, tick)

	calls := fc.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 12, calls[0].req.Months)
	assert.Equal(t, 12, w.Forecast().Months)
}

func TestWorkspaces_SweepKeepsSubscribedWorkspace(t *testing.T) {
	reg := NewWorkspaces(context.Background(), Deps{
		Forecasts: &fakeForecasts{},
		Values:    &fakeValues{},
		Logger:    discardLogger(),
	}, time.Minute)
	defer reg.Close(context.Background())

	w := reg.Get(auth.Session{Subject: "a", Token: "t1"})
	_, unsubscribe := w.Subscribe()

	assert.Zero(t, reg.Sweep(time.Now().Add(time.Hour)))
	assert.Equal(t, 1, reg.Len())
	select {
	case <-w.Done():
		t.Fatal("workspace with an open stream was closed")
	default:
	}

	unsubscribe()
	assert.Zero(t, reg.Sweep(time.Now()))
	assert.Equal(t, 1, reg.Sweep(time.Now().Add(2*time.Minute)))
	assert.Zero(t, reg.Len())
}

func TestWorkspaces_GetSweepDrop(t *testing.T) {
	reg := NewWorkspaces(context.Background(), Deps{
		Forecasts: &fakeForecasts{},
		Values:    &fakeValues{},
		Logger:    discardLogger(),
	}, time.Minute)
	defer reg.Close(context.Background())

	a := reg.Get(auth.Session{Subject: "a", Token: "t1"})
	assert.Same(t, a, reg.Get(auth.Session{Subject: "a", Token: "t2"}))
	assert.Equal(t, "t2", a.Session().Token)

	reg.Get(auth.Session{Subject: "b", Token: "t3"})
	assert.Equal(t, 2, reg.Len())

	assert.Zero(t, reg.Sweep(time.Now()))
	assert.Equal(t, 2, reg.Sweep(time.Now().Add(2*time.Minute)))
	assert.Zero(t, reg.Len())

	select {
	case <-a.Done():
	default:
		t.Fatal("swept workspace was not closed")
	}

	c := reg.Get(auth.Session{Subject: "c", Token: "t4"})
	reg.Drop("c")
	_, ok := reg.Lookup("c")
	assert.False(t, ok)
	<-c.Done()
}
