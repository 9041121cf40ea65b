package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sales-dashboard/internal/aggregate"
	"sales-dashboard/internal/auth"
	"sales-dashboard/internal/dimfilter"
	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/filters"
	"sales-dashboard/internal/forecast"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/storage"
)

// PointFetcher fetches raw forecast points. *forecast.Projector implements it.
type PointFetcher interface {
	Fetch(ctx context.Context, token string, req forecast.Request) ([]models.ForecastPoint, error)
}

// ValueLister lists the legal values of a forecast dimension.
// *forecast.Client implements it.
type ValueLister interface {
	UniqueValues(ctx context.Context, token, dimension string) ([]string, error)
}

// Deps are the collaborators shared by every workspace.
type Deps struct {
	Source         storage.Source
	Forecasts      PointFetcher
	Values         ValueLister
	Debounce       time.Duration
	DefaultHorizon int
	LoadTimeout    time.Duration
	Logger         *slog.Logger
}

// ForecastStatus is the state of a workspace's forecast view.
type ForecastStatus string

const (
	ForecastIdle     ForecastStatus = "idle"
	ForecastLoading  ForecastStatus = "loading"
	ForecastReady    ForecastStatus = "ready"
	ForecastAwaiting ForecastStatus = "awaiting_value"
	ForecastFailed   ForecastStatus = "failed"
)

// ForecastView is what the forecast page renders.
type ForecastView struct {
	Status     ForecastStatus     `json:"status"`
	Months     int                `json:"months"`
	Filter     dimfilter.Snapshot `json:"filter"`
	Projection models.Projection  `json:"projection"`
	Error      string             `json:"error,omitempty"`
	Seq        uint64             `json:"seq"`
}

type forecastKey struct {
	phase     dimfilter.Phase
	dimension string
	value     string
}

func keyOf(s dimfilter.Snapshot) forecastKey {
	return forecastKey{phase: s.Phase, dimension: s.Dimension, value: s.Value}
}

// Workspace is the server-side state of one signed-in user: their records,
// raw-data filters and the forecast page.
type Workspace struct {
	store   *RecordStore
	filter  *dimfilter.Controller
	fetcher PointFetcher
	values  ValueLister
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	session  auth.Session
	state    filters.State
	months   int
	query    forecast.Query
	points   []models.ForecastPoint
	view     ForecastView
	seq      uint64
	lastKey  forecastKey
	lastUsed time.Time

	subMu   sync.Mutex
	subs    map[uint64]chan struct{}
	nextSub uint64

	stale atomic.Int64
}

// NewWorkspace starts loading the session's records in the background and
// starts the dimension filter loop. Both stop when ctx is cancelled or
// Close is called.
func NewWorkspace(ctx context.Context, session auth.Session, deps Deps) *Workspace {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("subject", session.Subject)

	months := deps.DefaultHorizon
	if months == 0 {
		months = forecast.DefaultHorizon
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Workspace{
		store:    NewRecordStore(logger),
		fetcher:  deps.Forecasts,
		values:   deps.Values,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		session:  session,
		state:    filters.NewState(),
		months:   months,
		lastUsed: time.Now(),
		subs:     make(map[uint64]chan struct{}),
	}
	w.view = ForecastView{Status: ForecastIdle, Months: months}

	w.filter = dimfilter.New(w.loadValues,
		dimfilter.WithDebounce(deps.Debounce),
		dimfilter.WithNotify(w.onFilterChange),
		dimfilter.WithLogger(logger),
	)
	w.view.Filter = w.filter.Snapshot()
	w.lastKey = keyOf(w.view.Filter)
	go w.filter.Run(ctx)

	if deps.Source != nil {
		go func() {
			loadCtx := ctx
			if deps.LoadTimeout > 0 {
				var cancel context.CancelFunc
				loadCtx, cancel = context.WithTimeout(ctx, deps.LoadTimeout)
				defer cancel()
			}
			scope := storage.Scope{Subject: session.Subject, SalesPerson: session.SalesPerson}
			_ = w.store.Load(loadCtx, deps.Source, scope)
			w.broadcast()
		}()
	}

	return w
}

// Store returns the session's record store.
func (w *Workspace) Store() *RecordStore {
	return w.store
}

// Session returns the session the workspace currently acts for.
func (w *Workspace) Session() auth.Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

// UpdateSession swaps in a refreshed token for the same user.
func (w *Workspace) UpdateSession(s auth.Session) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.session = s
}

// Filters returns the raw-data filter state.
func (w *Workspace) Filters() filters.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// SetFilters replaces the raw-data filter state.
func (w *Workspace) SetFilters(s filters.State) {
	w.mu.Lock()
	changed := !w.state.Equal(s)
	w.state = s
	w.lastUsed = time.Now()
	w.mu.Unlock()

	if changed {
		w.broadcast()
	}
}

// Summary derives the raw-data view for the current filters.
func (w *Workspace) Summary(specs []aggregate.Spec) (aggregate.Summary, LoadState, error) {
	return w.store.Summarize(w.Filters(), specs)
}

// SelectDimension forwards to the dimension filter.
func (w *Workspace) SelectDimension(ctx context.Context, dimension string) error {
	w.touch()
	return w.filter.SelectDimension(ctx, dimension)
}

// TypeValue forwards to the dimension filter.
func (w *Workspace) TypeValue(ctx context.Context, value string) error {
	w.touch()
	return w.filter.TypeValue(ctx, value)
}

// SetHorizon changes the forecast horizon and refetches.
func (w *Workspace) SetHorizon(months int) error {
	if err := forecast.ValidateHorizon(months); err != nil {
		return err
	}

	w.mu.Lock()
	w.lastUsed = time.Now()
	if months == w.months && w.view.Status != ForecastIdle {
		w.mu.Unlock()
		return nil
	}
	w.months = months
	w.view.Months = months
	w.refreshLocked(w.filter.Snapshot())
	w.mu.Unlock()

	w.broadcast()
	return nil
}

// SetQuery changes the secondary forecast filters. The last fetched points
// are reshaped again; nothing is refetched.
func (w *Workspace) SetQuery(q forecast.Query) {
	w.mu.Lock()
	w.lastUsed = time.Now()
	w.query = q
	if w.view.Status == ForecastReady || w.view.Status == ForecastAwaiting {
		w.view.Projection = forecast.Project(w.points, q)
	}
	w.mu.Unlock()

	w.broadcast()
}

// EnsureForecast starts the first forecast fetch if none has been made.
func (w *Workspace) EnsureForecast() {
	w.mu.Lock()
	started := w.view.Status == ForecastIdle
	if started {
		w.refreshLocked(w.filter.Snapshot())
	}
	w.mu.Unlock()

	if started {
		w.broadcast()
	}
}

// Forecast returns the current forecast view.
func (w *Workspace) Forecast() ForecastView {
	w.mu.Lock()
	defer w.mu.Unlock()
	view := w.view
	view.Filter = w.filter.Snapshot()
	return view
}

// Query returns the secondary forecast filters.
func (w *Workspace) Query() forecast.Query {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.query
}

// StaleForecasts counts forecast responses dropped because a newer request
// had been issued.
func (w *Workspace) StaleForecasts() int64 {
	return w.stale.Load()
}

func (w *Workspace) loadValues(ctx context.Context, dimension string) ([]string, error) {
	return w.values.UniqueValues(ctx, w.Session().Token, dimension)
}

// onFilterChange runs on the dimension filter loop.
func (w *Workspace) onFilterChange(snap dimfilter.Snapshot) {
	w.mu.Lock()
	w.view.Filter = snap
	if key := keyOf(snap); key != w.lastKey {
		w.refreshLocked(snap)
	}
	w.mu.Unlock()

	w.broadcast()
}

// refreshLocked issues a forecast request for snap. w.mu must be held.
func (w *Workspace) refreshLocked(snap dimfilter.Snapshot) {
	w.seq++
	seq := w.seq
	w.lastKey = keyOf(snap)
	w.view.Seq = seq
	w.view.Error = ""

	if !snap.Ready() {
		w.points = nil
		w.view.Status = ForecastAwaiting
		w.view.Projection = forecast.Project(nil, w.query)
		return
	}

	req := forecast.Request{Months: w.months, Value: snap.Value}
	if snap.Phase != dimfilter.PhaseOverall {
		req.Dimension = snap.Dimension
	}
	w.view.Status = ForecastLoading

	go w.fetchForecast(seq, w.session.Token, req)
}

func (w *Workspace) fetchForecast(seq uint64, token string, req forecast.Request) {
	points, err := w.fetcher.Fetch(w.ctx, token, req)

	w.mu.Lock()
	if seq != w.seq {
		w.mu.Unlock()
		w.stale.Add(1)
		w.logger.Debug("discarding stale forecast", "seq", seq)
		return
	}
	if err != nil && w.ctx.Err() != nil {
		w.mu.Unlock()
		return
	}

	if err != nil {
		w.logger.Warn("failed to load forecast data",
			"dimension", req.Dimension,
			"value", req.Value,
			"error", err,
		)
		w.points = nil
		w.view.Status = ForecastFailed
		w.view.Error = errors.UserMessage(err)
		w.view.Projection = forecast.Project(nil, w.query)
	} else {
		w.points = points
		w.view.Status = ForecastReady
		w.view.Projection = forecast.Project(points, w.query)
	}
	w.mu.Unlock()

	w.broadcast()
}

// Subscribe returns a channel that receives a value whenever the workspace
// changes. Slow readers miss intermediate notifications, never the last one.
func (w *Workspace) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	w.subMu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = ch
	w.subMu.Unlock()

	return ch, func() {
		w.subMu.Lock()
		delete(w.subs, id)
		w.subMu.Unlock()
		w.touch()
	}
}

func (w *Workspace) subscribers() int {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	return len(w.subs)
}

func (w *Workspace) broadcast() {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Done is closed when the workspace is closed.
func (w *Workspace) Done() <-chan struct{} {
	return w.ctx.Done()
}

// Close stops the filter loop and cancels in-flight requests.
func (w *Workspace) Close() {
	w.cancel()
}

func (w *Workspace) touch() {
	w.mu.Lock()
	w.lastUsed = time.Now()
	w.mu.Unlock()
}

// idleSince is zero while a stream is subscribed.
func (w *Workspace) idleSince(now time.Time) time.Duration {
	if w.subscribers() > 0 {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Sub(w.lastUsed)
}
