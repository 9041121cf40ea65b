// Package dimfilter drives the forecast dimension filter: choosing a
// dimension, loading its legal values and committing a debounced value.
//
// All state lives in a single event loop (Controller.Run). Debounce timers and
// value fetches run outside the loop and post their results back as events,
// so a superseded fetch or timer can be recognised and dropped.
package dimfilter

import (
	"context"
	stderrors "errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sales-dashboard/internal/errors"
)

// DefaultDebounce is how long typed input must stay unchanged before it is committed.
const DefaultDebounce = 500 * time.Millisecond

// Overall is the dimension name that clears the dimension filter.
const Overall = "overall"

// ErrStopped is returned by dispatching methods once Run has returned.
var ErrStopped = stderrors.New("dimension filter stopped")

// Phase is the state of the filter machine.
type Phase int

const (
	// PhaseOverall: no dimension chosen; the overall forecast applies.
	PhaseOverall Phase = iota
	// PhaseAwaitingValue: a dimension is chosen but no value is committed.
	// The forecast is suppressed.
	PhaseAwaitingValue
	// PhaseValueSet: dimension and value are both committed.
	PhaseValueSet
)

func (p Phase) String() string {
	switch p {
	case PhaseOverall:
		return "overall"
	case PhaseAwaitingValue:
		return "awaiting_value"
	case PhaseValueSet:
		return "value_set"
	default:
		return "unknown"
	}
}

// LoadFunc fetches the legal values of a dimension.
type LoadFunc func(ctx context.Context, dimension string) ([]string, error)

// Snapshot is a copy of the controller state.
type Snapshot struct {
	Phase     Phase    `json:"-"`
	Dimension string   `json:"dimension"`
	Value     string   `json:"value"`
	Pending   string   `json:"pending"`
	Options   []string `json:"options"`
	Loading   bool     `json:"loading"`
	Err       string   `json:"error,omitempty"`
	// Commit increases by one each time a new (dimension, value) pair becomes
	// ready for a forecast request.
	Commit uint64 `json:"commit"`
}

// Ready reports whether a forecast should be requested for s.
func (s Snapshot) Ready() bool {
	return s.Phase != PhaseAwaitingValue
}

type event interface{}

type selectDimension struct{ dimension string }

type typeValue struct{ value string }

type valuesLoaded struct {
	gen       uint64
	dimension string
	values    []string
	err       error
}

type debounceElapsed struct {
	seq   uint64
	value string
}

// Controller is the dimension filter state machine. Create it with New, start
// Run in its own goroutine and feed it with SelectDimension and TypeValue.
type Controller struct {
	load     LoadFunc
	debounce time.Duration
	notify   func(Snapshot)
	logger   *slog.Logger

	events   chan event
	done     chan struct{}
	stopOnce sync.Once

	mu   sync.RWMutex
	snap Snapshot

	stale atomic.Int64

	// Owned by the Run goroutine.
	gen         uint64
	seq         uint64
	timer       *time.Timer
	cancelFetch context.CancelFunc
}

type Option func(*Controller)

func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithNotify registers fn to receive every state change. fn runs on the
// event loop and must not call back into the controller synchronously.
func WithNotify(fn func(Snapshot)) Option {
	return func(c *Controller) { c.notify = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(load LoadFunc, opts ...Option) *Controller {
	c := &Controller{
		load:     load,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		events:   make(chan event, 16),
		done:     make(chan struct{}),
		snap:     Snapshot{Phase: PhaseOverall, Dimension: Overall},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes events until ctx is cancelled. Pending timers and fetches
// are cancelled on return.
func (c *Controller) Run(ctx context.Context) {
	defer c.teardown()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// SelectDimension switches the filter to dimension. "overall" or an empty
// name clears it.
func (c *Controller) SelectDimension(ctx context.Context, dimension string) error {
	return c.dispatch(ctx, selectDimension{dimension: Normalize(dimension)})
}

// Normalize returns the dimension name as the controller stores it. Names
// are case-sensitive except for Overall, which an empty name also selects.
func Normalize(dimension string) string {
	dimension = strings.TrimSpace(dimension)
	if dimension == "" || strings.EqualFold(dimension, Overall) {
		return Overall
	}
	return dimension
}

// TypeValue records input for the current dimension. It is committed once no
// further input arrives for the debounce interval.
func (c *Controller) TypeValue(ctx context.Context, value string) error {
	return c.dispatch(ctx, typeValue{value: value})
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.clone()
}

// Stale returns how many value responses were discarded because the
// dimension had changed before they arrived.
func (c *Controller) Stale() int64 {
	return c.stale.Load()
}

func (c *Controller) dispatch(ctx context.Context, ev event) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}

	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers an event from a timer or fetch goroutine. It gives up once
// the loop has stopped.
func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) handle(ctx context.Context, ev event) {
	next := c.Snapshot()
	changed := false

	switch e := ev.(type) {
	case selectDimension:
		changed = c.onSelectDimension(ctx, &next, e)
	case typeValue:
		changed = c.onTypeValue(&next, e)
	case valuesLoaded:
		changed = c.onValuesLoaded(&next, e)
	case debounceElapsed:
		changed = c.onDebounceElapsed(&next, e)
	}

	if !changed {
		return
	}

	c.mu.Lock()
	c.snap = next
	c.mu.Unlock()

	if c.notify != nil {
		c.notify(next.clone())
	}
}

func (c *Controller) onSelectDimension(ctx context.Context, s *Snapshot, e selectDimension) bool {
	dimension := Normalize(e.dimension)
	if dimension == s.Dimension {
		return false
	}

	c.stopTimer()
	c.stopFetch()
	c.gen++
	c.seq++

	s.Dimension = dimension
	s.Value = ""
	s.Pending = ""
	s.Options = nil
	s.Err = ""

	if dimension == Overall {
		s.Phase = PhaseOverall
		s.Loading = false
		s.Commit++
		return true
	}

	s.Phase = PhaseAwaitingValue
	s.Loading = true

	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancelFetch = cancel
	go c.fetch(fetchCtx, c.gen, dimension)

	return true
}

func (c *Controller) fetch(ctx context.Context, gen uint64, dimension string) {
	values, err := c.load(ctx, dimension)
	c.post(valuesLoaded{gen: gen, dimension: dimension, values: values, err: err})
}

func (c *Controller) onValuesLoaded(s *Snapshot, e valuesLoaded) bool {
	if e.gen != c.gen {
		c.stale.Add(1)
		c.logger.Debug("discarding stale dimension values",
			"dimension", e.dimension,
			"current_dimension", s.Dimension,
		)
		return false
	}

	c.stopFetch()
	c.stopTimer()
	c.seq++
	s.Loading = false
	s.Pending = ""

	if e.err != nil {
		c.logger.Warn("failed to load dimension values",
			"dimension", e.dimension,
			"error", e.err,
		)
		s.Options = []string{}
		s.Err = loadErrorMessage(e.err)
		s.Value = ""
		s.Phase = PhaseAwaitingValue
		return true
	}

	s.Options = slices.Clone(e.values)
	if s.Options == nil {
		s.Options = []string{}
	}
	s.Err = ""

	if len(e.values) == 1 {
		s.Value = e.values[0]
		s.Pending = e.values[0]
		s.Phase = PhaseValueSet
		s.Commit++
		return true
	}

	s.Value = ""
	s.Phase = PhaseAwaitingValue
	return true
}

func (c *Controller) onTypeValue(s *Snapshot, e typeValue) bool {
	if s.Phase == PhaseOverall {
		return false
	}

	c.stopTimer()
	c.seq++
	seq, value := c.seq, e.value
	c.timer = time.AfterFunc(c.debounce, func() {
		c.post(debounceElapsed{seq: seq, value: value})
	})

	if s.Pending == value {
		return false
	}
	s.Pending = value
	return true
}

func (c *Controller) onDebounceElapsed(s *Snapshot, e debounceElapsed) bool {
	if e.seq != c.seq {
		return false
	}
	c.timer = nil

	value := strings.TrimSpace(e.value)
	if value == s.Value {
		return false
	}

	s.Value = value
	if value == "" {
		s.Phase = PhaseAwaitingValue
		return true
	}
	s.Phase = PhaseValueSet
	s.Commit++
	return true
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) stopFetch() {
	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}
}

func (c *Controller) teardown() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.stopTimer()
		c.stopFetch()
	})
}

func (s Snapshot) clone() Snapshot {
	s.Options = slices.Clone(s.Options)
	return s
}

func loadErrorMessage(err error) string {
	if errors.HasCode(err, errors.CodeSessionExpired) || errors.HasCode(err, errors.CodeUnauthorized) {
		return errors.UserMessage(err)
	}
	return "Failed to load filter options."
}
