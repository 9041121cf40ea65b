package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/starfederation/datastar-go/datastar"

	"sales-dashboard/internal/aggregate"
	"sales-dashboard/internal/dimfilter"
	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/filters"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/services"
	"sales-dashboard/internal/ui/templates"
)

type SSEHandlers struct {
	workspaces *services.Workspaces
	logger     *slog.Logger
}

func NewSSEHandlers(workspaces *services.Workspaces, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		workspaces: workspaces,
		logger:     logger,
	}
}

// HandleRaw applies the filter signals and patches the filter bar and the
// results. While records are loading it patches a loading state first and
// keeps the stream open until the load finishes.
func (h *SSEHandlers) HandleRaw(w http.ResponseWriter, r *http.Request) {
	ws, err := workspaceFor(r, h.workspaces)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var signals templates.RawSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		h.fail(w, r, errors.BadRequestWrap(err, "Invalid signals"))
		return
	}

	state, stateErr := filters.FromMap(signals.Filters, signals.Start, signals.End)
	if stateErr == nil {
		ws.SetFilters(state)
	} else {
		state = ws.Filters()
	}

	disableWriteDeadline(w)
	sse := datastar.NewSSE(w, r)
	ctx := r.Context()

	if stateErr != nil {
		h.patch(ctx, sse, templates.RawError(stateErr.Error()))
		return
	}

	if loadState, _ := ws.Store().State(); loadState == services.LoadLoading {
		h.patch(ctx, sse, templates.FilterBar(nil, state))
		h.patch(ctx, sse, templates.RawLoading())
		if err := ws.Store().Wait(ctx); err != nil && ctx.Err() != nil {
			return
		}
	}

	h.patchRaw(ctx, sse, ws, state)
}

func (h *SSEHandlers) patchRaw(ctx context.Context, sse *datastar.ServerSentEventGenerator, ws *services.Workspace, state filters.State) {
	options, loadState, err := ws.Store().Options()
	if loadState == services.LoadFailed {
		h.patch(ctx, sse, templates.FilterBar(nil, state))
		h.patch(ctx, sse, templates.RawError(errors.UserMessage(err)))
		return
	}

	summary, _, err := ws.Store().Summarize(state, aggregate.DefaultChartGroups)
	if err != nil {
		h.patch(ctx, sse, templates.RawError(errors.UserMessage(err)))
		return
	}

	h.patch(ctx, sse, templates.FilterBar(options, state))
	h.patch(ctx, sse, templates.RawResults(summary))

	signals, err := json.Marshal(templates.SignalsFor(state))
	if err != nil {
		h.logger.Error("marshal raw signals", "error", err)
		return
	}
	sse.PatchSignals(signals)
}

// HandleForecastStream keeps the forecast panel in sync with the workspace
// until the client disconnects or the workspace is closed.
func (h *SSEHandlers) HandleForecastStream(w http.ResponseWriter, r *http.Request) {
	ws, err := workspaceFor(r, h.workspaces)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	updates, unsubscribe := ws.Subscribe()
	defer unsubscribe()

	disableWriteDeadline(w)
	sse := datastar.NewSSE(w, r)

	ws.EnsureForecast()
	if err := h.patchForecast(r.Context(), sse, ws); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ws.Done():
			return
		case <-updates:
			if err := h.patchForecast(r.Context(), sse, ws); err != nil {
				h.logger.Debug("forecast stream closed", "error", err)
				return
			}
		}
	}
}

func (h *SSEHandlers) patchForecast(ctx context.Context, sse *datastar.ServerSentEventGenerator, ws *services.Workspace) error {
	view := ws.Forecast()
	html, err := templates.Render(ctx, templates.ForecastPanel(view, ws.Query()))
	if err != nil {
		h.logger.Error("render forecast panel", "error", err)
		return err
	}
	if err := sse.PatchElements(html); err != nil {
		return err
	}

	signals, err := json.Marshal(map[string]any{
		"forecastStatus": view.Status,
		"valuesLoading":  view.Filter.Loading,
	})
	if err != nil {
		return err
	}
	return sse.PatchSignals(signals)
}

// HandleDimension selects the forecast dimension.
func (h *SSEHandlers) HandleDimension(w http.ResponseWriter, r *http.Request) {
	ws, signals, ok := h.forecastRequest(w, r)
	if !ok {
		return
	}

	previous := ws.Forecast().Filter.Dimension
	if err := ws.SelectDimension(r.Context(), signals.Dimension); err != nil {
		h.fail(w, r, dispatchError(err))
		return
	}

	sse := datastar.NewSSE(w, r)
	if dimfilter.Normalize(signals.Dimension) != previous {
		sse.PatchSignals([]byte(`{"value":""}`))
	}
}

// HandleValue forwards typed input; the workspace debounces it.
func (h *SSEHandlers) HandleValue(w http.ResponseWriter, r *http.Request) {
	ws, signals, ok := h.forecastRequest(w, r)
	if !ok {
		return
	}

	if err := ws.TypeValue(r.Context(), signals.Value); err != nil {
		h.fail(w, r, dispatchError(err))
		return
	}
	datastar.NewSSE(w, r)
}

// HandleQuery updates the horizon and the secondary forecast filters.
func (h *SSEHandlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ws, signals, ok := h.forecastRequest(w, r)
	if !ok {
		return
	}

	if signals.Months != 0 {
		if err := ws.SetHorizon(signals.Months); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	query, err := forecastQuery(signals.Year, signals.Category, signals.Start, signals.End)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ws.SetQuery(query)
	datastar.NewSSE(w, r)
}

func (h *SSEHandlers) forecastRequest(w http.ResponseWriter, r *http.Request) (*services.Workspace, templates.ForecastSignals, bool) {
	var signals templates.ForecastSignals

	ws, err := workspaceFor(r, h.workspaces)
	if err != nil {
		h.fail(w, r, err)
		return nil, signals, false
	}

	if err := datastar.ReadSignals(r, &signals); err != nil {
		h.fail(w, r, errors.BadRequestWrap(err, "Invalid signals"))
		return nil, signals, false
	}
	return ws, signals, true
}

func (h *SSEHandlers) patch(ctx context.Context, sse *datastar.ServerSentEventGenerator, c templ.Component) {
	html, err := templates.Render(ctx, c)
	if err != nil {
		h.logger.Error("render fragment", "error", err)
		return
	}
	if err := sse.PatchElements(html); err != nil {
		h.logger.Debug("patch elements", "error", err)
	}
}

func (h *SSEHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
}

func dispatchError(err error) error {
	if stderrors.Is(err, dimfilter.ErrStopped) {
		return errors.Wrap(err, errors.CodeServiceUnavail, "The forecast filter has stopped. Please reload the page.")
	}
	return err
}

// disableWriteDeadline lifts the server write timeout for long-lived streams.
func disableWriteDeadline(w http.ResponseWriter) {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
}
