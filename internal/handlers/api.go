package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sales-dashboard/internal/aggregate"
	"sales-dashboard/internal/auth"
	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/filters"
	"sales-dashboard/internal/forecast"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/services"
)

// Projections fetches and reshapes forecasts. *forecast.Projector implements it.
type Projections interface {
	Project(ctx context.Context, token string, req forecast.Request) (models.Projection, error)
}

type APIHandlers struct {
	workspaces *services.Workspaces
	projector  Projections
	values     services.ValueLister
	logger     *slog.Logger
}

func NewAPIHandlers(workspaces *services.Workspaces, projector Projections, values services.ValueLister, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		workspaces: workspaces,
		projector:  projector,
		values:     values,
		logger:     logger,
	}
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   Version,
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.workspaces.Stats()
	if session, ok := auth.FromContext(r.Context()); ok {
		if ws, ok := h.workspaces.Lookup(session.Subject); ok {
			stats["records"] = ws.Store().Stats()
			stats["stale_forecasts"] = ws.StaleForecasts()
		}
	}

	errors.WriteSuccess(w, stats)
}

// HandleOptions returns the selectable values of every filter dimension.
// While the records are loading it answers 202 with a loading status.
func (h *APIHandlers) HandleOptions(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	options, state, err := ws.Store().Options()
	switch state {
	case services.LoadLoading:
		errors.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": string(state)})
	case services.LoadFailed:
		h.fail(w, r, err)
	default:
		errors.WriteSuccess(w, options.Names())
	}
}

// HandleSummary applies the query's filters and returns totals and chart
// groups. A "groups" parameter limits the result to the named groups.
func (h *APIHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	state, err := filters.FromQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, errors.BadRequestWrap(err, err.Error()))
		return
	}

	specs, err := chartSpecs(r.URL.Query().Get("groups"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	summary, loadState, err := ws.Store().Summarize(state, specs)
	switch loadState {
	case services.LoadLoading:
		errors.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": string(loadState)})
	case services.LoadFailed:
		h.fail(w, r, err)
	default:
		errors.WriteSuccess(w, summary)
	}
}

// HandleForecast fetches and reshapes a forecast in one request.
func (h *APIHandlers) HandleForecast(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		h.fail(w, r, errors.Unauthorized("No active session found. Please log in."))
		return
	}

	req, err := forecastRequest(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	projection, err := h.projector.Project(r.Context(), session.Token, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccess(w, projection)
}

// HandleUniqueValues proxies the forecast service's dimension values.
func (h *APIHandlers) HandleUniqueValues(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		h.fail(w, r, errors.Unauthorized("No active session found. Please log in."))
		return
	}

	dimension := strings.TrimSpace(r.URL.Query().Get("dimension"))
	if dimension == "" {
		h.fail(w, r, errors.Validation("dimension is required"))
		return
	}

	values, err := h.values.UniqueValues(r.Context(), session.Token, dimension)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccessWithHeaders(w, values, map[string]string{
		"Cache-Control": "private, max-age=300",
	})
}

func (h *APIHandlers) workspace(r *http.Request) (*services.Workspace, error) {
	return workspaceFor(r, h.workspaces)
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
}

func workspaceFor(r *http.Request, workspaces *services.Workspaces) (*services.Workspace, error) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		return nil, errors.Unauthorized("No active session found. Please log in.")
	}
	return workspaces.Get(session), nil
}

func chartSpecs(names string) ([]aggregate.Spec, error) {
	if names == "" {
		return aggregate.DefaultChartGroups, nil
	}
	var specs []aggregate.Spec
	for _, name := range strings.Split(names, ",") {
		spec, ok := aggregate.FindSpec(aggregate.DefaultChartGroups, strings.TrimSpace(name))
		if !ok {
			return nil, errors.BadRequest("unknown chart group: " + name)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func forecastRequest(q url.Values) (forecast.Request, error) {
	req := forecast.Request{
		Months:    forecast.DefaultHorizon,
		Dimension: strings.TrimSpace(q.Get("dimension")),
		Value:     strings.TrimSpace(q.Get("value")),
	}

	if raw := q.Get("months"); raw != "" {
		months, err := strconv.Atoi(raw)
		if err != nil {
			return req, errors.ValidationWrap(err, "months must be a whole number")
		}
		req.Months = months
	}

	query, err := forecastQuery(q.Get("year"), q.Get("category"), q.Get("start"), q.Get("end"))
	if err != nil {
		return req, err
	}
	req.Query = query
	return req, nil
}

func forecastQuery(year, category, start, end string) (forecast.Query, error) {
	q := forecast.Query{Year: year, Category: category}

	var err error
	if q.Start, err = parseDay(start); err != nil {
		return q, errors.BadRequestWrap(err, "invalid start date")
	}
	if q.End, err = parseDay(end); err != nil {
		return q, errors.BadRequestWrap(err, "invalid end date")
	}
	return q, nil
}

func parseDay(s string) (*time.Time, error) {
	if s = strings.TrimSpace(s); s == "" {
		return nil, nil
	}
	t, err := time.Parse(filters.DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
