package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
)

const (
	DefaultHorizon = 6
	MinHorizon     = 1
	MaxHorizon     = 36

	// Overall is the dimension value that selects the unfiltered forecast.
	Overall = "overall"
)

// HorizonChoices are the horizons offered by the dashboard.
var HorizonChoices = []int{3, 6, 12, 18, 24}

// ForecastDimensions are the dimensions the forecast service can split by,
// in the order they are offered.
var ForecastDimensions = []string{
	"Sector",
	"Airline",
	"Ag Company",
	"Product",
	"Supplier",
	"City",
	"Type",
	"Journey",
	"Sales_Person",
}

// Fetcher is the part of Client the projector needs.
type Fetcher interface {
	Forecast(ctx context.Context, token string, months int) ([]models.ForecastPoint, error)
	ForecastByDimension(ctx context.Context, token string, months int, dimension, filterValue string) ([]models.ForecastPoint, error)
}

// Request describes one projection.
type Request struct {
	Months    int
	Dimension string
	Value     string
	Query     Query
}

// Overall reports whether r asks for the unfiltered forecast.
func (r Request) Overall() bool {
	return r.Dimension == "" || strings.EqualFold(r.Dimension, Overall)
}

// Projector fetches forecasts and reshapes them.
type Projector struct {
	fetcher Fetcher
	logger  *slog.Logger
}

func NewProjector(fetcher Fetcher, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{fetcher: fetcher, logger: logger}
}

// ValidateHorizon checks that months is within MinHorizon..MaxHorizon.
func ValidateHorizon(months int) error {
	if months < MinHorizon || months > MaxHorizon {
		return errors.Validation(fmt.Sprintf("forecast horizon must be between %d and %d months, got %d",
			MinHorizon, MaxHorizon, months))
	}
	return nil
}

// Project fetches the forecast described by req and reshapes it with req.Query.
// A dimension without a value is rejected before any request is made.
func (p *Projector) Project(ctx context.Context, token string, req Request) (models.Projection, error) {
	points, err := p.Fetch(ctx, token, req)
	if err != nil {
		return models.Projection{}, err
	}

	projection := Project(points, req.Query)
	p.logger.Debug("forecast projected",
		"dimension", req.Dimension,
		"value", req.Value,
		"months", req.Months,
		"points", len(points),
		"buckets", len(projection.Buckets),
	)
	return projection, nil
}

// Fetch returns the raw points for req without reshaping them, so callers
// can re-project with a different Query without another request.
func (p *Projector) Fetch(ctx context.Context, token string, req Request) ([]models.ForecastPoint, error) {
	if err := ValidateHorizon(req.Months); err != nil {
		return nil, err
	}

	if req.Overall() {
		return p.fetcher.Forecast(ctx, token, req.Months)
	}
	if strings.TrimSpace(req.Value) == "" {
		return nil, errors.Validation(
			fmt.Sprintf("a value is required to forecast by %s", req.Dimension))
	}
	return p.fetcher.ForecastByDimension(ctx, token, req.Months, req.Dimension, req.Value)
}
