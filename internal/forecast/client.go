// Package forecast talks to the external forecast service and reshapes its
// responses for display.
package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
)

const (
	forecastPath     = "/api/forecast"
	byDimensionPath  = "/api/forecast-by-dimension"
	uniqueValuesPath = "/api/dimensions/unique-values"

	maxErrorBody = 1 << 20

	defaultLookupTimeout = 30 * time.Second
)

// Client calls the forecast service on behalf of a session. Every call needs
// the session's bearer token; an empty token fails before any request is sent.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
	lookups singleflight.Group
}

func NewClient(cfg config.ForecastConfig, logger *slog.Logger) *Client {
	return NewClientWithHTTP(cfg.BaseURL, &http.Client{Timeout: cfg.Timeout}, logger)
}

func NewClientWithHTTP(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := httpClient.Timeout
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		timeout: timeout,
		logger:  logger,
	}
}

type forecastRequest struct {
	Months int `json:"months"`
}

type dimensionRequest struct {
	Months      int    `json:"months"`
	Dimension   string `json:"dimension"`
	FilterValue string `json:"filter_value"`
}

// Forecast fetches the overall forecast for the next months.
func (c *Client) Forecast(ctx context.Context, token string, months int) ([]models.ForecastPoint, error) {
	var points []models.ForecastPoint
	err := c.do(ctx, token, http.MethodPost, forecastPath, forecastRequest{Months: months}, &points, "forecast data")
	if err != nil {
		return nil, err
	}
	return points, nil
}

// ForecastByDimension fetches the forecast restricted to dimension == filterValue.
func (c *Client) ForecastByDimension(ctx context.Context, token string, months int, dimension, filterValue string) ([]models.ForecastPoint, error) {
	body := dimensionRequest{Months: months, Dimension: dimension, FilterValue: filterValue}

	var points []models.ForecastPoint
	if err := c.do(ctx, token, http.MethodPost, byDimensionPath, body, &points, "forecast by dimension"); err != nil {
		return nil, err
	}
	return points, nil
}

// UniqueValues lists the legal filter values of dimension. Concurrent lookups
// for the same dimension and token share one upstream request. The shared
// request outlives any single caller's cancellation; each caller stops
// waiting when its own ctx is done.
func (c *Client) UniqueValues(ctx context.Context, token, dimension string) ([]string, error) {
	path := uniqueValuesPath + "?dimension=" + url.QueryEscape(dimension)

	ch := c.lookups.DoChan(dimension+"\x00"+token, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		var values []string
		if err := c.do(shared, token, http.MethodGet, path, nil, &values, "unique dimension values"); err != nil {
			return nil, err
		}
		return values, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]string)), nil
	}
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

func (c *Client) do(ctx context.Context, token, method, path string, body, out any, what string) error {
	if token == "" {
		return errors.Unauthorized("No active session found. Please log in.")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.InternalWrap(err, "encode forecast request")
		}
		reader = bytes.NewReader(payload)
	}

	return observability.Trace(ctx, c.logger, method+" "+path, func(ctx context.Context, span *observability.Span) error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return errors.InternalWrap(err, "build forecast request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		if id := observability.GetRequestID(ctx); id != "" {
			req.Header.Set("X-Request-ID", id)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.UpstreamWrap(err, fmt.Sprintf("Failed to fetch %s: forecast service unreachable", what))
		}
		defer resp.Body.Close()

		span.SetTag("http.status_code", strconv.Itoa(resp.StatusCode))

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return c.statusError(resp, what)
		}

		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return errors.Malformed(fmt.Sprintf("Invalid data format for %s received from API.", what))
		}
		trimmed := bytes.TrimSpace(env.Data)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			return errors.Malformed(fmt.Sprintf("Invalid data format for %s received from API.", what))
		}
		if err := json.Unmarshal(trimmed, out); err != nil {
			return errors.Malformed(fmt.Sprintf("Invalid data format for %s received from API.", what))
		}
		return nil
	})
}

func (c *Client) statusError(resp *http.Response, what string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode == http.StatusUnauthorized {
		return errors.SessionExpired(fmt.Sprintf(
			"Authentication failed: invalid or expired token for %s. Please log in again.", what))
	}

	detail := extractDetail(raw)
	c.logger.Warn("forecast service returned error",
		"status", resp.StatusCode,
		"detail", detail,
		"operation", what,
	)
	return errors.Upstream(resp.StatusCode, detail)
}

// extractDetail pulls the "detail" field out of an error body. Non-string
// details (validation error lists) are returned as compact JSON.
func extractDetail(raw []byte) string {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(body.Detail, &text); err == nil {
		return text
	}
	if string(body.Detail) == "null" {
		return ""
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body.Detail); err != nil {
		return ""
	}
	return compact.String()
}
