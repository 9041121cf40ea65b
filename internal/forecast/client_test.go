package forecast

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClientWithHTTP(srv.URL, srv.Client(), logger)
}

func TestClient_Forecast(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/forecast", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]int
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 6, body["months"])

		w.Write([]byte(`{"data":[{"date":"2024-12-01","month":"Dec'24","category":"Revenue","actual":10,"forecast":null,"is_future":false}]}`))
	})

	points, err := client.Forecast(context.Background(), "tok", 6)

	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Dec'24", points[0].Month)
	require.NotNil(t, points[0].Actual)
	assert.Equal(t, 10.0, *points[0].Actual)
	assert.Nil(t, points[0].Forecast)
}

func TestClient_ForecastByDimension(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/forecast-by-dimension", r.URL.Path)

		var body dimensionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, dimensionRequest{Months: 12, Dimension: "Airline", FilterValue: "Emirates"}, body)

		w.Write([]byte(`{"data":[]}`))
	})

	points, err := client.ForecastByDimension(context.Background(), "tok", 12, "Airline", "Emirates")

	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestClient_UniqueValues(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Ag Company", r.URL.Query().Get("dimension"))
		w.Write([]byte(`{"data":["Acme","Globex"]}`))
	})

	values, err := client.UniqueValues(context.Background(), "tok", "Ag Company")

	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "Globex"}, values)
}

func TestClient_UniqueValues_SharedLookupOutlivesCanceledCaller(t *testing.T) {
	var hits atomic.Int32
	arrived := make(chan struct{}, 2)
	release := make(chan struct{})
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case arrived <- struct{}{}:
		default:
		}
		<-release
		w.Write([]byte(`{"data":["Emirates","Qatar"]}`))
	})
	t.Cleanup(unblock)

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := client.UniqueValues(first, "tok", "Airline")
		firstErr <- err
	}()
	<-arrived

	type result struct {
		values []string
		err    error
	}
	second := make(chan result, 1)
	go func() {
		values, err := client.UniqueValues(context.Background(), "tok", "Airline")
		second <- result{values, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	unblock()
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, []string{"Emirates", "Qatar"}, got.values)
	assert.EqualValues(t, 1, hits.Load())
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCode   errors.ErrorCode
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "unauthorized means session expired",
			status:     http.StatusUnauthorized,
			body:       `{"detail":"Invalid token"}`,
			wantCode:   errors.CodeSessionExpired,
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Please log in again.",
		},
		{
			name:       "string detail",
			status:     http.StatusBadRequest,
			body:       `{"detail":"months must be positive"}`,
			wantCode:   errors.CodeUpstream,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "months must be positive",
		},
		{
			name:       "structured detail",
			status:     http.StatusUnprocessableEntity,
			body:       `{"detail": [{"loc": ["body","months"], "msg": "field required"}]}`,
			wantCode:   errors.CodeUpstream,
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    `[{"loc":["body","months"],"msg":"field required"}]`,
		},
		{
			name:       "no detail",
			status:     http.StatusInternalServerError,
			body:       `oops`,
			wantCode:   errors.CodeUpstream,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "HTTP error, status 500",
		},
		{
			name:     "missing data array",
			status:   http.StatusOK,
			body:     `{"result":[]}`,
			wantCode: errors.CodeMalformed,
			wantMsg:  "Invalid data format",
		},
		{
			name:     "data is not an array",
			status:   http.StatusOK,
			body:     `{"data":{"points":[]}}`,
			wantCode: errors.CodeMalformed,
			wantMsg:  "Invalid data format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.Forecast(context.Background(), "tok", 6)

			require.Error(t, err)
			var appErr *errors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Equal(t, tt.wantStatus, appErr.UpstreamStatus)
			assert.Contains(t, appErr.Message, tt.wantMsg)
		})
	}
}

func TestClient_NoTokenFailsLocally(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := client.Forecast(context.Background(), "", 6)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnauthorized))

	_, err = client.UniqueValues(context.Background(), "", "Sector")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnauthorized))

	assert.Zero(t, calls.Load())
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewClientWithHTTP(url, http.DefaultClient, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := client.Forecast(context.Background(), "tok", 6)

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUpstream))
}

func TestClient_ContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Forecast(ctx, "tok", 6)

	require.ErrorIs(t, err, context.Canceled)
}
