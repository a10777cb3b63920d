package oracle

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/weather-hedge-service/internal/domain"
	"github.com/couchcryptid/weather-hedge-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

func testClient(baseURL string) *Client {
	return NewClient(baseURL+"/", testToken, 5*time.Second,
		observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testJob() domain.OracleJob {
	return domain.OracleJob{
		RequestID:       "req-1",
		SpecID:          "235f8b1eeb364efc83c26d0bef2d0c01",
		CallbackAddress: "http://hedge/v1/oracle/fulfillments",
		Fee:             decimal.RequireFromString("0.1"),
		Query:           "10.25,-0.54",
	}
}

func TestClient_Dispatch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/specs/235f8b1eeb364efc83c26d0bef2d0c01/runs", r.URL.Path)
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{
			"requestId":       "req-1",
			"specId":          "235f8b1eeb364efc83c26d0bef2d0c01",
			"callbackAddress": "http://hedge/v1/oracle/fulfillments",
			"fee":             "0.1",
			"query":           "10.25,-0.54",
		}, body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"run-7"}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	require.NoError(t, c.Dispatch(context.Background(), testJob()))
	assert.Equal(t, 1, testutil.CollectAndCount(c.metrics.OracleAPIDuration))
}

func TestClient_Dispatch_EmptyBodyAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	require.NoError(t, testClient(srv.URL).Dispatch(context.Background(), testJob()))
}

func TestClient_Dispatch_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown job spec", http.StatusNotFound)
	}))
	defer srv.Close()

	err := testClient(srv.URL).Dispatch(context.Background(), testJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "unknown job spec")
}

func TestClient_Dispatch_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, testClient(srv.URL).Dispatch(ctx, testJob()))
}
