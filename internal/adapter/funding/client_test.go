package funding

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
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_Transfer_Success(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transfers", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		keys = append(keys, r.Header.Get("Idempotency-Key"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"recipient": "0xabc", "amount": "0.8", "reference": "payout/req-1/p-1"}, body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 5*time.Second, observability.NewMetricsForTesting(), discardLogger())
	tr := domain.Transfer{Recipient: "0xabc", Amount: decimal.RequireFromString("0.8"), Reference: "payout/req-1/p-1"}
	require.NoError(t, c.Transfer(context.Background(), tr))
	require.NoError(t, c.Transfer(context.Background(), tr))

	// A retried obligation reuses its key so the gateway can drop the repeat.
	assert.Equal(t, []string{"payout/req-1/p-1", "payout/req-1/p-1"}, keys)
}

func TestClient_Transfer_UnreferencedGetsRandomKey(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second, observability.NewMetricsForTesting(), discardLogger())
	tr := domain.Transfer{Recipient: "0xabc", Amount: decimal.NewFromInt(1)}
	require.NoError(t, c.Transfer(context.Background(), tr))
	require.NoError(t, c.Transfer(context.Background(), tr))

	require.Len(t, keys, 2)
	for _, k := range keys {
		_, err := uuid.Parse(k)
		assert.NoError(t, err)
	}
	assert.NotEqual(t, keys[0], keys[1])
}

func TestClient_Transfer_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "insufficient liquidity", http.StatusConflict)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second, observability.NewMetricsForTesting(), discardLogger())
	err := c.Transfer(context.Background(), domain.Transfer{Recipient: "0xabc", Amount: decimal.NewFromInt(1), Reference: "fee/req-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 409")
}

func TestClient_Transfer_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := NewClient(srv.URL, "", time.Second, observability.NewMetricsForTesting(), discardLogger())
	assert.Error(t, c.Transfer(context.Background(), domain.Transfer{Recipient: "0xabc", Amount: decimal.NewFromInt(1)}))
}

func TestLoggingAdapter_Transfer(t *testing.T) {
	assert.NoError(t, LoggingAdapter{Logger: discardLogger()}.Transfer(context.Background(), domain.Transfer{Recipient: "0xabc", Amount: decimal.NewFromInt(1)}))
}
