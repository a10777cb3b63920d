// Package funding moves money out of the insurance fund: payouts to policy
// holders and fees to the oracle.
package funding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/weather-hedge-service/internal/domain"
	"github.com/couchcryptid/weather-hedge-service/internal/observability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client posts transfers to a payment gateway.
// It implements settlement.FundingAdapter.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a payment gateway client rooted at baseURL.
func NewClient(baseURL, token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// Transfer sends t.Amount to t.Recipient. The transfer reference doubles as
// the idempotency key, so a repeated attempt at the same obligation is
// discarded by the gateway. Unreferenced transfers get a random key.
func (c *Client) Transfer(ctx context.Context, t domain.Transfer) error {
	key := t.Reference
	if key == "" {
		key = uuid.NewString()
	}
	body, err := json.Marshal(transferRequest{Recipient: t.Recipient, Amount: t.Amount, Reference: key})
	if err != nil {
		return fmt.Errorf("encode transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FundingAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("transfer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("funding API error: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	c.logger.Info("transfer sent", "recipient", t.Recipient, "amount", t.Amount.String(), "reference", key)
	return nil
}

type transferRequest struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

// LoggingAdapter records transfers in the log without moving money. It backs local
// runs where no gateway is configured.
type LoggingAdapter struct {
	Logger *slog.Logger
}

func (l LoggingAdapter) Transfer(_ context.Context, t domain.Transfer) error {
	l.Logger.Info("transfer recorded (no funding gateway)", "recipient", t.Recipient, "amount", t.Amount.String(), "reference", t.Reference)
	return nil
}
