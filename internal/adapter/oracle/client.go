package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/weather-hedge-service/internal/domain"
	"github.com/couchcryptid/weather-hedge-service/internal/observability"
)

// Client dispatches weather jobs to an oracle node over HTTP.
// It implements settlement.OracleDispatcher.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an oracle node client rooted at baseURL.
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

// Dispatch starts a job run for the job's spec id. The node answers later by
// calling the job's callback address with the request id and a reading.
func (c *Client) Dispatch(ctx context.Context, job domain.OracleJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job run: %w", err)
	}

	u := fmt.Sprintf("%s/v2/specs/%s/runs", c.baseURL, url.PathEscape(job.SpecID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.OracleAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("oracle job run request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("oracle API error: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var run runResponse
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil && err != io.EOF {
		return fmt.Errorf("decode response: %w", err)
	}
	c.logger.Debug("oracle job dispatched", "request_id", job.RequestID, "spec_id", job.SpecID, "run_id", run.Data.ID)
	return nil
}

// Oracle node API types.

type runResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}
