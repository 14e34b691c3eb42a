package loki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Response is the query_range envelope returned by Loki.
type Response struct {
	Status string `json:"status"`
	Data   Data   `json:"data"`
}

// Data holds the streams of a query_range response.
type Data struct {
	ResultType string   `json:"resultType"`
	Result     []Stream `json:"result"`
}

// Stream is one label set and its [timestamp, line] pairs.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	BaseURL      string
	TenantID     string
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
	Logger       *slog.Logger
}

// Client is a thin wrapper around the Loki HTTP API with retries.
type Client struct {
	baseURL  string
	tenantID string
	http     *retryablehttp.Client
}

// NewClient returns a client for the Loki instance at cfg.BaseURL.
func NewClient(cfg ClientConfig) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid loki URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid loki URL %q: scheme must be http or https", cfg.BaseURL)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	rc.Logger = nil
	if cfg.Logger != nil {
		rc.Logger = cfg.Logger
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		tenantID: cfg.TenantID,
		http:     rc,
	}, nil
}

// QueryRange runs a LogQL log query over [start, end], newest entries first.
func (c *Client) QueryRange(ctx context.Context, query string, start, end time.Time, limit int) (*Response, error) {
	params := url.Values{}
	params.Add("query", query)
	params.Add("start", strconv.FormatInt(start.UnixNano(), 10))
	params.Add("end", strconv.FormatInt(end.UnixNano(), 10))
	params.Add("direction", "backward")
	if limit > 0 {
		params.Add("limit", strconv.Itoa(limit))
	}

	endpoint := fmt.Sprintf("%s/loki/api/v1/query_range?%s", c.baseURL, params.Encode())
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("loki range query failed: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse loki response: %w", err)
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("loki returned status %q", resp.Status)
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.tenantID != "" {
		req.Header.Set("X-Scope-OrgID", c.tenantID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 256 {
			msg = msg[:256] + "..."
		}
		return nil, fmt.Errorf("loki API error (status %d): %s", resp.StatusCode, msg)
	}
	return body, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.HTTPClient.CloseIdleConnections()
	return nil
}
