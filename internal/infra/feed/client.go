package feed

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

	"golang.org/x/time/rate"

	"github.com/cenetex/cosyworld-sub000/internal/indexing/metrics"
)

// StatusError is returned for a non-2xx upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("http %d: %s", e.Code, body)
}

// ClientConfig configures one upstream feed.
type ClientConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	RPS     float64
	Burst   int
	Retry   RetryConfig
}

// Client is a rate-limited JSON-over-HTTP client shared by the feeds.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
	logger     *slog.Logger
}

// NewClient creates a new feed client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(limit, burst),
		retry:   cfg.Retry,
		logger:  logger.With("component", "feed", "feed", cfg.Name),
	}
}

// GetJSON issues a GET for path with query params and decodes the body into out,
// retrying transient failures.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	attempt := 0
	return Retry(ctx, c.retry, func(ctx context.Context) error {
		attempt++
		err := c.do(ctx, endpoint, out)
		if err != nil && Classify(err) == ClassTransient {
			c.logger.Debug("Feed request failed, retrying",
				"path", path,
				"attempt", attempt,
				"error", err,
			)
		}
		return err
	})
}

func (c *Client) do(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.FeedLatency.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FeedRequests.WithLabelValues(c.name, "error").Inc()
		return fmt.Errorf("%s request: %w", c.name, err)
	}
	defer resp.Body.Close()
	metrics.FeedRequests.WithLabelValues(c.name, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", c.name, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	// Some upstreams report errors inside a 200 body.
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
		return fmt.Errorf("%s: upstream error: %s", c.name, envelope.Error)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
