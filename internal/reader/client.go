// Package reader fetches raw market-listing content through a reader API
// that renders a web page into markdown. The pipeline treats the result as
// an opaque string; this package only guarantees that something non-empty
// came back or that a SourceUnavailableError explains why not.
package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/marketsnap/marketsnap/internal/logger"
	"github.com/marketsnap/marketsnap/internal/models"
)

// SourceUnavailableError indicates the raw content source could not be
// reached or returned nothing usable after all retries.
type SourceUnavailableError struct {
	URL string
	Err error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source unavailable for %s: %v", e.URL, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// ClientConfig tunes retry and rendering behavior.
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
	TokenBudget    int
}

// Client is a reader API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cfg        ClientConfig
}

// readerResponse is the JSON envelope the reader API returns when asked for
// application/json. Plain-text responses are handled separately.
type readerResponse struct {
	Data struct {
		Content string `json:"content"`
		Title   string `json:"title"`
		URL     string `json:"url"`
	} `json:"data"`
	Content string `json:"content"`
}

// NewClient creates a reader client.
func NewClient(baseURL, apiKey string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = 2 * time.Second
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 200000
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cfg: cfg,
	}
}

// Fetch retrieves the rendered content of targetURL. It tries descending
// token budgets (full, half, quarter) so an oversized page degrades to a
// smaller render instead of failing outright; each budget gets the full
// retry allowance.
func (c *Client) Fetch(ctx context.Context, targetURL string) (models.RawDocument, error) {
	budgets := []int{c.cfg.TokenBudget, c.cfg.TokenBudget / 2, c.cfg.TokenBudget / 4}

	var lastErr error
	for i, budget := range budgets {
		logger.Debug("Reader fetch attempt with token budget %d (%d/%d)", budget, i+1, len(budgets))

		content, err := c.fetchOnce(ctx, targetURL, budget)
		if err == nil && content != "" {
			return models.RawDocument{
				SourceText: StripURLs(content),
				FetchedAt:  time.Now(),
			}, nil
		}
		if err == nil {
			err = fmt.Errorf("reader returned empty content")
		}
		lastErr = err

		// No sleep once the last budget has failed.
		if i == len(budgets)-1 {
			break
		}
		select {
		case <-ctx.Done():
			return models.RawDocument{}, &SourceUnavailableError{URL: targetURL, Err: ctx.Err()}
		case <-time.After(c.cfg.RetryDelayBase):
		}
	}

	return models.RawDocument{}, &SourceUnavailableError{URL: targetURL, Err: lastErr}
}

// fetchOnce performs the reader request with retry on transient errors.
func (c *Client) fetchOnce(ctx context.Context, targetURL string, tokenBudget int) (string, error) {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, targetURL)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: base, 2×base, 4×base...
			delay := c.cfg.RetryDelayBase * time.Duration(1<<(attempt-1))
			logger.Debug("Reader retry %d/%d after %v", attempt, c.cfg.MaxRetries, delay)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return "", err
		}
		q := url.Values{}
		q.Set("token_budget", strconv.Itoa(tokenBudget))
		q.Set("gfm", "true")
		req.URL.RawQuery = q.Encode()
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("reader server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("reader request failed: %d: %s", resp.StatusCode, truncate(string(body), 200))
		}

		return extractContent(body), nil
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// extractContent pulls the rendered text out of a reader response, which may
// be a JSON envelope or plain markdown.
func extractContent(body []byte) string {
	var rr readerResponse
	if err := json.Unmarshal(body, &rr); err == nil {
		if rr.Data.Content != "" {
			return rr.Data.Content
		}
		if rr.Content != "" {
			return rr.Content
		}
	}
	return string(body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
