// Package openfda fetches adverse-event reports from the FDA openFDA API
// and reduces them to the fields the pipeline cares about.
package openfda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"adsio/internal/metrics"
)

const (
	defaultEndpoint = "https://api.fda.gov/drug/event.json"
	maxPageLimit    = 1000
	userAgent       = "adsio/1.0 (pharmacovigilance signal detection)"
)

// Client talks to the openFDA drug adverse-event endpoint. The shared key-less
// quota is 40 requests per minute, so every call goes through the limiter.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the API endpoint. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithMinInterval sets the minimum spacing between requests.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// NewClient builds a client with the public endpoint and defaults tuned to
// the openFDA rate limits.
func NewClient(opts ...Option) *Client {
	c := &Client{
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(1500*time.Millisecond), 1),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	Meta struct {
		Results struct {
			Total int `json:"total"`
		} `json:"results"`
	} `json:"meta"`
	Results []json.RawMessage `json:"results"`
}

// FetchReports pulls up to limit adverse-event reports mentioning the drug.
// A drug with no reports on file returns an empty slice, not an error; the
// API signals that case with 404. Transient failures that outlast the retry
// budget also come back empty so callers can proceed against stored data.
func (c *Client) FetchReports(ctx context.Context, drugName string, limit int) ([]Record, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	query := url.Values{}
	query.Set("search", fmt.Sprintf(`patient.drug.medicinalproduct:(%q)`, drugName))
	query.Set("limit", strconv.Itoa(limit))

	body, err := c.getWithRetry(ctx, c.endpoint+"?"+query.Encode())
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return extractRecords(resp.Results), nil
}

// getWithRetry executes the request with retries on 429 and 5xx, exponential
// backoff (1s, 2s, 4s), and honors the Retry-After header. A 404 means the
// search matched nothing and returns a nil body with no error. Other 4xx
// responses fail immediately. Exhausted retries also return a nil body with
// no error so the pipeline can fall back to previously stored reports.
func (c *Client) getWithRetry(ctx context.Context, rawURL string) ([]byte, error) {
	backoffs := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if err := c.sleep(ctx, attempt, backoffs); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			if err := c.sleep(ctx, attempt, backoffs); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("openFDA error (status %d): %s", resp.StatusCode, truncate(body, 200))
			if attempt < c.maxRetries {
				delay := backoffs[min(attempt, len(backoffs)-1)]
				if resp.StatusCode == http.StatusTooManyRequests {
					if ra := resp.Header.Get("Retry-After"); ra != "" {
						if seconds, parseErr := strconv.Atoi(ra); parseErr == nil && seconds > 0 {
							delay = time.Duration(seconds) * time.Second
							if delay > 30*time.Second {
								delay = 30 * time.Second
							}
						}
					}
				}
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
			}
			continue
		default:
			return nil, fmt.Errorf("openFDA error (status %d): %s", resp.StatusCode, truncate(body, 200))
		}
	}

	log.Printf("openfda: giving up after %d retries: %v", c.maxRetries, lastErr)
	metrics.IncFetchFailed()
	return nil, nil
}

func (c *Client) sleep(ctx context.Context, attempt int, backoffs []time.Duration) error {
	if attempt >= c.maxRetries {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoffs[min(attempt, len(backoffs)-1)]):
		return nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
