package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/huanchen1107/TawinCWA/app/metrics"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxRetries = 3
	DefaultTimeout    = 30 * time.Second
	DefaultDelay      = time.Second
)

type Options struct {
	// Name labels log lines and metrics, usually the source name.
	Name       string
	Delay      time.Duration
	MaxRetries int
	Timeout    time.Duration
	UserAgent  string
	// BackoffUnit is multiplied by 2^attempt between retries.
	BackoffUnit time.Duration
}

type Response struct {
	URL       string
	Body      []byte
	Latency   time.Duration
	FetchedAt time.Time
	Attempts  int
}

// FetchError is returned once every attempt for a URL has failed.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher is a rate-limited, retrying HTTP GET client for one source. It is
// safe for concurrent use; concurrent callers share the rate limit.
type Fetcher struct {
	name        string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	timeout     time.Duration
	userAgent   string
	backoffUnit time.Duration
}

func NewFetcher(client *http.Client, opts Options) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = time.Second
	}

	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}

	return &Fetcher{
		name:        opts.Name,
		client:      client,
		limiter:     rate.NewLimiter(limit, 1),
		maxRetries:  opts.MaxRetries,
		timeout:     opts.Timeout,
		userAgent:   opts.UserAgent,
		backoffUnit: opts.BackoffUnit,
	}
}

func (f *Fetcher) Name() string {
	return f.name
}

// Get fetches rawURL with params appended to its query. Every attempt waits
// for the rate limiter first; failed attempts back off exponentially.
func (f *Fetcher) Get(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	target, err := buildURL(rawURL, params)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	start := time.Now()
	var lastErr error
	attempts := 0

retry:
	for attempt := 0; attempt < f.maxRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		attempts++
		body, err := f.do(ctx, target)
		if err == nil {
			latency := time.Since(start)
			metrics.FetchTotal.WithLabelValues(f.name, "success").Inc()
			metrics.FetchDuration.WithLabelValues(f.name).Observe(latency.Seconds())

			slog.Debug("Fetch completed", "source", f.name, "url", redact(target), "attempts", attempts, "bytes", len(body), "latency", latency)

			return &Response{
				URL:       redact(target),
				Body:      body,
				Latency:   latency,
				FetchedAt: time.Now(),
				Attempts:  attempts,
			}, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}

		if attempt < f.maxRetries-1 {
			delay := time.Duration(1<<uint(attempt)) * f.backoffUnit
			slog.Warn("Fetch attempt failed, retrying", "source", f.name, "url", redact(target), "attempt", attempts, "delay", delay.String(), "error", err)

			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break retry
			case <-time.After(delay):
			}
		}
	}

	metrics.FetchTotal.WithLabelValues(f.name, "error").Inc()
	metrics.FetchDuration.WithLabelValues(f.name).Observe(time.Since(start).Seconds())

	return nil, &FetchError{URL: redact(target), Attempts: attempts, Err: lastErr}
}

func (f *Fetcher) do(ctx context.Context, target string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

func buildURL(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

var secretParams = []string{"Authorization", "key", "api_key"}

// redact hides credentials carried in the query string.
func redact(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	changed := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return target
	}
	u.RawQuery = q.Encode()
	return u.String()
}
