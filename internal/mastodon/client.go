package mastodon

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tomnomnom/linkheader"
	"golang.org/x/time/rate"

	"mastodon-to-sqlite/internal/metrics"
)

const (
	// UserAgent identifies this tool to Mastodon instances
	UserAgent = "mastodon-to-sqlite (+https://github.com/myles/mastodon-to-sqlite)"

	defaultConnectTimeout = 10 * time.Second
	defaultReadTimeout    = 30 * time.Second
	defaultLowWaterMark   = 1
)

// Client is a Mastodon API client bound to one instance and one access token
type Client struct {
	httpClient   *http.Client
	apiURL       string
	accessToken  string
	logger       *slog.Logger
	rateLimiter  *RateLimiter
	lowWaterMark int
	throttle     *rate.Limiter
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger used for request logging
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeouts sets the connect and read timeouts. Zero keeps the default.
func WithTimeouts(connect, read time.Duration) Option {
	return func(c *Client) {
		c.httpClient = newHTTPClient(connect, read)
	}
}

// WithLowWaterMark sets the remaining-quota threshold at which pagination
// pauses until the rate limit resets
func WithLowWaterMark(n int) Option {
	return func(c *Client) {
		c.lowWaterMark = n
	}
}

// WithRequestsPerSecond caps the request rate on the client side. Zero or a
// negative value disables the cap.
func WithRequestsPerSecond(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.throttle = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.throttle = rate.NewLimiter(rate.Inf, 0)
		}
	}
}

// WithClock replaces the time source and the blocking sleep used for
// rate-limit waits
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewClient creates a client for https://{domain}/api/v1. It performs no I/O.
func NewClient(domain, accessToken string, opts ...Option) *Client {
	c := &Client{
		httpClient:   newHTTPClient(defaultConnectTimeout, defaultReadTimeout),
		apiURL:       fmt.Sprintf("https://%s/api/v1", domain),
		accessToken:  accessToken,
		logger:       slog.Default(),
		rateLimiter:  NewRateLimiter(),
		lowWaterMark: defaultLowWaterMark,
		throttle:     rate.NewLimiter(rate.Inf, 0),
		now:          time.Now,
		sleep:        sleepContext,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func newHTTPClient(connect, read time.Duration) *http.Client {
	if connect <= 0 {
		connect = defaultConnectTimeout
	}
	if read <= 0 {
		read = defaultReadTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connect,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = connect
	transport.ResponseHeaderTimeout = read

	return &http.Client{Transport: transport}
}

// APIURL returns the base URL all request paths are relative to
func (c *Client) APIURL() string {
	return c.apiURL
}

// GetRateLimitStatus returns the rate limit state from the latest response
func (c *Client) GetRateLimitStatus() RateLimitStatus {
	return c.rateLimiter.Status()
}

// Request performs a single request against a path relative to the API URL
func (c *Client) Request(ctx context.Context, method, path string, params url.Values) (*Page, error) {
	return c.doRequest(ctx, metrics.OpRequest, method, path, params)
}

// RequestPaginated lazily walks a paginated endpoint, following the Link
// header's "next" relation. Each step blocks for the rate-limit reset when the
// previous response left the quota at or below the low-water mark. Non-2xx
// pages are yielded like any other page. The sequence stops after the first
// error.
func (c *Client) RequestPaginated(ctx context.Context, method, path string, params url.Values) iter.Seq2[*Page, error] {
	return c.paginate(ctx, metrics.OpRequest, method, path, params)
}

func (c *Client) paginate(ctx context.Context, op, method, path string, params url.Values) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		nextPath := path

		for nextPath != "" {
			page, err := c.doRequest(ctx, op, method, nextPath, params)
			if err != nil {
				yield(nil, err)
				return
			}

			metrics.APIPagesTotal.WithLabelValues(op).Inc()
			if !yield(page, nil) {
				return
			}

			next, ok, err := c.nextPath(page)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}

			if err := c.waitForRateLimit(ctx); err != nil {
				yield(nil, err)
				return
			}

			nextPath = next
			// The next link already carries the query parameters
			params = nil
		}
	}
}

// nextPath extracts the "next" link and strips the API URL from it. ok is
// false when there is nothing more to fetch.
func (c *Client) nextPath(page *Page) (string, bool, error) {
	headers := page.Response.Header.Values("Link")
	if len(headers) == 0 {
		return "", false, nil
	}

	next := linkheader.ParseMultiple(headers).FilterByRel("next")
	if len(next) == 0 {
		return "", false, nil
	}

	path, found := strings.CutPrefix(next[0].URL, c.apiURL+"/")
	if !found {
		return "", false, &MalformedResponseError{
			URL: page.Request.URL.String(),
			Err: fmt.Errorf("next link %q is outside %s", next[0].URL, c.apiURL),
		}
	}
	return path, true, nil
}

func (c *Client) waitForRateLimit(ctx context.Context) error {
	delay := c.rateLimiter.Delay(c.now(), c.lowWaterMark)
	if delay <= 0 {
		return nil
	}

	status := c.rateLimiter.Status()
	c.logger.Warn("rate limit reached, waiting for reset",
		"remaining", status.Remaining,
		"reset_at", status.ResetAt,
		"wait_seconds", delay.Seconds())

	metrics.RateLimitWaitsTotal.Inc()
	metrics.RateLimitWaitSeconds.Add(delay.Seconds())

	return c.sleep(ctx, delay)
}

// doRequest performs one authenticated request and reads the whole body
func (c *Client) doRequest(ctx context.Context, op, method, path string, params url.Values) (*Page, error) {
	method = strings.ToUpper(method)

	reqURL, err := c.buildURL(path, params)
	if err != nil {
		return nil, err
	}

	if err := c.throttle.Wait(ctx); err != nil {
		return nil, &TransportError{Method: method, URL: reqURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("request failed", "method", method, "path", path, "error", err, "duration_ms", duration.Milliseconds())
		metrics.APIRequestsTotal.WithLabelValues(op, "error").Inc()
		return nil, &TransportError{Method: method, URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(op, "error").Inc()
		return nil, &TransportError{Method: method, URL: reqURL, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	statusCode := strconv.Itoa(resp.StatusCode)
	metrics.APIRequestsTotal.WithLabelValues(op, statusCode).Inc()
	metrics.APIRequestDuration.WithLabelValues(op, statusCode).Observe(duration.Seconds())

	c.rateLimiter.Update(resp.Header, c.now())
	if status := c.rateLimiter.Status(); status.HasRemaining {
		metrics.RateLimitRemaining.Set(float64(status.Remaining))
	}

	c.logger.Info("mastodon_api_request", "method", method, "path", path, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())

	return &Page{Request: req, Response: resp, Body: body}, nil
}

func (c *Client) buildURL(path string, params url.Values) (string, error) {
	u, err := url.Parse(c.apiURL + "/" + strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}

	if len(params) > 0 {
		query := u.Query()
		for key, values := range params {
			for _, v := range values {
				query.Add(key, v)
			}
		}
		u.RawQuery = query.Encode()
	}

	return u.String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
