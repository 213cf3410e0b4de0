// Package client provides a SeaTable API client with retry and rate limiting.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/DrewBradfordXYZ/seatable-go/auth"
	"github.com/DrewBradfordXYZ/seatable-go/core"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/text/language"
)

// Client executes SeaTable API requests with auth, retry, and rate limiting.
type Client struct {
	auth       auth.Strategy
	transport  Transport
	httpClient *http.Client
	server     string
	lang       string

	// Retry configuration
	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	timeout       time.Duration

	// Rate limiting
	rateLimiter *RateLimiter
	throttle    Throttle
	onRateLimit func(core.RateLimitInfo)

	logger       *core.Logger
	dateRenderer core.DateRenderer
	useGateway   bool
}

// Option configures a Client.
type Option func(*Client)

// WithMaxRetries sets the maximum number of retry attempts (default 3).
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the base delay between retries (default 1s).
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxRetryDelay caps the delay between retries (default 30s).
func WithMaxRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.maxRetryDelay = d
	}
}

// WithTimeout sets the per-request timeout (default 30s, 0 disables).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRateLimiter sets a custom rate limiter.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(c *Client) {
		c.rateLimiter = rl
	}
}

// WithThrottle sets a custom throttle implementation.
func WithThrottle(t Throttle) Option {
	return func(c *Client) {
		c.throttle = t
	}
}

// WithProactiveThrottle enables sliding window throttling of n requests per minute.
// The API gateway allows 300 requests per minute per base.
func WithProactiveThrottle(requestsPerMinute int) Option {
	return func(c *Client) {
		c.throttle = NewSlidingWindowThrottle(requestsPerMinute, time.Minute)
	}
}

// WithOnRateLimit sets a callback for rate limit events.
func WithOnRateLimit(callback func(core.RateLimitInfo)) Option {
	return func(c *Client) {
		c.onRateLimit = callback
	}
}

// WithLogger sets the logger.
func WithLogger(logger *core.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables debug logging to stderr.
func WithDebug(enabled bool) Option {
	return func(c *Client) {
		c.logger = core.NewLogger(enabled)
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithGateway selects the API gateway transport instead of the legacy
// dtable-server and dtable-db endpoints.
func WithGateway(enabled bool) Option {
	return func(c *Client) {
		c.useGateway = enabled
	}
}

// WithLanguage sets the language tag sent with base requests (default "en").
func WithLanguage(lang string) Option {
	return func(c *Client) {
		c.lang = lang
	}
}

// WithDateRenderer sets the renderer used for date columns in Query results.
func WithDateRenderer(r core.DateRenderer) Option {
	return func(c *Client) {
		c.dateRenderer = r
	}
}

// New creates a new SeaTable client for server.
func New(server string, authStrategy auth.Strategy, opts ...Option) (*Client, error) {
	server, err := auth.NormalizeServerURL(server)
	if err != nil {
		return nil, err
	}
	if authStrategy == nil {
		return nil, fmt.Errorf("auth strategy is required")
	}

	c := &Client{
		auth:          authStrategy,
		httpClient:    http.DefaultClient,
		server:        server,
		lang:          "en",
		maxRetries:    3,
		retryDelay:    time.Second,
		maxRetryDelay: 30 * time.Second,
		timeout:       30 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	tag, err := language.Parse(c.lang)
	if err != nil {
		return nil, fmt.Errorf("invalid language %q: %w", c.lang, err)
	}
	base, _ := tag.Base()
	c.lang = base.String()

	if c.useGateway {
		c.transport = NewGatewayTransport(server)
	} else {
		c.transport = NewLegacyTransport()
	}

	// Create rate limiter if not provided
	if c.rateLimiter == nil {
		c.rateLimiter = NewRateLimiter(5, 50) // 5 req/s, burst of 50
	}
	if c.throttle == nil {
		c.throttle = NewNoOpThrottle()
	}
	if c.logger == nil {
		c.logger = core.NopLogger()
	}
	if c.dateRenderer == nil {
		c.dateRenderer = core.NewDateRenderer(nil)
	}

	return c, nil
}

// Transport returns the transport chosen at construction.
func (c *Client) Transport() Transport {
	return c.transport
}

// Session returns the current authenticated session.
func (c *Client) Session(ctx context.Context) (*auth.Session, error) {
	return c.auth.GetSession(ctx)
}

// Logger returns the client's logger.
func (c *Client) Logger() *core.Logger {
	return c.logger
}

// DateRenderer returns the renderer used for date columns in Query results.
func (c *Client) DateRenderer() core.DateRenderer {
	return c.dateRenderer
}

// call builds a request against the current session and decodes the
// unwrapped payload into out.
func (c *Client) call(ctx context.Context, build func(*auth.Session) RequestDef, out any) error {
	payload, err := c.do(ctx, build)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// do executes the request with retries and returns the unwrapped payload.
// The request is rebuilt from the session on every attempt, so a refreshed
// session's server URLs are used after a re-exchange.
func (c *Client) do(ctx context.Context, build func(*auth.Session) RequestDef) (json.RawMessage, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		// Rate limiting
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		if err := c.throttle.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("throttle: %w", err)
		}

		session, err := c.auth.GetSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting session: %w", err)
		}
		def := build(session)
		requestURL, body, err := prepare(def)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := c.send(ctx, def.Method, requestURL, body, session.AccessToken)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				lastErr = core.NewTimeoutError(int(c.timeout.Milliseconds()))
			} else if ctx.Err() != nil {
				return nil, ctx.Err()
			} else {
				lastErr = err
			}
			if attempt < c.maxRetries {
				delay := c.backoff(attempt, nil)
				c.logger.Retry(attempt+1, c.maxRetries, delay, err.Error())
				if err := sleep(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, lastErr
		}
		c.logger.Timing(def.Method, def.URL, time.Since(start))

		// Handle 429 Too Many Requests
		if resp.StatusCode == http.StatusTooManyRequests {
			info := core.RateLimitInfoFromResponse(resp, def.URL, attempt+1)
			c.logger.RateLimit(info)
			if c.onRateLimit != nil {
				c.onRateLimit(info)
			}
			if attempt < c.maxRetries {
				delay := c.backoff(attempt, resp)
				drain(resp)
				if err := sleep(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, c.errorFrom(resp, def.URL)
		}

		// Handle 401 Unauthorized - try to refresh the session
		if resp.StatusCode == http.StatusUnauthorized {
			refreshed, err := c.auth.HandleAuthError(ctx, resp.StatusCode, attempt, c.maxRetries+1)
			if err != nil {
				drain(resp)
				return nil, err
			}
			if refreshed != nil {
				drain(resp)
				c.logger.Retry(attempt+1, c.maxRetries, 0, "session refreshed")
				continue
			}
			return nil, c.errorFrom(resp, def.URL)
		}

		// Handle 5xx server errors with retry
		if resp.StatusCode >= 500 && attempt < c.maxRetries {
			lastErr = c.errorFrom(resp, def.URL)
			delay := c.backoff(attempt, nil)
			c.logger.Retry(attempt+1, c.maxRetries, delay, lastErr.Error())
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, c.errorFrom(resp, def.URL)
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			data = []byte("null")
		}

		unwrap := def.Unwrap
		if unwrap == nil {
			unwrap = unwrapIdentity
		}
		return unwrap(data)
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("request failed after %d attempts", c.maxRetries+1)
}

// prepare encodes def's query parameters and JSON body.
func prepare(def RequestDef) (string, []byte, error) {
	var body []byte
	if def.Body != nil {
		var err error
		body, err = json.Marshal(def.Body)
		if err != nil {
			return "", nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	rawQuery, err := encodeQuery(def.Query)
	if err != nil {
		return "", nil, err
	}
	requestURL := def.URL
	if rawQuery != "" {
		requestURL += "?" + rawQuery
	}
	return requestURL, body, nil
}

func (c *Client) send(ctx context.Context, method, requestURL string, body []byte, token string) (*http.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		resp, err := c.sendWithContext(ctx, method, requestURL, body, token)
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
	return c.sendWithContext(ctx, method, requestURL, body, token)
}

func (c *Client) sendWithContext(ctx context.Context, method, requestURL string, body []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.auth.ApplyAuth(req, token)
	return c.httpClient.Do(req)
}

// backoff returns the wait before the next attempt. Retry-After on a 429
// response takes precedence.
func (c *Client) backoff(attempt int, resp *http.Response) time.Duration {
	maxDelay := c.maxRetryDelay
	if maxDelay <= 0 {
		maxDelay = time.Duration(math.MaxInt64)
	}
	return retryablehttp.DefaultBackoff(c.retryDelay, maxDelay, attempt, resp)
}

func (c *Client) errorFrom(resp *http.Response, requestURL string) error {
	defer resp.Body.Close()
	return core.ParseErrorResponse(resp, requestURL)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnClose) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
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
