// Package seatable provides a Go SDK for reading SeaTable bases.
//
// This SDK provides:
//   - API token exchange with cached, self-refreshing base access tokens
//   - A legacy transport (dtable-server, dtable-db) and an API gateway transport
//   - Automatic retry with exponential backoff and Retry-After support
//   - Proactive rate limiting with sliding window throttle
//   - SQL query results decoded into rows keyed by column name
//   - Custom error types for different HTTP status codes
//   - Debug logging
//
// Basic usage with an API token:
//
//	st, err := seatable.New("https://cloud.seatable.io",
//	    seatable.WithAPIToken("your-api-token"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rows, err := st.Query(ctx, "SELECT * FROM Tasks")
//
// Through the API gateway:
//
//	st, err := seatable.New("https://cloud.seatable.io",
//	    seatable.WithAPIToken("token"),
//	    seatable.WithGateway(true),
//	)
//
// With rate limit callback:
//
//	st, err := seatable.New("https://cloud.seatable.io",
//	    seatable.WithAPIToken("token"),
//	    seatable.WithOnRateLimit(func(info seatable.RateLimitInfo) {
//	        log.Printf("Rate limited! Retry after %ds", info.RetryAfter)
//	    }),
//	)
package seatable

import (
	"time"

	"github.com/DrewBradfordXYZ/seatable-go/auth"
	"github.com/DrewBradfordXYZ/seatable-go/client"
	"github.com/DrewBradfordXYZ/seatable-go/core"
)

// Client is the main SeaTable API client.
type Client = client.Client

// Re-export types for convenience
type (
	// Schema and result types
	Column        = core.Column
	ColumnData    = core.ColumnData
	ColumnType    = core.ColumnType
	SelectOption  = core.SelectOption
	Row           = core.Row
	QueryResult   = core.QueryResult
	IndexedSchema = core.IndexedSchema
	DateFormat    = core.DateFormat
	DateRenderer  = core.DateRenderer

	// API types
	Table           = client.Table
	View            = client.View
	Metadata        = client.Metadata
	ListRowsOptions = client.ListRowsOptions
	LinkedRowQuery  = client.LinkedRowQuery
	LinkedRecord    = client.LinkedRecord
	SQLBuilder      = client.SQLBuilder
	Session         = auth.Session

	// Error types
	SeaTableError       = core.SeaTableError
	RateLimitError      = core.RateLimitError
	AuthenticationError = core.AuthenticationError
	AuthorizationError  = core.AuthorizationError
	NotFoundError       = core.NotFoundError
	ValidationError     = core.ValidationError
	TimeoutError        = core.TimeoutError
	ServerError         = core.ServerError
	QueryError          = core.QueryError
	SchemaError         = core.SchemaError
	RateLimitInfo       = core.RateLimitInfo

	// Throttle types
	SlidingWindowThrottle = client.SlidingWindowThrottle
	NoOpThrottle          = client.NoOpThrottle
	Throttle              = client.Throttle
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	apiToken     string
	apiTokenOpts []auth.APITokenOption
	accessToken  *accessTokenConfig
	strategy     auth.Strategy
	debug        bool
	clientOpts   []client.Option
}

type accessTokenConfig struct {
	token      string
	dtableUUID string
	opts       []auth.AccessTokenOption
}

// WithAPIToken authenticates with a base API token. The token is exchanged for
// a base access token on first use and again whenever the access token expires.
func WithAPIToken(token string, opts ...auth.APITokenOption) Option {
	return func(c *clientConfig) {
		c.apiToken = token
		c.apiTokenOpts = opts
	}
}

// WithAccessToken authenticates with an already issued base access token.
// The token is used as-is and never refreshed.
func WithAccessToken(token, dtableUUID string, opts ...auth.AccessTokenOption) Option {
	return func(c *clientConfig) {
		c.accessToken = &accessTokenConfig{token: token, dtableUUID: dtableUUID, opts: opts}
	}
}

// WithAuthStrategy sets a custom authentication strategy.
func WithAuthStrategy(s auth.Strategy) Option {
	return func(c *clientConfig) {
		c.strategy = s
	}
}

// WithGateway routes requests through the v2 API gateway instead of
// dtable-server and dtable-db.
func WithGateway(enabled bool) Option {
	return func(c *clientConfig) {
		c.clientOpts = append(c.clientOpts, client.WithGateway(enabled))
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *clientConfig) {
		c.clientOpts = append(c.clientOpts, client.WithMaxRetries(n))
	}
}

// WithRetryDelay sets the initial delay between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(c *clientConfig) {
		c.clientOpts = append(c.clientOpts, client.WithRetryDelay(d))
	}
}

// WithMaxRetryDelay sets the maximum delay between retries.
func WithMaxRetryDelay(d time.Duration) Option {
	return func(c *clientConfig) {
		c.clientOpts = append(c.clientOpts, client.WithMaxRetryDelay(d))
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.clientOpts = append(c.clientOpts, client.WithTimeout(d))
	}
}

// WithProactiveThrottle enables sliding window throttling.
// SeaTable Cloud allows 300 API requests per minute per base.
func WithProactiveThrottle(requestsPerMinute int) Option {
	return func(c *clientConfig) {
		c.clientOpts = append(c.clientOpts, client.WithProactiveThrottle(requestsPerMinute))
	}
}

// WithThrottle sets a custom throttle implementation.
func WithThrottle(t Throttle) Option {
	return func(c *clientConfig) {
		c.clientOpts = append(c.clientOpts, client.WithThrottle(t))
	}
}

// WithDebug enables debug logging.
func WithDebug(enabled bool) Option {
	return func(c *clientConfig) {
		c.debug = enabled
		c.clientOpts = append(c.clientOpts, client.WithDebug(enabled))
	}
}

// WithLanguage sets the language sent with base requests, e.g. "de" or "zh-CN".
func WithLanguage(lang string) Option {
	return func(c *clientConfig) {
		c.clientOpts = append(c.clientOpts, client.WithLanguage(lang))
	}
}

// WithDateLocation renders date columns in loc. The default is the local zone.
func WithDateLocation(loc *time.Location) Option {
	return func(c *clientConfig) {
		c.clientOpts = append(c.clientOpts, client.WithDateRenderer(core.NewDateRenderer(loc)))
	}
}

// WithDateRenderer replaces the renderer used for date columns.
func WithDateRenderer(r DateRenderer) Option {
	return func(c *clientConfig) {
		c.clientOpts = append(c.clientOpts, client.WithDateRenderer(r))
	}
}

// WithOnRateLimit sets a callback for rate limit events.
func WithOnRateLimit(callback func(RateLimitInfo)) Option {
	return func(c *clientConfig) {
		c.clientOpts = append(c.clientOpts, client.WithOnRateLimit(callback))
	}
}

// New creates a new SeaTable client for the server at serverURL.
func New(serverURL string, opts ...Option) (*Client, error) {
	server, err := auth.NormalizeServerURL(serverURL)
	if err != nil {
		return nil, err
	}

	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	strategy, err := cfg.resolveStrategy(server)
	if err != nil {
		return nil, err
	}

	return client.New(server, strategy, cfg.clientOpts...)
}

func (c *clientConfig) resolveStrategy(server string) (auth.Strategy, error) {
	switch {
	case c.strategy != nil:
		return c.strategy, nil
	case c.accessToken != nil:
		return auth.NewAccessTokenStrategy(server, c.accessToken.token, c.accessToken.dtableUUID, c.accessToken.opts...)
	case c.apiToken != "":
		opts := c.apiTokenOpts
		if c.debug {
			opts = append([]auth.APITokenOption{auth.WithLogger(core.NewLogger(true))}, opts...)
		}
		return auth.NewAPITokenStrategy(server, c.apiToken, opts...)
	default:
		return nil, &Error{Message: "no authentication configured; use WithAPIToken or WithAccessToken"}
	}
}

// Error represents a SeaTable SDK error.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Helper functions re-exported from core
var (
	// IsRetryableError returns true if the error should trigger a retry.
	IsRetryableError = core.IsRetryableError

	// ParseErrorResponse parses an HTTP response into an appropriate error type.
	ParseErrorResponse = core.ParseErrorResponse

	// IndexSchema builds the option lookup tables for a query's columns.
	IndexSchema = core.IndexSchema

	// FormatQueryResult decodes raw query rows into rows keyed by column name.
	FormatQueryResult = core.FormatQueryResult

	// NewDateRenderer returns a date renderer for the given location.
	NewDateRenderer = core.NewDateRenderer
)

// NewSlidingWindowThrottle creates a new sliding window throttle.
func NewSlidingWindowThrottle(limit int, window time.Duration) *SlidingWindowThrottle {
	return client.NewSlidingWindowThrottle(limit, window)
}

// NewNoOpThrottle creates a no-op throttle.
func NewNoOpThrottle() *NoOpThrottle {
	return client.NewNoOpThrottle()
}
