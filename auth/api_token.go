package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/DrewBradfordXYZ/seatable-go/core"
)

// DefaultSessionLifespan is how long an exchanged session is reused.
// Access tokens are valid for 72 hours.
const DefaultSessionLifespan = 71 * time.Hour

// APITokenStrategy authenticates by exchanging a base API token for an
// access token.
type APITokenStrategy struct {
	server   string
	apiToken string
	client   *http.Client
	lifespan time.Duration
	logger   *core.Logger

	mu      sync.RWMutex
	session *Session
	pending chan struct{}
}

// APITokenOption configures an APITokenStrategy.
type APITokenOption func(*APITokenStrategy)

// WithSessionLifespan sets the session cache lifespan (default 71 hours).
func WithSessionLifespan(d time.Duration) APITokenOption {
	return func(s *APITokenStrategy) {
		s.lifespan = d
	}
}

// WithHTTPClient sets a custom HTTP client for the token exchange.
func WithHTTPClient(client *http.Client) APITokenOption {
	return func(s *APITokenStrategy) {
		s.client = client
	}
}

// WithLogger sets the logger used for token events.
func WithLogger(logger *core.Logger) APITokenOption {
	return func(s *APITokenStrategy) {
		s.logger = logger
	}
}

// NewAPITokenStrategy creates a new API token authentication strategy.
//
// Example:
//
//	strategy, err := auth.NewAPITokenStrategy("https://cloud.seatable.io", "5f3d...")
func NewAPITokenStrategy(server, apiToken string, opts ...APITokenOption) (*APITokenStrategy, error) {
	server, err := NormalizeServerURL(server)
	if err != nil {
		return nil, err
	}
	if apiToken == "" {
		return nil, fmt.Errorf("api token is required")
	}

	s := &APITokenStrategy{
		server:   server,
		apiToken: apiToken,
		client:   http.DefaultClient,
		lifespan: DefaultSessionLifespan,
		logger:   core.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetSession returns the cached session, exchanging the API token if needed.
// Concurrent callers share a single exchange.
func (s *APITokenStrategy) GetSession(ctx context.Context) (*Session, error) {
	s.mu.RLock()
	if s.session != nil && !s.session.Expired() {
		session := s.session
		s.mu.RUnlock()
		return session, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	if s.session != nil && !s.session.Expired() {
		session := s.session
		s.mu.Unlock()
		return session, nil
	}
	if pending := s.pending; pending != nil {
		s.mu.Unlock()
		select {
		case <-pending:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return s.GetSession(ctx)
	}

	pending := make(chan struct{})
	s.pending = pending
	s.mu.Unlock()

	session, err := s.exchange(ctx)

	s.mu.Lock()
	s.pending = nil
	close(pending)
	if err == nil {
		s.session = session
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	s.logger.Token("exchanged", session.DTableUUID)
	return session, nil
}

type accessTokenResponse struct {
	AppName      string `json:"app_name"`
	AccessToken  string `json:"access_token"`
	DTableUUID   string `json:"dtable_uuid"`
	DTableServer string `json:"dtable_server"`
	DTableSocket string `json:"dtable_socket"`
	DTableDB     string `json:"dtable_db"`
}

func (s *APITokenStrategy) exchange(ctx context.Context) (*Session, error) {
	url := s.server + "/api/v2.1/dtable/app-access-token/"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	applyTokenHeader(req, s.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchanging api token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.ParseErrorResponse(resp, url)
	}

	var result accessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("no access token returned from API")
	}
	dtableUUID, err := ValidateDTableUUID(result.DTableUUID)
	if err != nil {
		return nil, err
	}

	dtableDB := trimURL(result.DTableDB)
	if dtableDB == "" {
		// Older servers do not report dtable-db.
		dtableDB = s.server + "/dtable-db"
	}

	return &Session{
		AppName:      result.AppName,
		AccessToken:  result.AccessToken,
		DTableUUID:   dtableUUID,
		DTableServer: trimURL(result.DTableServer),
		DTableSocket: trimURL(result.DTableSocket),
		DTableDB:     dtableDB,
		ExpiresAt:    time.Now().Add(s.lifespan),
	}, nil
}

// Invalidate drops the cached session so the next call exchanges again.
func (s *APITokenStrategy) Invalidate() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	s.logger.Token("invalidated", "")
}

// ApplyAuth applies the access token to the Authorization header.
func (s *APITokenStrategy) ApplyAuth(req *http.Request, token string) {
	applyTokenHeader(req, token)
}

// HandleAuthError handles 401 errors by invalidating the session and exchanging again.
func (s *APITokenStrategy) HandleAuthError(ctx context.Context, statusCode int, attempt int, maxAttempts int) (*Session, error) {
	if statusCode != http.StatusUnauthorized || attempt >= maxAttempts-1 {
		return nil, nil
	}

	s.Invalidate()
	return s.GetSession(ctx)
}
