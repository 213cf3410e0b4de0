package auth

import (
	"context"
	"fmt"
	"net/http"
)

// AccessTokenStrategy authenticates with a pre-issued base access token.
//
// The token cannot be refreshed; once it expires requests fail with 401.
type AccessTokenStrategy struct {
	session *Session
}

// AccessTokenOption configures an AccessTokenStrategy.
type AccessTokenOption func(*Session)

// WithDTableServer overrides the dtable-server URL (default {server}/dtable-server).
func WithDTableServer(url string) AccessTokenOption {
	return func(s *Session) {
		s.DTableServer = trimURL(url)
	}
}

// WithDTableDB overrides the dtable-db URL (default {server}/dtable-db).
func WithDTableDB(url string) AccessTokenOption {
	return func(s *Session) {
		s.DTableDB = trimURL(url)
	}
}

// NewAccessTokenStrategy creates a strategy for an access token that was
// obtained elsewhere.
func NewAccessTokenStrategy(server, accessToken, dtableUUID string, opts ...AccessTokenOption) (*AccessTokenStrategy, error) {
	server, err := NormalizeServerURL(server)
	if err != nil {
		return nil, err
	}
	if accessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}
	dtableUUID, err = ValidateDTableUUID(dtableUUID)
	if err != nil {
		return nil, err
	}

	session := &Session{
		AccessToken:  accessToken,
		DTableUUID:   dtableUUID,
		DTableServer: server + "/dtable-server",
		DTableDB:     server + "/dtable-db",
	}
	for _, opt := range opts {
		opt(session)
	}
	return &AccessTokenStrategy{session: session}, nil
}

// GetSession returns the static session.
func (s *AccessTokenStrategy) GetSession(ctx context.Context) (*Session, error) {
	return s.session, nil
}

// ApplyAuth applies the access token to the Authorization header.
func (s *AccessTokenStrategy) ApplyAuth(req *http.Request, token string) {
	applyTokenHeader(req, token)
}

// HandleAuthError always returns nil; a static token cannot be refreshed.
func (s *AccessTokenStrategy) HandleAuthError(ctx context.Context, statusCode int, attempt int, maxAttempts int) (*Session, error) {
	return nil, nil
}
