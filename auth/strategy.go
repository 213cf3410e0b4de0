// Package auth provides authentication strategies for the SeaTable API.
//
// SeaTable supports two ways to obtain a base access token:
//
//   - API Token: A long-lived per-base token that is exchanged for a short-lived
//     access token (valid for three days) plus the server URLs of the base.
//   - Access Token: A pre-issued access token used as-is, for callers that
//     already performed the exchange elsewhere.
//
// # API Token (Recommended)
//
// Generate an API token in the base's "Advanced" menu. The SDK exchanges it at:
//
//	GET {server}/api/v2.1/dtable/app-access-token/
//	Authorization: Token <api token>
//
// and caches the resulting session until shortly before it expires:
//
//	client, _ := seatable.New("https://cloud.seatable.io",
//	    seatable.WithAPIToken("5f3d..."),
//	)
//
// # Access Token
//
//	client, _ := seatable.New("https://cloud.seatable.io",
//	    seatable.WithAccessToken("eyJ0eXAi...", "650d8a0d-7e27-46a8-8b06-a51a5fe5a1fd"),
//	)
//
// See: https://api.seatable.io/reference/getbaseaccesstokenwithapitoken
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session is an authenticated base session.
//
// DTableServer and DTableDB are the base URLs of the dtable-server and
// dtable-db services hosting the base, without a trailing slash.
type Session struct {
	AppName      string
	AccessToken  string
	DTableUUID   string
	DTableServer string
	DTableSocket string
	DTableDB     string
	ExpiresAt    time.Time
}

// Expired reports whether the session should no longer be used.
func (s *Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && !time.Now().Before(s.ExpiresAt)
}

// Strategy defines the interface for authentication strategies.
//
// The SDK provides two built-in implementations:
//   - [APITokenStrategy]: exchanges an API token for an access token
//   - [AccessTokenStrategy]: uses a pre-issued access token
type Strategy interface {
	// GetSession returns the current session, creating it if needed.
	GetSession(ctx context.Context) (*Session, error)

	// ApplyAuth applies the Authorization header for the given access token.
	ApplyAuth(req *http.Request, token string)

	// HandleAuthError handles authentication errors and potentially refreshes the session.
	// Returns a new session if refresh was successful, nil otherwise.
	// This is called when the API returns 401 Unauthorized.
	HandleAuthError(ctx context.Context, statusCode int, attempt int, maxAttempts int) (*Session, error)
}

// applyTokenHeader sets the header format shared by every SeaTable endpoint.
func applyTokenHeader(req *http.Request, token string) {
	req.Header.Set("Authorization", "Token "+token)
}

// NormalizeServerURL trims whitespace and trailing slashes from a server URL
// and rejects values without an http or https scheme.
func NormalizeServerURL(server string) (string, error) {
	server = strings.TrimRight(strings.TrimSpace(server), "/")
	if server == "" {
		return "", fmt.Errorf("server URL is required")
	}
	if !strings.HasPrefix(server, "https://") && !strings.HasPrefix(server, "http://") {
		return "", fmt.Errorf("server URL %q must start with http:// or https://", server)
	}
	return server, nil
}

// ValidateDTableUUID checks that id is a base UUID and returns its canonical form.
func ValidateDTableUUID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("invalid dtable uuid %q: %w", id, err)
	}
	return parsed.String(), nil
}

func trimURL(u string) string {
	return strings.TrimRight(u, "/")
}
