package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DrewBradfordXYZ/seatable-go/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUUID = "650d8a0d-7e27-46a8-8b06-a51a5fe5a1fd"

func newExchangeServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2.1/dtable/app-access-token/" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Token api-token" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"detail":"Invalid token."}`))
			return
		}
		n := atomic.AddInt32(calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"app_name":      "sdk-test",
			"access_token":  "access-" + string(rune('0'+n)),
			"dtable_uuid":   testUUID,
			"dtable_server": server.URL + "/dtable-server/",
			"dtable_socket": server.URL + "/",
			"dtable_db":     server.URL + "/dtable-db/",
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAPITokenStrategy_Exchange(t *testing.T) {
	var calls int32
	server := newExchangeServer(t, &calls)

	strategy, err := NewAPITokenStrategy(server.URL+"/", "api-token")
	require.NoError(t, err)

	session, err := strategy.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", session.AccessToken)
	assert.Equal(t, "sdk-test", session.AppName)
	assert.Equal(t, testUUID, session.DTableUUID)
	assert.Equal(t, server.URL+"/dtable-server", session.DTableServer)
	assert.Equal(t, server.URL+"/dtable-db", session.DTableDB)
	assert.False(t, session.Expired())

	// Cached
	again, err := strategy.GetSession(context.Background())
	require.NoError(t, err)
	assert.Same(t, session, again)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAPITokenStrategy_ConcurrentExchangeIsShared(t *testing.T) {
	var calls int32
	server := newExchangeServer(t, &calls)

	strategy, err := NewAPITokenStrategy(server.URL, "api-token")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := strategy.GetSession(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAPITokenStrategy_Expiry(t *testing.T) {
	var calls int32
	server := newExchangeServer(t, &calls)

	strategy, err := NewAPITokenStrategy(server.URL, "api-token", WithSessionLifespan(20*time.Millisecond))
	require.NoError(t, err)

	_, err = strategy.GetSession(context.Background())
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	session, err := strategy.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", session.AccessToken)
}

func TestAPITokenStrategy_HandleAuthError(t *testing.T) {
	var calls int32
	server := newExchangeServer(t, &calls)

	strategy, err := NewAPITokenStrategy(server.URL, "api-token")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = strategy.GetSession(ctx)
	require.NoError(t, err)

	t.Run("non-401 is ignored", func(t *testing.T) {
		session, err := strategy.HandleAuthError(ctx, http.StatusForbidden, 0, 3)
		assert.NoError(t, err)
		assert.Nil(t, session)
	})

	t.Run("last attempt is not refreshed", func(t *testing.T) {
		session, err := strategy.HandleAuthError(ctx, http.StatusUnauthorized, 2, 3)
		assert.NoError(t, err)
		assert.Nil(t, session)
	})

	t.Run("401 re-exchanges", func(t *testing.T) {
		session, err := strategy.HandleAuthError(ctx, http.StatusUnauthorized, 0, 3)
		require.NoError(t, err)
		assert.Equal(t, "access-2", session.AccessToken)
	})
}

func TestAPITokenStrategy_ExchangeFailure(t *testing.T) {
	var calls int32
	server := newExchangeServer(t, &calls)

	strategy, err := NewAPITokenStrategy(server.URL, "wrong-token")
	require.NoError(t, err)

	_, err = strategy.GetSession(context.Background())
	var authz *core.AuthorizationError
	require.ErrorAs(t, err, &authz)
	assert.Equal(t, "Invalid token.", authz.Message)
}

func TestAPITokenStrategy_InvalidUUID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"a","dtable_uuid":"not-a-uuid"}`))
	}))
	defer server.Close()

	strategy, err := NewAPITokenStrategy(server.URL, "api-token")
	require.NoError(t, err)

	_, err = strategy.GetSession(context.Background())
	assert.ErrorContains(t, err, "invalid dtable uuid")
}

func TestAPITokenStrategy_DefaultsDTableDB(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"a","dtable_uuid":"650d8a0d7e2746a88b06a51a5fe5a1fd","dtable_server":"https://x/dtable-server/"}`))
	}))
	defer server.Close()

	strategy, err := NewAPITokenStrategy(server.URL, "api-token")
	require.NoError(t, err)

	session, err := strategy.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/dtable-db", session.DTableDB)
	assert.Equal(t, testUUID, session.DTableUUID)
}

func TestNewAPITokenStrategy_Validation(t *testing.T) {
	_, err := NewAPITokenStrategy("", "token")
	assert.Error(t, err)

	_, err = NewAPITokenStrategy("cloud.seatable.io", "token")
	assert.ErrorContains(t, err, "must start with http")

	_, err = NewAPITokenStrategy("https://cloud.seatable.io", "")
	assert.ErrorContains(t, err, "api token is required")
}

func TestAccessTokenStrategy(t *testing.T) {
	strategy, err := NewAccessTokenStrategy("https://cloud.seatable.io/", "access", testUUID)
	require.NoError(t, err)

	session, err := strategy.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access", session.AccessToken)
	assert.Equal(t, "https://cloud.seatable.io/dtable-server", session.DTableServer)
	assert.Equal(t, "https://cloud.seatable.io/dtable-db", session.DTableDB)
	assert.False(t, session.Expired())

	refreshed, err := strategy.HandleAuthError(context.Background(), http.StatusUnauthorized, 0, 3)
	assert.NoError(t, err)
	assert.Nil(t, refreshed)
}

func TestAccessTokenStrategy_Options(t *testing.T) {
	strategy, err := NewAccessTokenStrategy("https://seatable.example.com", "access", testUUID,
		WithDTableServer("https://dtable.example.com/"),
		WithDTableDB("https://db.example.com/"),
	)
	require.NoError(t, err)

	session, _ := strategy.GetSession(context.Background())
	assert.Equal(t, "https://dtable.example.com", session.DTableServer)
	assert.Equal(t, "https://db.example.com", session.DTableDB)
}

func TestAccessTokenStrategy_InvalidUUID(t *testing.T) {
	_, err := NewAccessTokenStrategy("https://cloud.seatable.io", "access", "base-1")
	assert.ErrorContains(t, err, "invalid dtable uuid")
}

func TestApplyAuth(t *testing.T) {
	strategies := map[string]Strategy{
		"api token":    &APITokenStrategy{},
		"access token": &AccessTokenStrategy{},
	}
	for name, strategy := range strategies {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			strategy.ApplyAuth(req, "my-token")
			assert.Equal(t, "Token my-token", req.Header.Get("Authorization"))
		})
	}
}
