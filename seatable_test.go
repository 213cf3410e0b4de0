package seatable

import (
	"context"
	"testing"
	"time"

	"github.com/DrewBradfordXYZ/seatable-go/auth"
	"github.com/DrewBradfordXYZ/seatable-go/client"
	"github.com/DrewBradfordXYZ/seatable-go/seatabletest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Authentication(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		_, err := New("https://cloud.seatable.io")
		var sdkErr *Error
		require.ErrorAs(t, err, &sdkErr)
		assert.Contains(t, sdkErr.Message, "WithAPIToken")
	})

	t.Run("rejects server without scheme", func(t *testing.T) {
		_, err := New("cloud.seatable.io", WithAPIToken("token"))
		assert.ErrorContains(t, err, "must start with http")
	})

	t.Run("rejects invalid base uuid", func(t *testing.T) {
		_, err := New("https://cloud.seatable.io", WithAccessToken("token", "not-a-uuid"))
		assert.ErrorContains(t, err, "invalid dtable uuid")
	})

	t.Run("access token wins over api token", func(t *testing.T) {
		cfg := &clientConfig{}
		WithAPIToken("api")(cfg)
		WithAccessToken("access", seatabletest.DTableUUID)(cfg)
		strategy, err := cfg.resolveStrategy("https://cloud.seatable.io")
		require.NoError(t, err)
		assert.IsType(t, &auth.AccessTokenStrategy{}, strategy)
	})

	t.Run("custom strategy wins", func(t *testing.T) {
		custom, err := auth.NewAccessTokenStrategy("https://cloud.seatable.io", "token", seatabletest.DTableUUID)
		require.NoError(t, err)
		cfg := &clientConfig{}
		WithAPIToken("api")(cfg)
		WithAuthStrategy(custom)(cfg)
		strategy, err := cfg.resolveStrategy("https://cloud.seatable.io")
		require.NoError(t, err)
		assert.Same(t, custom, strategy)
	})
}

func TestNew_Options(t *testing.T) {
	c, err := New("https://cloud.seatable.io/",
		WithAccessToken("token", seatabletest.DTableUUID),
		WithGateway(true),
		WithMaxRetries(1),
		WithRetryDelay(time.Millisecond),
		WithMaxRetryDelay(time.Second),
		WithTimeout(time.Second),
		WithProactiveThrottle(100),
		WithLanguage("fr"),
		WithDateLocation(time.UTC),
	)
	require.NoError(t, err)
	assert.IsType(t, &client.GatewayTransport{}, c.Transport())
}

func TestNew_QueryThroughFacade(t *testing.T) {
	mock := seatabletest.NewMockSeaTableServer()
	defer mock.Close()
	mock.AddQuery("SELECT 1", &seatabletest.MockQuery{})

	for _, gateway := range []bool{false, true} {
		c, err := New(mock.URL(), WithAPIToken(seatabletest.APIToken), WithGateway(gateway))
		require.NoError(t, err)

		rows, err := c.Query(context.Background(), "SELECT 1")
		require.NoError(t, err)
		assert.Empty(t, rows)
		assert.NotNil(t, rows)
	}
	assert.Equal(t, 2, mock.ExchangeCount())
}
