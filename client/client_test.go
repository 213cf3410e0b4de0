package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DrewBradfordXYZ/seatable-go/auth"
	"github.com/DrewBradfordXYZ/seatable-go/core"
	"github.com/DrewBradfordXYZ/seatable-go/seatabletest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taskColumns = []core.Column{
	{Key: "0000", Name: "Name", Type: core.ColumnTypeText},
	{Key: "st01", Name: "Status", Type: core.ColumnTypeSingleSelect, Data: &core.ColumnData{
		Options: []core.SelectOption{{ID: "o1", Name: "Done"}, {ID: "o2", Name: "Todo"}},
	}},
	{Key: "tg01", Name: "Tags", Type: core.ColumnTypeMultipleSelect, Data: &core.ColumnData{
		Options: []core.SelectOption{{ID: "t1", Name: "A"}, {ID: "t2", Name: "B"}},
	}},
	{Key: "ow01", Name: "Owner", Type: core.ColumnTypeLink, Data: &core.ColumnData{
		LinkID: "lk01", TableID: "0000", OtherTableID: "pe01", ArrayType: core.ColumnTypeText,
	}},
	{Key: "du01", Name: "Due", Type: core.ColumnTypeDate, Data: &core.ColumnData{Format: "YYYY-MM-DD"}},
}

func newMockServer(t *testing.T) *seatabletest.MockSeaTableServer {
	t.Helper()
	mock := seatabletest.NewMockSeaTableServer()
	t.Cleanup(mock.Close)

	mock.AddTable(&seatabletest.MockTable{
		ID:      "0000",
		Name:    "Tasks",
		Columns: taskColumns,
		Views:   []seatabletest.MockView{{ID: "0000", Name: "Default View", Type: "table"}, {ID: "v2", Name: "Open", Type: "table"}},
		Rows: []core.Row{
			{"_id": "r1", "0000": "Write docs", "st01": "o1"},
			{"_id": "r2", "0000": "Ship", "st01": "o2"},
			{"_id": "r3", "0000": "Celebrate"},
		},
	})
	mock.AddQuery("SELECT * FROM `Tasks`", &seatabletest.MockQuery{
		Columns: taskColumns,
		Rows: []core.Row{{
			"_id":  "r1",
			"0000": "Write docs",
			"st01": "o1",
			"tg01": []any{"t1", "t2", "t1"},
			"ow01": []any{map[string]any{"row_id": "p1", "display_value": "Alice"}, map[string]any{"row_id": "p2", "display_value": "Bob"}},
			"du01": "2021-06-01T09:30:00+00:00",
		}},
	})
	mock.AddQuery("SELECT broken", &seatabletest.MockQuery{Error: "Table broken not found"})
	mock.AddLinks("0000", "ow01", "r1", []seatabletest.MockLinkedRecord{
		{RowID: "p1", DisplayValue: "Alice"},
		{RowID: "p2", DisplayValue: "Bob"},
		{RowID: "p3", DisplayValue: "Carol"},
	})
	return mock
}

func newTestClient(t *testing.T, mock *seatabletest.MockSeaTableServer, opts ...Option) *Client {
	t.Helper()
	strategy, err := auth.NewAPITokenStrategy(mock.URL(), seatabletest.APIToken)
	require.NoError(t, err)

	opts = append([]Option{
		WithRetryDelay(time.Millisecond),
		WithDateRenderer(core.NewDateRenderer(time.UTC)),
	}, opts...)
	c, err := New(mock.URL(), strategy, opts...)
	require.NoError(t, err)
	return c
}

// forEachTransport runs fn against a legacy client and a gateway client.
func forEachTransport(t *testing.T, fn func(t *testing.T, mock *seatabletest.MockSeaTableServer, c *Client)) {
	for _, gateway := range []bool{false, true} {
		name := "legacy"
		if gateway {
			name = "gateway"
		}
		t.Run(name, func(t *testing.T) {
			mock := newMockServer(t)
			fn(t, mock, newTestClient(t, mock, WithGateway(gateway)))
		})
	}
}

func TestNew(t *testing.T) {
	strategy, err := auth.NewAccessTokenStrategy("https://cloud.seatable.io", "token", seatabletest.DTableUUID)
	require.NoError(t, err)

	t.Run("defaults to legacy transport", func(t *testing.T) {
		c, err := New("https://cloud.seatable.io/", strategy)
		require.NoError(t, err)
		assert.IsType(t, &LegacyTransport{}, c.Transport())
		assert.Equal(t, "en", c.lang)
		assert.Equal(t, 3, c.maxRetries)
	})

	t.Run("gateway transport", func(t *testing.T) {
		c, err := New("https://cloud.seatable.io", strategy, WithGateway(true))
		require.NoError(t, err)
		gateway, ok := c.Transport().(*GatewayTransport)
		require.True(t, ok)
		assert.Equal(t, "https://cloud.seatable.io/api-gateway", gateway.baseURL)
	})

	t.Run("language is normalized", func(t *testing.T) {
		c, err := New("https://cloud.seatable.io", strategy, WithLanguage("de-DE"))
		require.NoError(t, err)
		assert.Equal(t, "de", c.lang)
	})

	t.Run("invalid language", func(t *testing.T) {
		_, err := New("https://cloud.seatable.io", strategy, WithLanguage("not a language!"))
		assert.ErrorContains(t, err, "invalid language")
	})

	t.Run("requires auth", func(t *testing.T) {
		_, err := New("https://cloud.seatable.io", nil)
		assert.Error(t, err)
	})

	t.Run("requires server", func(t *testing.T) {
		_, err := New("", strategy)
		assert.Error(t, err)
	})
}

func TestClient_ListTables(t *testing.T) {
	forEachTransport(t, func(t *testing.T, mock *seatabletest.MockSeaTableServer, c *Client) {
		tables, err := c.ListTables(context.Background())
		require.NoError(t, err)
		require.Len(t, tables, 1)
		assert.Equal(t, "Tasks", tables[0].Name)
		assert.Len(t, tables[0].Columns, len(taskColumns))

		req, _ := mock.LastRequest()
		assert.Equal(t, "en", req.Query.Get("lang"))
		assert.Equal(t, "Token "+mock.AccessToken(), req.Authorization)

		table, err := c.GetTableByName(context.Background(), "Tasks")
		require.NoError(t, err)
		assert.Equal(t, "0000", table.ID)

		_, err = c.GetTableByName(context.Background(), "Nope")
		var notFound *core.NotFoundError
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestClient_GetMetadata(t *testing.T) {
	forEachTransport(t, func(t *testing.T, mock *seatabletest.MockSeaTableServer, c *Client) {
		metadata, err := c.GetMetadata(context.Background())
		require.NoError(t, err)
		require.Len(t, metadata.Tables, 1)
		assert.Equal(t, "Default View", metadata.Tables[0].Views[0].Name)
		assert.Equal(t, core.ColumnTypeSingleSelect, metadata.Tables[0].Columns[1].Type)
	})
}

func TestClient_Views(t *testing.T) {
	forEachTransport(t, func(t *testing.T, mock *seatabletest.MockSeaTableServer, c *Client) {
		ctx := context.Background()

		views, err := c.ListViews(ctx, "Tasks")
		require.NoError(t, err)
		assert.Len(t, views, 2)

		view, err := c.GetViewByName(ctx, "Tasks", "Open")
		require.NoError(t, err)
		assert.Equal(t, "v2", view.ID)

		_, err = c.ListViews(ctx, "Missing")
		var notFound *core.NotFoundError
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestClient_Columns(t *testing.T) {
	forEachTransport(t, func(t *testing.T, mock *seatabletest.MockSeaTableServer, c *Client) {
		ctx := context.Background()

		columns, err := c.ListColumns(ctx, "Tasks", "Default View")
		require.NoError(t, err)
		assert.Len(t, columns, len(taskColumns))
		req, _ := mock.LastRequest()
		assert.Equal(t, "Default View", req.Query.Get("view_name"))

		col, err := c.GetColumnByName(ctx, "Tasks", "Status")
		require.NoError(t, err)
		assert.Equal(t, "st01", col.Key)
		assert.Len(t, col.Data.Options, 2)

		_, err = c.GetColumnByName(ctx, "Tasks", "status")
		var schemaErr *core.SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Contains(t, schemaErr.Message, "Did you mean 'Status'?")

		selects, err := c.GetColumnsByType(ctx, "Tasks", core.ColumnTypeSingleSelect)
		require.NoError(t, err)
		require.Len(t, selects, 1)
		assert.Equal(t, "Status", selects[0].Name)

		none, err := c.GetColumnsByType(ctx, "Tasks", core.ColumnTypeGeolocation)
		require.NoError(t, err)
		assert.Empty(t, none)

		linkID, err := c.GetColumnLinkID(ctx, "Tasks", "Owner")
		require.NoError(t, err)
		assert.Equal(t, "lk01", linkID)

		_, err = c.GetColumnLinkID(ctx, "Tasks", "Name")
		require.ErrorAs(t, err, &schemaErr)
		assert.Contains(t, schemaErr.Message, "is not a link column")
	})
}

func TestClient_Rows(t *testing.T) {
	forEachTransport(t, func(t *testing.T, mock *seatabletest.MockSeaTableServer, c *Client) {
		ctx := context.Background()

		rows, err := c.ListRows(ctx, ListRowsOptions{Table: "Tasks", View: "Default View", OrderBy: "Name", Desc: true, Start: 1, Limit: 1})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "r2", rows[0]["_id"])
		assert.Equal(t, "Ship", rows[0]["Name"])

		req, _ := mock.LastRequest()
		assert.Equal(t, "Tasks", req.Query.Get("table_name"))
		assert.Equal(t, "Name", req.Query.Get("order_by"))
		assert.Equal(t, "desc", req.Query.Get("direction"))
		assert.Equal(t, "1", req.Query.Get("start"))
		assert.Equal(t, "1", req.Query.Get("limit"))
		assert.Equal(t, "true", req.Query.Get("convert_link_id"))

		all, err := c.ListRows(ctx, ListRowsOptions{Table: "Tasks"})
		require.NoError(t, err)
		assert.Len(t, all, 3)
		req, _ = mock.LastRequest()
		assert.False(t, req.Query.Has("direction"))
		assert.False(t, req.Query.Has("limit"))

		row, err := c.GetRow(ctx, "Tasks", "r3")
		require.NoError(t, err)
		assert.Equal(t, "Celebrate", row["Name"])

		_, err = c.ListRows(ctx, ListRowsOptions{})
		var validation *core.ValidationError
		assert.ErrorAs(t, err, &validation)
	})
}

func TestClient_GetLinkedRecords(t *testing.T) {
	forEachTransport(t, func(t *testing.T, mock *seatabletest.MockSeaTableServer, c *Client) {
		ctx := context.Background()

		links, err := c.GetLinkedRecords(ctx, "0000", "ow01", []LinkedRowQuery{
			{RowID: "r1", Offset: 1, Limit: 5},
			{RowID: "r2", Limit: 10},
		})
		require.NoError(t, err)
		require.Len(t, links["r1"], 2)
		assert.Equal(t, "Bob", links["r1"][0].DisplayValue)
		assert.Empty(t, links["r2"])

		empty, err := c.GetLinkedRecords(ctx, "0000", "ow01", nil)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func TestClient_Query(t *testing.T) {
	forEachTransport(t, func(t *testing.T, mock *seatabletest.MockSeaTableServer, c *Client) {
		ctx := context.Background()

		rows, err := c.Query(ctx, "SELECT * FROM `Tasks`")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, core.Row{
			"_id":    "r1",
			"Name":   "Write docs",
			"Status": "Done",
			"Tags":   []any{"A", "B", "A"},
			"Owner":  []any{"Alice", "Bob"},
			"Due":    "2021-06-01",
		}, rows[0])

		raw, err := c.QueryRaw(ctx, "SELECT * FROM `Tasks`")
		require.NoError(t, err)
		assert.Equal(t, "o1", raw.Rows[0]["st01"])
		assert.Len(t, raw.Columns, len(taskColumns))

		req, _ := mock.LastRequest()
		var body map[string]any
		require.NoError(t, json.Unmarshal(req.Body, &body))
		assert.Equal(t, "SELECT * FROM `Tasks`", body["sql"])
	})
}

func TestClient_QueryFailure(t *testing.T) {
	t.Run("legacy reports success false", func(t *testing.T) {
		mock := newMockServer(t)
		c := newTestClient(t, mock)

		_, err := c.Query(context.Background(), "SELECT broken")
		var queryErr *core.QueryError
		require.ErrorAs(t, err, &queryErr)
		assert.Equal(t, "Table broken not found", queryErr.Message)
		assert.Equal(t, "SELECT broken", queryErr.SQL)
	})

	t.Run("gateway reports http 400", func(t *testing.T) {
		mock := newMockServer(t)
		c := newTestClient(t, mock, WithGateway(true))

		_, err := c.Query(context.Background(), "SELECT broken")
		var validation *core.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Equal(t, "Table broken not found", validation.Message)
	})

	t.Run("empty sql", func(t *testing.T) {
		mock := newMockServer(t)
		c := newTestClient(t, mock)
		_, err := c.Query(context.Background(), "")
		assert.Error(t, err)
	})
}

func TestClient_RetriesServerErrors(t *testing.T) {
	mock := newMockServer(t)
	var buf bytes.Buffer
	c := newTestClient(t, mock, WithLogger(core.NewLoggerWithWriter(&buf, true)))

	mock.FailNext(http.StatusBadGateway, 2, nil, `{"detail":"bad gateway"}`)
	tables, err := c.ListTables(context.Background())
	require.NoError(t, err)
	assert.Len(t, tables, 1)
	assert.Len(t, mock.Requests(), 3)

	mock.FailNext(http.StatusServiceUnavailable, 4, nil, "")
	_, err = c.ListTables(context.Background())
	var serverErr *core.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusServiceUnavailable, serverErr.StatusCode)
	assert.Contains(t, buf.String(), "retrying")
}

func TestClient_RateLimitCallback(t *testing.T) {
	mock := newMockServer(t)
	var infos []core.RateLimitInfo
	c := newTestClient(t, mock, WithOnRateLimit(func(info core.RateLimitInfo) {
		infos = append(infos, info)
	}), WithMaxRetries(1))

	mock.FailNext(http.StatusTooManyRequests, 1, map[string]string{"Retry-After": "0", "X-RateLimit-Limit": "300"}, "")
	_, err := c.ListTables(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 1, infos[0].Attempt)
	assert.Equal(t, 300, infos[0].Limit)

	mock.FailNext(http.StatusTooManyRequests, 2, map[string]string{"Retry-After": "0"}, `{"detail":"Request was throttled."}`)
	_, err = c.ListTables(context.Background())
	var rateLimit *core.RateLimitError
	require.ErrorAs(t, err, &rateLimit)
	assert.Len(t, infos, 3)
}

func TestClient_RefreshesExpiredSession(t *testing.T) {
	mock := newMockServer(t)
	c := newTestClient(t, mock)
	ctx := context.Background()

	_, err := c.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.ExchangeCount())

	mock.ExpireAccessToken()
	_, err = c.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, mock.ExchangeCount())
}

// movingStrategy hands out a session on a new dtable-server after a 401.
type movingStrategy struct {
	session *auth.Session
	next    *auth.Session
}

func (m *movingStrategy) GetSession(ctx context.Context) (*auth.Session, error) {
	return m.session, nil
}

func (m *movingStrategy) ApplyAuth(req *http.Request, token string) {
	req.Header.Set("Authorization", "Token "+token)
}

func (m *movingStrategy) HandleAuthError(ctx context.Context, statusCode, attempt, maxAttempts int) (*auth.Session, error) {
	if m.next == nil {
		return nil, nil
	}
	m.session, m.next = m.next, nil
	return m.session, nil
}

func TestClient_RetryUsesRefreshedSessionServer(t *testing.T) {
	var oldHits, newHits atomic.Int32
	oldServer := newHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		oldHits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error_msg": "Token expired."}`))
	}))
	newServer := newHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		newHits.Add(1)
		assert.Equal(t, "Token fresh", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"tables": [{"_id": "0000", "name": "Tasks"}]}`))
	}))

	strategy := &movingStrategy{
		session: &auth.Session{AccessToken: "stale", DTableUUID: seatabletest.DTableUUID, DTableServer: oldServer},
		next:    &auth.Session{AccessToken: "fresh", DTableUUID: seatabletest.DTableUUID, DTableServer: newServer},
	}
	c, err := New(oldServer, strategy, WithRetryDelay(time.Millisecond))
	require.NoError(t, err)

	tables, err := c.ListTables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "Tasks", tables[0].Name)
	assert.Equal(t, int32(1), oldHits.Load())
	assert.Equal(t, int32(1), newHits.Load())
}

func TestClient_StaticTokenDoesNotRetry401(t *testing.T) {
	mock := newMockServer(t)
	strategy, err := auth.NewAccessTokenStrategy(mock.URL(), "stale", seatabletest.DTableUUID)
	require.NoError(t, err)
	c, err := New(mock.URL(), strategy, WithRetryDelay(time.Millisecond))
	require.NoError(t, err)

	_, err = c.ListTables(context.Background())
	var authErr *core.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Token expired.", authErr.Message)
	assert.Len(t, mock.Requests(), 1)
}

func TestClient_Timeout(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	server := newHTTPServer(t, slow)

	strategy, err := auth.NewAccessTokenStrategy(server, "token", seatabletest.DTableUUID)
	require.NoError(t, err)
	c, err := New(server, strategy, WithTimeout(20*time.Millisecond), WithMaxRetries(0))
	require.NoError(t, err)

	_, err = c.ListTables(context.Background())
	var timeout *core.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 20, timeout.TimeoutMs)
}

func newHTTPServer(t *testing.T, handler http.Handler) string {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server.URL
}

func TestClient_ContextCancelled(t *testing.T) {
	mock := newMockServer(t)
	c := newTestClient(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListTables(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_DebugLogging(t *testing.T) {
	mock := newMockServer(t)
	var buf bytes.Buffer
	c := newTestClient(t, mock, WithLogger(core.NewLoggerWithWriter(&buf, true)))

	_, err := c.Query(context.Background(), "SELECT * FROM `Tasks`")
	require.NoError(t, err)
	assert.True(t, strings.Contains(buf.String(), "request completed"))
	assert.NotContains(t, buf.String(), mock.AccessToken())
}
