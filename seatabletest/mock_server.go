// Package seatabletest provides an in-process SeaTable server for tests.
//
// The mock serves the API token exchange, the legacy dtable-server and
// dtable-db endpoints, and the v2 API gateway from the same data, so a test
// can run the same scenario against both transports.
package seatabletest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/DrewBradfordXYZ/seatable-go/core"
)

const (
	// APIToken is the API token accepted by the token exchange.
	APIToken = "mock-api-token"
	// DTableUUID is the uuid of the mock base.
	DTableUUID = "650d8a0d-7e27-46a8-8b06-a51a5fe5a1fd"
	// AppName is the app name returned by the token exchange.
	AppName = "seatabletest"
)

// --- Data Models ---

// MockView is a view of a mock table.
type MockView struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// MockTable is a table served by the mock.
type MockTable struct {
	ID      string
	Name    string
	Columns []core.Column
	Views   []MockView
	Rows    []core.Row
}

// MockQuery is the canned response for one SQL statement.
// A non-empty Error makes the query fail.
type MockQuery struct {
	Columns []core.Column
	Rows    []core.Row
	Error   string
}

// MockLinkedRecord is one entry of a linked-records response.
type MockLinkedRecord struct {
	RowID        string `json:"row_id"`
	DisplayValue any    `json:"display_value"`
}

// RecordedRequest is a request received by the mock.
type RecordedRequest struct {
	Method        string
	Path          string
	Query         url.Values
	Authorization string
	Body          []byte
}

type failure struct {
	status  int
	headers map[string]string
	body    string
}

// --- Mock Server Implementation ---

// MockSeaTableServer simulates a SeaTable server.
type MockSeaTableServer struct {
	server *httptest.Server

	mu       sync.RWMutex
	tables   []*MockTable
	queries  map[string]*MockQuery
	links    map[string][]MockLinkedRecord
	failures []failure
	requests []RecordedRequest

	accessToken    string
	tokenCounter   atomic.Int64
	exchangeCalled atomic.Int64
}

// NewMockSeaTableServer starts a new mock server. Call Close when done.
func NewMockSeaTableServer() *MockSeaTableServer {
	m := &MockSeaTableServer{
		queries: make(map[string]*MockQuery),
		links:   make(map[string][]MockLinkedRecord),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v2.1/dtable/app-access-token/{$}", m.handleTokenExchange)

	// Legacy dtable-server endpoints
	mux.HandleFunc("GET /dtable-server/dtables/{uuid}/{$}", m.authed(m.handleDTable))
	mux.HandleFunc("GET /dtable-server/api/v1/dtables/{uuid}/metadata/{$}", m.authed(m.handleMetadata))
	mux.HandleFunc("GET /dtable-server/api/v1/dtables/{uuid}/views/{$}", m.authed(m.handleListViews))
	mux.HandleFunc("GET /dtable-server/api/v1/dtables/{uuid}/views/{view}/{$}", m.authed(m.handleGetView))
	mux.HandleFunc("GET /dtable-server/api/v1/dtables/{uuid}/columns/{$}", m.authed(m.handleListColumns))
	mux.HandleFunc("GET /dtable-server/api/v1/dtables/{uuid}/rows/{$}", m.authed(m.handleListRows))
	mux.HandleFunc("GET /dtable-server/api/v1/dtables/{uuid}/rows/{row}/{$}", m.authed(m.handleGetRow))

	// Legacy dtable-db endpoints
	mux.HandleFunc("POST /dtable-db/api/v1/query/{uuid}/{$}", m.authed(m.handleLegacyQuery))
	mux.HandleFunc("POST /dtable-db/api/v1/linked-records/{uuid}/{$}", m.authed(m.handleLinkedRecords))

	// API gateway endpoints
	mux.HandleFunc("GET /api-gateway/api/v2/dtables/{uuid}/{$}", m.authed(m.handleDTable))
	mux.HandleFunc("GET /api-gateway/api/v2/dtables/{uuid}/metadata/{$}", m.authed(m.handleMetadata))
	mux.HandleFunc("GET /api-gateway/api/v2/dtables/{uuid}/views/{$}", m.authed(m.handleListViews))
	mux.HandleFunc("GET /api-gateway/api/v2/dtables/{uuid}/views/{view}/{$}", m.authed(m.handleGetView))
	mux.HandleFunc("GET /api-gateway/api/v2/dtables/{uuid}/columns/{$}", m.authed(m.handleListColumns))
	mux.HandleFunc("GET /api-gateway/api/v2/dtables/{uuid}/rows/{$}", m.authed(m.handleListRows))
	mux.HandleFunc("GET /api-gateway/api/v2/dtables/{uuid}/rows/{row}/{$}", m.authed(m.handleGetRow))
	mux.HandleFunc("POST /api-gateway/api/v2/dtables/{uuid}/sql/{$}", m.authed(m.handleGatewayQuery))
	mux.HandleFunc("POST /api-gateway/api/v2/dtables/{uuid}/query-links/{$}", m.authed(m.handleLinkedRecords))

	m.server = httptest.NewServer(m.record(mux))
	m.rotateAccessToken()
	return m
}

// URL returns the server's base URL.
func (m *MockSeaTableServer) URL() string {
	return m.server.URL
}

// Close shuts the server down.
func (m *MockSeaTableServer) Close() {
	m.server.Close()
}

// AccessToken returns the access token currently accepted by data endpoints.
func (m *MockSeaTableServer) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accessToken
}

// ExpireAccessToken invalidates the current access token so the next data
// request gets 401 until the API token is exchanged again.
func (m *MockSeaTableServer) ExpireAccessToken() {
	m.rotateAccessToken()
}

// ExchangeCount returns how often the API token was exchanged.
func (m *MockSeaTableServer) ExchangeCount() int {
	return int(m.exchangeCalled.Load())
}

// AddTable registers a table.
func (m *MockSeaTableServer) AddTable(table *MockTable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables = append(m.tables, table)
}

// AddQuery registers the response for a SQL statement.
func (m *MockSeaTableServer) AddQuery(sql string, query *MockQuery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries[sql] = query
}

// AddLinks registers the records linked to rowID through a link column.
func (m *MockSeaTableServer) AddLinks(tableID, linkColumnKey, rowID string, records []MockLinkedRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[linkKey(tableID, linkColumnKey, rowID)] = records
}

// FailNext makes the next count data requests fail with status.
func (m *MockSeaTableServer) FailNext(status, count int, headers map[string]string, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < count; i++ {
		m.failures = append(m.failures, failure{status: status, headers: headers, body: body})
	}
}

// Requests returns the requests received so far, excluding token exchanges.
func (m *MockSeaTableServer) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// LastRequest returns the most recent data request.
func (m *MockSeaTableServer) LastRequest() (RecordedRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return RecordedRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

func (m *MockSeaTableServer) rotateAccessToken() {
	n := m.tokenCounter.Add(1)
	m.mu.Lock()
	m.accessToken = "mock-access-token-" + strconv.FormatInt(n, 10)
	m.mu.Unlock()
}

func linkKey(tableID, linkColumnKey, rowID string) string {
	return tableID + "/" + linkColumnKey + "/" + rowID
}

// --- Middleware ---

func (m *MockSeaTableServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		if r.URL.Path != "/api/v2.1/dtable/app-access-token/" {
			m.mu.Lock()
			m.requests = append(m.requests, RecordedRequest{
				Method:        r.Method,
				Path:          r.URL.Path,
				Query:         r.URL.Query(),
				Authorization: r.Header.Get("Authorization"),
				Body:          body,
			})
			m.mu.Unlock()
		}
		next.ServeHTTP(w, r)
	})
}

func (m *MockSeaTableServer) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		if len(m.failures) > 0 {
			f := m.failures[0]
			m.failures = m.failures[1:]
			m.mu.Unlock()
			for k, v := range f.headers {
				w.Header().Set(k, v)
			}
			w.WriteHeader(f.status)
			_, _ = io.WriteString(w, f.body)
			return
		}
		token := m.accessToken
		m.mu.Unlock()

		if r.Header.Get("Authorization") != "Token "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token expired."})
			return
		}
		if r.PathValue("uuid") != DTableUUID {
			writeJSON(w, http.StatusNotFound, map[string]string{"error_msg": "dtable not found."})
			return
		}
		next(w, r)
	}
}

// --- Request Handlers ---

func (m *MockSeaTableServer) handleTokenExchange(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Token "+APIToken {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Invalid token."})
		return
	}
	m.exchangeCalled.Add(1)
	writeJSON(w, http.StatusOK, map[string]string{
		"app_name":      AppName,
		"access_token":  m.AccessToken(),
		"dtable_uuid":   DTableUUID,
		"dtable_server": m.server.URL + "/dtable-server/",
		"dtable_socket": m.server.URL + "/",
		"dtable_db":     m.server.URL + "/dtable-db/",
	})
}

type tablePayload struct {
	ID      string        `json:"_id"`
	Name    string        `json:"name"`
	Columns []core.Column `json:"columns"`
	Views   []MockView    `json:"views"`
}

func (m *MockSeaTableServer) tablePayloads(withRows bool) []any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tables := make([]any, 0, len(m.tables))
	for _, t := range m.tables {
		payload := tablePayload{ID: t.ID, Name: t.Name, Columns: t.Columns, Views: t.Views}
		if withRows {
			tables = append(tables, struct {
				tablePayload
				Rows []core.Row `json:"rows"`
			}{payload, t.Rows})
			continue
		}
		tables = append(tables, payload)
	}
	return tables
}

func (m *MockSeaTableServer) handleDTable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"_id":    DTableUUID,
		"tables": m.tablePayloads(true),
	})
}

func (m *MockSeaTableServer) handleMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"metadata": map[string]any{"tables": m.tablePayloads(false)},
	})
}

func (m *MockSeaTableServer) findTable(name string) *MockTable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tables {
		if t.Name == name || t.ID == name {
			return t
		}
	}
	return nil
}

func (m *MockSeaTableServer) tableOr404(w http.ResponseWriter, r *http.Request) *MockTable {
	name := r.URL.Query().Get("table_name")
	table := m.findTable(name)
	if table == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error_msg": fmt.Sprintf("table %s not found.", name)})
	}
	return table
}

func (m *MockSeaTableServer) handleListViews(w http.ResponseWriter, r *http.Request) {
	table := m.tableOr404(w, r)
	if table == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"views": table.Views})
}

func (m *MockSeaTableServer) handleGetView(w http.ResponseWriter, r *http.Request) {
	table := m.tableOr404(w, r)
	if table == nil {
		return
	}
	name := r.PathValue("view")
	for _, v := range table.Views {
		if v.Name == name {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error_msg": "view not found."})
}

func (m *MockSeaTableServer) handleListColumns(w http.ResponseWriter, r *http.Request) {
	table := m.tableOr404(w, r)
	if table == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"columns": table.Columns})
}

// handleListRows serves rows keyed by column name, the way both row APIs
// return them.
func (m *MockSeaTableServer) handleListRows(w http.ResponseWriter, r *http.Request) {
	table := m.tableOr404(w, r)
	if table == nil {
		return
	}

	rows := table.Rows
	q := r.URL.Query()
	if start, err := strconv.Atoi(q.Get("start")); err == nil && start > 0 {
		rows = rows[min(start, len(rows)):]
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		rows = rows[:min(limit, len(rows))]
	}

	out := make([]core.Row, len(rows))
	for i, row := range rows {
		out[i] = rowByName(table, row)
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": out})
}

func (m *MockSeaTableServer) handleGetRow(w http.ResponseWriter, r *http.Request) {
	table := m.tableOr404(w, r)
	if table == nil {
		return
	}
	id := r.PathValue("row")
	for _, row := range table.Rows {
		if row[core.RowIDField] == id {
			writeJSON(w, http.StatusOK, rowByName(table, row))
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error_msg": "row not found."})
}

func rowByName(table *MockTable, row core.Row) core.Row {
	out := core.Row{}
	names := make(map[string]string, len(table.Columns))
	for _, col := range table.Columns {
		names[col.Key] = col.Name
	}
	for key, value := range row {
		if name, ok := names[key]; ok {
			out[name] = value
			continue
		}
		out[key] = value
	}
	return out
}

func (m *MockSeaTableServer) lookupQuery(r *http.Request) (string, *MockQuery, bool) {
	var body struct {
		SQL string `json:"sql"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return "", nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	query, ok := m.queries[body.SQL]
	return body.SQL, query, ok
}

// handleLegacyQuery answers like dtable-db: HTTP 200 with a success flag.
func (m *MockSeaTableServer) handleLegacyQuery(w http.ResponseWriter, r *http.Request) {
	sql, query, ok := m.lookupQuery(r)
	switch {
	case !ok:
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error_message": "unknown query: " + sql})
	case query.Error != "":
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error_message": query.Error})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "metadata": query.Columns, "results": query.Rows})
	}
}

// handleGatewayQuery answers like the API gateway: failures are HTTP errors.
func (m *MockSeaTableServer) handleGatewayQuery(w http.ResponseWriter, r *http.Request) {
	sql, query, ok := m.lookupQuery(r)
	switch {
	case !ok:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_message": "unknown query: " + sql})
	case query.Error != "":
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_message": query.Error})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"metadata": query.Columns, "results": query.Rows})
	}
}

func (m *MockSeaTableServer) handleLinkedRecords(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TableID       string `json:"table_id"`
		LinkColumn    string `json:"link_column"`
		LinkColumnKey string `json:"link_column_key"`
		Rows          []struct {
			RowID  string `json:"row_id"`
			Offset int    `json:"offset"`
			Limit  int    `json:"limit"`
		} `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_msg": "invalid body."})
		return
	}
	column := body.LinkColumnKey
	if column == "" {
		column = body.LinkColumn
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string][]MockLinkedRecord, len(body.Rows))
	for _, q := range body.Rows {
		records := m.links[linkKey(body.TableID, column, q.RowID)]
		start := min(q.Offset, len(records))
		end := len(records)
		if q.Limit > 0 {
			end = min(start+q.Limit, end)
		}
		result[q.RowID] = append([]MockLinkedRecord{}, records[start:end]...)
	}
	writeJSON(w, http.StatusOK, result)
}

// writeJSON encodes v as JSON and writes it to the response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
