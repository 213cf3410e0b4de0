package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/DrewBradfordXYZ/seatable-go/auth"
	"github.com/oapi-codegen/runtime"
)

// QueryParam is a single form-style query parameter.
type QueryParam struct {
	Name  string
	Value any
}

// UnwrapFunc extracts the payload of an operation from its response body.
type UnwrapFunc func(body json.RawMessage) (json.RawMessage, error)

// RequestDef describes one API call. Transports build them; Client executes them.
type RequestDef struct {
	Method string
	URL    string
	Query  []QueryParam
	Body   any
	Unwrap UnwrapFunc
}

// Transport builds requests for one family of SeaTable endpoints.
//
// Two implementations exist: [LegacyTransport] talks to dtable-server and
// dtable-db directly, [GatewayTransport] uses the v2 API gateway. A client
// picks one at construction time.
type Transport interface {
	Name() string
	GetDTable(s *auth.Session, lang string) RequestDef
	GetMetadata(s *auth.Session) RequestDef
	ListViews(s *auth.Session, table string) RequestDef
	GetView(s *auth.Session, table, view string) RequestDef
	ListColumns(s *auth.Session, table, view string) RequestDef
	ListRows(s *auth.Session, opts ListRowsOptions) RequestDef
	GetRow(s *auth.Session, table, rowID string) RequestDef
	LinkedRecords(s *auth.Session, tableID, linkColumnKey string, rows []LinkedRowQuery) RequestDef
	Query(s *auth.Session, sql string) RequestDef
}

// unwrapIdentity returns the body unchanged.
func unwrapIdentity(body json.RawMessage) (json.RawMessage, error) {
	return body, nil
}

// unwrapField returns an UnwrapFunc selecting one top-level field.
// A missing or null field unwraps to null.
func unwrapField(name string) UnwrapFunc {
	return func(body json.RawMessage) (json.RawMessage, error) {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("decoding %q envelope: %w", name, err)
		}
		field, ok := envelope[name]
		if !ok {
			return json.RawMessage("null"), nil
		}
		return field, nil
	}
}

// encodeQuery encodes params the way generated OpenAPI clients do.
func encodeQuery(params []QueryParam) (string, error) {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		encoded, err := runtime.StyleParamWithLocation("form", true, p.Name, runtime.ParamLocationQuery, p.Value)
		if err != nil {
			return "", fmt.Errorf("invalid format for parameter %s: %w", p.Name, err)
		}
		parts = append(parts, encoded)
	}
	return strings.Join(parts, "&"), nil
}

func rowsParams(opts ListRowsOptions, extra ...QueryParam) []QueryParam {
	params := []QueryParam{{"table_name", opts.Table}}
	params = append(params, extra...)
	if opts.View != "" {
		params = append(params, QueryParam{"view_name", opts.View})
	}
	if opts.OrderBy != "" {
		params = append(params, QueryParam{"order_by", opts.OrderBy})
		direction := "asc"
		if opts.Desc {
			direction = "desc"
		}
		params = append(params, QueryParam{"direction", direction})
	}
	if opts.Start > 0 {
		params = append(params, QueryParam{"start", opts.Start})
	}
	if opts.Limit > 0 {
		params = append(params, QueryParam{"limit", opts.Limit})
	}
	return params
}

func columnsParams(table, view string) []QueryParam {
	params := []QueryParam{{"table_name", table}}
	if view != "" {
		params = append(params, QueryParam{"view_name", view})
	}
	return params
}

type linkedRecordsBody struct {
	TableID       string           `json:"table_id"`
	LinkColumn    string           `json:"link_column,omitempty"`
	LinkColumnKey string           `json:"link_column_key,omitempty"`
	Rows          []LinkedRowQuery `json:"rows"`
}

type sqlBody struct {
	SQL         string `json:"sql"`
	ConvertKeys bool   `json:"convert_keys"`
}

// LegacyTransport uses the dtable-server v1 API and the dtable-db query API.
type LegacyTransport struct{}

// NewLegacyTransport creates a transport for dtable-server and dtable-db.
func NewLegacyTransport() *LegacyTransport {
	return &LegacyTransport{}
}

func (t *LegacyTransport) Name() string { return "legacy" }

func (t *LegacyTransport) serverURL(s *auth.Session, path string) string {
	return fmt.Sprintf("%s/api/v1/dtables/%s/%s", s.DTableServer, s.DTableUUID, path)
}

func (t *LegacyTransport) GetDTable(s *auth.Session, lang string) RequestDef {
	return RequestDef{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/dtables/%s/", s.DTableServer, s.DTableUUID),
		Query:  []QueryParam{{"lang", lang}},
		Unwrap: unwrapIdentity,
	}
}

func (t *LegacyTransport) GetMetadata(s *auth.Session) RequestDef {
	return RequestDef{Method: http.MethodGet, URL: t.serverURL(s, "metadata/"), Unwrap: unwrapField("metadata")}
}

func (t *LegacyTransport) ListViews(s *auth.Session, table string) RequestDef {
	return RequestDef{
		Method: http.MethodGet,
		URL:    t.serverURL(s, "views/"),
		Query:  []QueryParam{{"table_name", table}},
		Unwrap: unwrapField("views"),
	}
}

func (t *LegacyTransport) GetView(s *auth.Session, table, view string) RequestDef {
	return RequestDef{
		Method: http.MethodGet,
		URL:    t.serverURL(s, "views/"+url.PathEscape(view)+"/"),
		Query:  []QueryParam{{"table_name", table}},
		Unwrap: unwrapIdentity,
	}
}

func (t *LegacyTransport) ListColumns(s *auth.Session, table, view string) RequestDef {
	return RequestDef{
		Method: http.MethodGet,
		URL:    t.serverURL(s, "columns/"),
		Query:  columnsParams(table, view),
		Unwrap: unwrapField("columns"),
	}
}

func (t *LegacyTransport) ListRows(s *auth.Session, opts ListRowsOptions) RequestDef {
	return RequestDef{
		Method: http.MethodGet,
		URL:    t.serverURL(s, "rows/"),
		Query:  rowsParams(opts, QueryParam{"convert_link_id", true}),
		Unwrap: unwrapField("rows"),
	}
}

func (t *LegacyTransport) GetRow(s *auth.Session, table, rowID string) RequestDef {
	return RequestDef{
		Method: http.MethodGet,
		URL:    t.serverURL(s, "rows/"+url.PathEscape(rowID)+"/"),
		Query:  []QueryParam{{"table_name", table}},
		Unwrap: unwrapIdentity,
	}
}

func (t *LegacyTransport) LinkedRecords(s *auth.Session, tableID, linkColumnKey string, rows []LinkedRowQuery) RequestDef {
	return RequestDef{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/api/v1/linked-records/%s/", s.DTableDB, s.DTableUUID),
		Body:   linkedRecordsBody{TableID: tableID, LinkColumn: linkColumnKey, Rows: rows},
		Unwrap: unwrapIdentity,
	}
}

func (t *LegacyTransport) Query(s *auth.Session, sql string) RequestDef {
	return RequestDef{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/api/v1/query/%s/", s.DTableDB, s.DTableUUID),
		Body:   sqlBody{SQL: sql},
		Unwrap: unwrapIdentity,
	}
}

// GatewayTransport uses the v2 API gateway at {server}/api-gateway.
type GatewayTransport struct {
	baseURL string
}

// NewGatewayTransport creates a transport for the API gateway of server.
func NewGatewayTransport(server string) *GatewayTransport {
	return &GatewayTransport{baseURL: strings.TrimRight(server, "/") + "/api-gateway"}
}

func (t *GatewayTransport) Name() string { return "gateway" }

func (t *GatewayTransport) dtableURL(s *auth.Session, path string) string {
	return fmt.Sprintf("%s/api/v2/dtables/%s/%s", t.baseURL, s.DTableUUID, path)
}

func (t *GatewayTransport) GetDTable(s *auth.Session, lang string) RequestDef {
	return RequestDef{
		Method: http.MethodGet,
		URL:    t.dtableURL(s, ""),
		Query:  []QueryParam{{"lang", lang}},
		Unwrap: unwrapIdentity,
	}
}

func (t *GatewayTransport) GetMetadata(s *auth.Session) RequestDef {
	return RequestDef{Method: http.MethodGet, URL: t.dtableURL(s, "metadata/"), Unwrap: unwrapField("metadata")}
}

func (t *GatewayTransport) ListViews(s *auth.Session, table string) RequestDef {
	return RequestDef{
		Method: http.MethodGet,
		URL:    t.dtableURL(s, "views/"),
		Query:  []QueryParam{{"table_name", table}},
		Unwrap: unwrapField("views"),
	}
}

func (t *GatewayTransport) GetView(s *auth.Session, table, view string) RequestDef {
	return RequestDef{
		Method: http.MethodGet,
		URL:    t.dtableURL(s, "views/"+url.PathEscape(view)+"/"),
		Query:  []QueryParam{{"table_name", table}},
		Unwrap: unwrapIdentity,
	}
}

func (t *GatewayTransport) ListColumns(s *auth.Session, table, view string) RequestDef {
	return RequestDef{
		Method: http.MethodGet,
		URL:    t.dtableURL(s, "columns/"),
		Query:  columnsParams(table, view),
		Unwrap: unwrapField("columns"),
	}
}

func (t *GatewayTransport) ListRows(s *auth.Session, opts ListRowsOptions) RequestDef {
	return RequestDef{
		Method: http.MethodGet,
		URL:    t.dtableURL(s, "rows/"),
		Query:  rowsParams(opts, QueryParam{"convert_keys", true}, QueryParam{"convert_link_id", true}),
		Unwrap: unwrapField("rows"),
	}
}

func (t *GatewayTransport) GetRow(s *auth.Session, table, rowID string) RequestDef {
	return RequestDef{
		Method: http.MethodGet,
		URL:    t.dtableURL(s, "rows/"+url.PathEscape(rowID)+"/"),
		Query:  []QueryParam{{"table_name", table}, {"convert_keys", true}},
		Unwrap: unwrapIdentity,
	}
}

func (t *GatewayTransport) LinkedRecords(s *auth.Session, tableID, linkColumnKey string, rows []LinkedRowQuery) RequestDef {
	return RequestDef{
		Method: http.MethodPost,
		URL:    t.dtableURL(s, "query-links/"),
		Body:   linkedRecordsBody{TableID: tableID, LinkColumnKey: linkColumnKey, Rows: rows},
		Unwrap: unwrapIdentity,
	}
}

func (t *GatewayTransport) Query(s *auth.Session, sql string) RequestDef {
	return RequestDef{
		Method: http.MethodPost,
		URL:    t.dtableURL(s, "sql/"),
		Body:   sqlBody{SQL: sql},
		Unwrap: unwrapIdentity,
	}
}
