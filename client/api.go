package client

import (
	"context"
	"fmt"

	"github.com/DrewBradfordXYZ/seatable-go/auth"
	"github.com/DrewBradfordXYZ/seatable-go/core"
)

// --- Read operations ---

// Table describes a table of a base.
type Table struct {
	ID      string        `json:"_id"`
	Name    string        `json:"name"`
	Columns []core.Column `json:"columns,omitempty"`
	Views   []View        `json:"views,omitempty"`
}

// View describes a table view.
type View struct {
	ID         string   `json:"_id"`
	Name       string   `json:"name"`
	Type       string   `json:"type,omitempty"`
	IsLocked   bool     `json:"is_locked,omitempty"`
	RowHeight  string   `json:"row_height,omitempty"`
	HiddenCols []string `json:"hidden_columns,omitempty"`
}

// Metadata is the structure of a base: its tables with columns and views.
type Metadata struct {
	Tables []Table `json:"tables"`
}

// ListRowsOptions selects the rows returned by ListRows.
// Zero values are omitted from the request.
type ListRowsOptions struct {
	Table   string
	View    string
	OrderBy string
	Desc    bool
	Start   int
	Limit   int
}

// LinkedRowQuery asks for the records linked to one row.
type LinkedRowQuery struct {
	RowID  string `json:"row_id"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// LinkedRecord is one linked row with the value of the link's display column.
type LinkedRecord struct {
	RowID        string `json:"row_id"`
	DisplayValue any    `json:"display_value"`
}

// ListTables returns the tables of the base.
func (c *Client) ListTables(ctx context.Context) ([]Table, error) {
	var dtable struct {
		Tables []Table `json:"tables"`
	}
	err := c.call(ctx, func(s *auth.Session) RequestDef {
		return c.transport.GetDTable(s, c.lang)
	}, &dtable)
	if err != nil {
		return nil, err
	}
	if dtable.Tables == nil {
		return []Table{}, nil
	}
	return dtable.Tables, nil
}

// GetTableByName returns the table named name.
func (c *Client) GetTableByName(ctx context.Context, name string) (*Table, error) {
	tables, err := c.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tables {
		if tables[i].Name == name {
			return &tables[i], nil
		}
	}
	return nil, core.NewNotFoundError(fmt.Sprintf("table '%s' does not exist", name))
}

// GetMetadata returns the base metadata.
func (c *Client) GetMetadata(ctx context.Context) (*Metadata, error) {
	var metadata Metadata
	err := c.call(ctx, func(s *auth.Session) RequestDef {
		return c.transport.GetMetadata(s)
	}, &metadata)
	if err != nil {
		return nil, err
	}
	return &metadata, nil
}

// ListViews returns the views of a table.
func (c *Client) ListViews(ctx context.Context, table string) ([]View, error) {
	var views []View
	err := c.call(ctx, func(s *auth.Session) RequestDef {
		return c.transport.ListViews(s, table)
	}, &views)
	if err != nil {
		return nil, err
	}
	if views == nil {
		views = []View{}
	}
	return views, nil
}

// GetViewByName returns a single view of a table.
func (c *Client) GetViewByName(ctx context.Context, table, view string) (*View, error) {
	var result View
	err := c.call(ctx, func(s *auth.Session) RequestDef {
		return c.transport.GetView(s, table, view)
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListColumns returns the columns of a table, in view order when view is set.
func (c *Client) ListColumns(ctx context.Context, table, view string) ([]core.Column, error) {
	var columns []core.Column
	err := c.call(ctx, func(s *auth.Session) RequestDef {
		return c.transport.ListColumns(s, table, view)
	}, &columns)
	if err != nil {
		return nil, err
	}
	if columns == nil {
		columns = []core.Column{}
	}
	return columns, nil
}

// ListRows returns one page of rows. No further pages are fetched.
func (c *Client) ListRows(ctx context.Context, opts ListRowsOptions) ([]core.Row, error) {
	if opts.Table == "" {
		return nil, core.NewValidationError("table name is required")
	}
	var rows []core.Row
	err := c.call(ctx, func(s *auth.Session) RequestDef {
		return c.transport.ListRows(s, opts)
	}, &rows)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []core.Row{}
	}
	return rows, nil
}

// GetRow returns a single row by id.
func (c *Client) GetRow(ctx context.Context, table, rowID string) (core.Row, error) {
	var row core.Row
	err := c.call(ctx, func(s *auth.Session) RequestDef {
		return c.transport.GetRow(s, table, rowID)
	}, &row)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// GetLinkedRecords returns the records linked to each queried row, keyed by row id.
func (c *Client) GetLinkedRecords(ctx context.Context, tableID, linkColumnKey string, rows []LinkedRowQuery) (map[string][]LinkedRecord, error) {
	if len(rows) == 0 {
		return map[string][]LinkedRecord{}, nil
	}
	var result map[string][]LinkedRecord
	err := c.call(ctx, func(s *auth.Session) RequestDef {
		return c.transport.LinkedRecords(s, tableID, linkColumnKey, rows)
	}, &result)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = map[string][]LinkedRecord{}
	}
	return result, nil
}

type queryResponse struct {
	Success      *bool         `json:"success"`
	ErrorMessage string        `json:"error_message"`
	Metadata     []core.Column `json:"metadata"`
	Results      []core.Row    `json:"results"`
}

// QueryRaw runs a SQL statement and returns the undecoded result.
func (c *Client) QueryRaw(ctx context.Context, sql string) (*core.QueryResult, error) {
	if sql == "" {
		return nil, core.NewValidationError("sql is required")
	}
	var resp queryResponse
	err := c.call(ctx, func(s *auth.Session) RequestDef {
		return c.transport.Query(s, sql)
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Success != nil && !*resp.Success {
		return nil, &core.QueryError{SQL: sql, Message: resp.ErrorMessage}
	}
	if resp.Results == nil {
		resp.Results = []core.Row{}
	}
	return &core.QueryResult{Columns: resp.Metadata, Rows: resp.Results}, nil
}

// Query runs a SQL statement and returns rows keyed by column name with
// select options, links and dates decoded.
//
// Example:
//
//	rows, err := client.Query(ctx, "SELECT Name, Status FROM Tasks LIMIT 10")
func (c *Client) Query(ctx context.Context, sql string) ([]core.Row, error) {
	result, err := c.QueryRaw(ctx, sql)
	if err != nil {
		return nil, err
	}
	return core.FormatQueryResult(result,
		core.WithDateRenderer(c.dateRenderer),
		core.WithLogger(c.logger),
	), nil
}
