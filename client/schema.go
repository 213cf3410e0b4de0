package client

import (
	"context"
	"fmt"

	"github.com/DrewBradfordXYZ/seatable-go/core"
)

// GetColumnByName returns the column named name in table.
// Unknown names return a SchemaError that suggests the closest match.
//
// Example:
//
//	col, err := client.GetColumnByName(ctx, "Tasks", "Status")
func (c *Client) GetColumnByName(ctx context.Context, table, name string) (*core.Column, error) {
	columns, err := c.ListColumns(ctx, table, "")
	if err != nil {
		return nil, err
	}
	indexed, err := core.IndexSchema(columns).Lookup(name)
	if err != nil {
		return nil, err
	}
	return &columns[indexed.Position], nil
}

// GetColumnsByType returns the columns of table with the given type.
func (c *Client) GetColumnsByType(ctx context.Context, table string, columnType core.ColumnType) ([]core.Column, error) {
	columns, err := c.ListColumns(ctx, table, "")
	if err != nil {
		return nil, err
	}
	matched := []core.Column{}
	for _, col := range columns {
		if col.Type == columnType {
			matched = append(matched, col)
		}
	}
	return matched, nil
}

// GetColumnLinkID returns the link id of a link column.
func (c *Client) GetColumnLinkID(ctx context.Context, table, name string) (string, error) {
	col, err := c.GetColumnByName(ctx, table, name)
	if err != nil {
		return "", err
	}
	if col.Type != core.ColumnTypeLink {
		return "", &core.SchemaError{Message: fmt.Sprintf("column '%s' is not a link column", name)}
	}
	if col.Data == nil || col.Data.LinkID == "" {
		return "", &core.SchemaError{Message: fmt.Sprintf("column '%s' has no link id", name)}
	}
	return col.Data.LinkID, nil
}
