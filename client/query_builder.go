package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/DrewBradfordXYZ/seatable-go/core"
)

// SQLBuilder provides a fluent API for building and running SELECT statements.
//
// Example:
//
//	rows, err := client.SQL("Tasks").
//	    Select("Name", "Status", "Due").
//	    Where("Status = 'Open'").
//	    OrderBy("Due", true).
//	    Limit(100).
//	    Run(ctx)
type SQLBuilder struct {
	client  *Client
	table   string
	columns []string
	where   []string
	orderBy []sqlOrder
	limit   *int
	offset  *int
	err     error
}

type sqlOrder struct {
	column string
	desc   bool
}

// SQL starts building a query against table.
func (c *Client) SQL(table string) *SQLBuilder {
	b := &SQLBuilder{client: c, table: table}
	if strings.TrimSpace(table) == "" {
		b.err = core.NewValidationError("table name is required")
	}
	return b
}

// Select sets the columns to return. No columns selects all.
func (b *SQLBuilder) Select(columns ...string) *SQLBuilder {
	if b.err != nil {
		return b
	}
	b.columns = append(b.columns, columns...)
	return b
}

// Where adds a filter condition. Multiple conditions are joined with AND.
//
// Example:
//
//	Where("Status = 'Open'")
//	Where("`Due Date` < '2024-01-01'")
func (b *SQLBuilder) Where(condition string) *SQLBuilder {
	if b.err != nil {
		return b
	}
	if condition != "" {
		b.where = append(b.where, condition)
	}
	return b
}

// OrderBy adds a sort column.
func (b *SQLBuilder) OrderBy(column string, desc bool) *SQLBuilder {
	if b.err != nil {
		return b
	}
	b.orderBy = append(b.orderBy, sqlOrder{column: column, desc: desc})
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SQLBuilder) Limit(n int) *SQLBuilder {
	if b.err != nil {
		return b
	}
	if n < 0 {
		b.err = core.NewValidationError("limit must not be negative")
		return b
	}
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip.
func (b *SQLBuilder) Offset(n int) *SQLBuilder {
	if b.err != nil {
		return b
	}
	if n < 0 {
		b.err = core.NewValidationError("offset must not be negative")
		return b
	}
	b.offset = &n
	return b
}

// Build returns the SQL statement or the first error recorded by the builder.
func (b *SQLBuilder) Build() (string, error) {
	if b.err != nil {
		return "", b.err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(b.columns) == 0 {
		sb.WriteString("*")
	} else {
		quoted := make([]string, len(b.columns))
		for i, col := range b.columns {
			quoted[i] = quoteIdentifier(col)
		}
		sb.WriteString(strings.Join(quoted, ", "))
	}

	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdentifier(b.table))

	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		if len(b.where) == 1 {
			sb.WriteString(b.where[0])
		} else {
			sb.WriteString("(" + strings.Join(b.where, ") AND (") + ")")
		}
	}

	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			direction := "ASC"
			if o.desc {
				direction = "DESC"
			}
			parts[i] = quoteIdentifier(o.column) + " " + direction
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	if b.limit != nil {
		fmt.Fprintf(&sb, " LIMIT %d", *b.limit)
	}
	if b.offset != nil {
		fmt.Fprintf(&sb, " OFFSET %d", *b.offset)
	}

	return sb.String(), nil
}

// String returns the SQL statement, or an empty string if the builder has an error.
func (b *SQLBuilder) String() string {
	sql, _ := b.Build()
	return sql
}

// Run executes the statement and returns decoded rows keyed by column name.
func (b *SQLBuilder) Run(ctx context.Context) ([]core.Row, error) {
	sql, err := b.Build()
	if err != nil {
		return nil, err
	}
	return b.client.Query(ctx, sql)
}

// RunRaw executes the statement and returns the undecoded result.
func (b *SQLBuilder) RunRaw(ctx context.Context) (*core.QueryResult, error) {
	sql, err := b.Build()
	if err != nil {
		return nil, err
	}
	return b.client.QueryRaw(ctx, sql)
}

// quoteIdentifier wraps a table or column name in backticks.
func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
