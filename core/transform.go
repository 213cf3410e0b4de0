// Query result formatting.
//
// FormatQueryResult turns a raw SQL response (rows keyed by column key, select
// values as option ids, link values as {row_id, display_value} entries) into
// display rows keyed by column name with decoded values.
//
// Formatting never fails. Cells whose shape does not match their column are
// passed through or replaced by an empty value, and keys that are not in the
// schema are dropped.
package core

import (
	"reflect"
	"sort"
	"strconv"
)

// FormatOption configures query result formatting.
type FormatOption func(*formatConfig)

type formatConfig struct {
	renderDate DateRenderer
	logger     *Logger
}

// WithDateRenderer sets the renderer used for date columns.
func WithDateRenderer(renderer DateRenderer) FormatOption {
	return func(c *formatConfig) {
		if renderer != nil {
			c.renderDate = renderer
		}
	}
}

// WithLogger sets the logger used to report schema mismatches at debug level.
func WithLogger(logger *Logger) FormatOption {
	return func(c *formatConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func newFormatConfig(opts []FormatOption) *formatConfig {
	cfg := &formatConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.renderDate == nil {
		cfg.renderDate = NewDateRenderer(nil)
	}
	if cfg.logger == nil {
		cfg.logger = NopLogger()
	}
	return cfg
}

// FormatQueryResult indexes the result's columns and formats every row.
// The returned slice has one row per input row, in the same order.
func FormatQueryResult(result *QueryResult, opts ...FormatOption) []Row {
	if result == nil {
		return []Row{}
	}
	return FormatRows(IndexSchema(result.Columns), result.Rows, opts...)
}

// FormatRows formats rows against an already indexed schema.
func FormatRows(schema *IndexedSchema, rows []Row, opts ...FormatOption) []Row {
	cfg := newFormatConfig(opts)
	formatted := make([]Row, 0, len(rows))
	for _, row := range rows {
		formatted = append(formatted, formatRow(schema, row, cfg))
	}
	return formatted
}

// FormatRow formats a single row against an already indexed schema.
func FormatRow(schema *IndexedSchema, row Row, opts ...FormatOption) Row {
	return formatRow(schema, row, newFormatConfig(opts))
}

func formatRow(schema *IndexedSchema, row Row, cfg *formatConfig) Row {
	result := make(Row, len(row))
	if id, ok := row[RowIDField]; ok {
		result[RowIDField] = id
	}

	// Assign in column order so a later column wins a name collision.
	columns := make([]*IndexedColumn, 0, len(row))
	for key := range row {
		col := schema.Column(key)
		if col == nil {
			if key != RowIDField {
				cfg.logger.Debug("dropping unknown column key %q", key)
			}
			continue
		}
		columns = append(columns, col)
	}
	sort.Slice(columns, func(i, j int) bool {
		return columns[i].Position < columns[j].Position
	})

	for _, col := range columns {
		result[col.Name] = decodeValue(col, row[col.Key], cfg)
	}

	return result
}

// decodeValue decodes one cell according to its column's type.
func decodeValue(col *IndexedColumn, value any, cfg *formatConfig) any {
	switch col.Type {
	case ColumnTypeSingleSelect:
		return lookupOption(col.Options, value)

	case ColumnTypeMultipleSelect:
		items, ok := asSlice(value)
		if !ok {
			if value != nil {
				cfg.logger.Debug("column %q: expected option id list, got %T", col.Name, value)
			}
			return []any{}
		}
		labels := make([]any, len(items))
		for i, item := range items {
			labels[i] = lookupOption(col.Options, item)
		}
		return labels

	case ColumnTypeLink, ColumnTypeLinkFormula:
		items, ok := asSlice(value)
		if !ok {
			if value != nil {
				cfg.logger.Debug("column %q: expected linked record list, got %T", col.Name, value)
			}
			return []any{}
		}
		display := make([]any, len(items))
		for i, item := range items {
			v := displayValue(item)
			if col.Options != nil {
				v = decodeNestedOption(col.Options, v)
			}
			display[i] = v
		}
		return display

	case ColumnTypeDate:
		if value == nil || value == "" {
			return value
		}
		if rendered, ok := cfg.renderDate(value, DateFormat(col.Data.Format)); ok {
			return rendered
		}
		cfg.logger.Debug("column %q: cannot render %v as a date", col.Name, value)
		return value

	default:
		return value
	}
}

// lookupOption returns the label for an option id, or nil when unknown.
func lookupOption(options map[string]string, value any) any {
	id, ok := optionKey(value)
	if !ok {
		return nil
	}
	if label, found := options[id]; found {
		return label
	}
	return nil
}

// decodeNestedOption decodes a linked entry's display value, which is a
// single option id or, for multiple-select element types, a list of ids.
func decodeNestedOption(options map[string]string, value any) any {
	if items, ok := asSlice(value); ok {
		labels := make([]any, len(items))
		for i, item := range items {
			labels[i] = lookupOption(options, item)
		}
		return labels
	}
	return lookupOption(options, value)
}

// displayValue extracts display_value from a linked-record entry.
func displayValue(item any) any {
	entry, ok := item.(map[string]any)
	if !ok {
		return nil
	}
	return entry["display_value"]
}

// optionKey normalizes an option id to its string form.
func optionKey(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case interface{ String() string }:
		return v.String(), true
	}
	return "", false
}

// asSlice returns the elements of a slice or array value.
func asSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case []any:
		return v, true
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return items, true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
