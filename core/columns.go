package core

// ColumnType is the type tag carried by every column in table metadata and
// query responses.
type ColumnType string

// Column types supported by SeaTable.
const (
	ColumnTypeNumber         ColumnType = "number"
	ColumnTypeText           ColumnType = "text"
	ColumnTypeLongText       ColumnType = "long-text"
	ColumnTypeCheckbox       ColumnType = "checkbox"
	ColumnTypeDate           ColumnType = "date"
	ColumnTypeSingleSelect   ColumnType = "single-select"
	ColumnTypeMultipleSelect ColumnType = "multiple-select"
	ColumnTypeImage          ColumnType = "image"
	ColumnTypeFile           ColumnType = "file"
	ColumnTypeCollaborator   ColumnType = "collaborator"
	ColumnTypeLink           ColumnType = "link"
	ColumnTypeLinkFormula    ColumnType = "link-formula"
	ColumnTypeFormula        ColumnType = "formula"
	ColumnTypeCreator        ColumnType = "creator"
	ColumnTypeCTime          ColumnType = "ctime"
	ColumnTypeLastModifier   ColumnType = "last-modifier"
	ColumnTypeMTime          ColumnType = "mtime"
	ColumnTypeGeolocation    ColumnType = "geolocation"
	ColumnTypeAutoNumber     ColumnType = "auto-number"
	ColumnTypeURL            ColumnType = "url"
)

// IsSelect reports whether values of this type are option ids.
func (t ColumnType) IsSelect() bool {
	return t == ColumnTypeSingleSelect || t == ColumnTypeMultipleSelect
}

// IsLink reports whether values of this type are arrays of linked-record
// entries ({row_id, display_value}).
func (t ColumnType) IsLink() bool {
	return t == ColumnTypeLink || t == ColumnTypeLinkFormula
}

// RowIDField is the reserved key carrying a row's identifier.
const RowIDField = "_id"

// Row is a single record. Raw rows are keyed by column key, formatted rows by
// column name.
type Row = map[string]any

// SelectOption is one entry in a select column's option list.
type SelectOption struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	TextColor string `json:"textColor,omitempty"`
}

// ColumnData is the type-specific payload of a column.
//
// Only the fields relevant to the column's type are populated: Options for
// select columns, Format for dates, ArrayType/ArrayData for link and
// link-formula columns.
type ColumnData struct {
	Options []SelectOption `json:"options,omitempty"`
	Format  string         `json:"format,omitempty"`

	// Link and link-formula columns
	ArrayType        ColumnType  `json:"array_type,omitempty"`
	ArrayData        *ColumnData `json:"array_data,omitempty"`
	LinkID           string      `json:"link_id,omitempty"`
	TableID          string      `json:"table_id,omitempty"`
	OtherTableID     string      `json:"other_table_id,omitempty"`
	DisplayColumnKey string      `json:"display_column_key,omitempty"`
	Formula          string      `json:"formula,omitempty"`
}

// Column describes one column of a table or query result.
type Column struct {
	Key  string      `json:"key"`
	Name string      `json:"name"`
	Type ColumnType  `json:"type"`
	Data *ColumnData `json:"data,omitempty"`
}

// QueryResult is the raw response of a SQL query: column metadata plus rows
// keyed by column key.
type QueryResult struct {
	Columns []Column `json:"metadata"`
	Rows    []Row    `json:"results"`
}
