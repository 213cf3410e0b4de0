// Schema indexing for query results.
//
// A query response carries its columns as an ordered list keyed by opaque
// column keys ("0000", "Xa9z", ...). IndexSchema turns that list into a lookup
// keyed by column key and precomputes the option id → label tables needed to
// decode select values, including the nested options of link and
// link-formula columns whose elements are select values.
//
// Example usage:
//
//	schema := core.IndexSchema(result.Columns)
//	col := schema.Column("0000")
//	label := col.Options["a1b2"]
package core

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// IndexedColumn is a column enriched with its decoding tables.
type IndexedColumn struct {
	Key  string
	Name string
	Type ColumnType
	Data *ColumnData

	// Position is the column's index in the response's column list.
	Position int

	// Options maps option id to option label. It is non-nil only for select
	// columns and for link/link-formula columns whose element type is a
	// select type.
	Options map[string]string
}

// ElementType returns the nested element type of a link or link-formula column.
func (c *IndexedColumn) ElementType() ColumnType {
	return c.Data.ArrayType
}

// IndexedSchema contains precomputed lookups for one query response.
// It is never mutated after IndexSchema returns.
type IndexedSchema struct {
	byKey  map[string]*IndexedColumn
	byName map[string]*IndexedColumn
	names  []string
}

// SchemaError is returned when an unknown column is referenced, or when a
// column has the wrong type for an operation.
type SchemaError struct {
	Message string
}

func (e *SchemaError) Error() string {
	return e.Message
}

// IndexSchema builds the indexed schema from a list of column metadata.
//
// Columns with a duplicated key overwrite earlier ones. A missing data payload
// is treated as empty.
func IndexSchema(columns []Column) *IndexedSchema {
	schema := &IndexedSchema{
		byKey:  make(map[string]*IndexedColumn, len(columns)),
		byName: make(map[string]*IndexedColumn, len(columns)),
		names:  make([]string, 0, len(columns)),
	}

	for i, column := range columns {
		data := column.Data
		if data == nil {
			data = &ColumnData{}
		}

		indexed := &IndexedColumn{
			Key:      column.Key,
			Name:     column.Name,
			Type:     column.Type,
			Data:     data,
			Position: i,
		}

		switch {
		case column.Type.IsSelect():
			indexed.Options = buildOptionsMap(data)
		case column.Type.IsLink():
			if data.ArrayType.IsSelect() {
				indexed.Options = buildOptionsMap(data.ArrayData)
			}
		}

		schema.byKey[column.Key] = indexed
		if _, seen := schema.byName[column.Name]; !seen {
			schema.names = append(schema.names, column.Name)
		}
		schema.byName[column.Name] = indexed
	}

	return schema
}

// buildOptionsMap maps option ids to labels. Absent data yields an empty map.
func buildOptionsMap(data *ColumnData) map[string]string {
	if data == nil {
		return map[string]string{}
	}
	options := make(map[string]string, len(data.Options))
	for _, option := range data.Options {
		options[option.ID] = option.Name
	}
	return options
}

// Len returns the number of distinct column keys.
func (s *IndexedSchema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byKey)
}

// Column returns the column with the given key, or nil.
func (s *IndexedSchema) Column(key string) *IndexedColumn {
	if s == nil {
		return nil
	}
	return s.byKey[key]
}

// ColumnByName returns the column with the given display name, or nil.
// When several columns share a name the last one wins, matching the
// formatted output.
func (s *IndexedSchema) ColumnByName(name string) *IndexedColumn {
	if s == nil {
		return nil
	}
	return s.byName[name]
}

// Names returns the distinct column names in first-seen order.
func (s *IndexedSchema) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

// Lookup resolves a column by name, returning a SchemaError with a
// "did you mean" suggestion when it does not exist.
func (s *IndexedSchema) Lookup(name string) (*IndexedColumn, error) {
	if col := s.ColumnByName(name); col != nil {
		return col, nil
	}

	available := s.Names()
	sort.Strings(available)

	suggestionText := ""
	if suggestion := findSimilar(name, available); suggestion != "" {
		suggestionText = fmt.Sprintf(" Did you mean '%s'?", suggestion)
	}

	availableText := ""
	if len(available) > 0 {
		availableText = fmt.Sprintf(" Available: %s", strings.Join(available, ", "))
	}

	return nil, &SchemaError{
		Message: fmt.Sprintf("column '%s' does not exist.%s%s", name, suggestionText, availableText),
	}
}

// findSimilar finds a similar string from a list (for "did you mean" suggestions).
// Uses Levenshtein distance over case-folded strings.
func findSimilar(input string, candidates []string) string {
	const maxDistance = 3
	fold := cases.Fold()
	inputFolded := fold.String(input)

	var bestMatch string
	bestDistance := maxDistance + 1

	for _, candidate := range candidates {
		distance := levenshteinDistance(inputFolded, fold.String(candidate))
		if distance < bestDistance {
			bestDistance = distance
			bestMatch = candidate
		}
	}

	if bestDistance <= maxDistance {
		return bestMatch
	}
	return ""
}

// levenshteinDistance calculates the Levenshtein distance between two strings.
func levenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	matrix := make([][]int, len(rb)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(ra)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(rb); i++ {
		for j := 1; j <= len(ra); j++ {
			if rb[i-1] == ra[j-1] {
				matrix[i][j] = matrix[i-1][j-1]
			} else {
				matrix[i][j] = min(
					matrix[i-1][j-1]+1, // substitution
					matrix[i][j-1]+1,   // insertion
					matrix[i-1][j]+1,   // deletion
				)
			}
		}
	}

	return matrix[len(rb)][len(ra)]
}
