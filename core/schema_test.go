package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexSchema(t *testing.T) {
	columns := []Column{
		{Key: "0000", Name: "Name", Type: ColumnTypeText},
		{Key: "c1", Name: "Status", Type: ColumnTypeSingleSelect, Data: &ColumnData{
			Options: []SelectOption{{ID: "o1", Name: "Done"}, {ID: "o2", Name: "Todo"}},
		}},
		{Key: "c2", Name: "Tags", Type: ColumnTypeMultipleSelect},
		{Key: "c3", Name: "Owner", Type: ColumnTypeLink, Data: &ColumnData{
			ArrayType: ColumnTypeText,
			LinkID:    "l1",
		}},
		{Key: "c4", Name: "Colors", Type: ColumnTypeLinkFormula, Data: &ColumnData{
			ArrayType: ColumnTypeSingleSelect,
			ArrayData: &ColumnData{Options: []SelectOption{{ID: "x1", Name: "Red"}}},
		}},
		{Key: "c5", Name: "Due", Type: ColumnTypeDate, Data: &ColumnData{Format: "YYYY-MM-DD"}},
	}

	schema := IndexSchema(columns)
	require.Equal(t, 6, schema.Len())

	t.Run("select options are indexed", func(t *testing.T) {
		col := schema.Column("c1")
		require.NotNil(t, col)
		assert.Equal(t, map[string]string{"o1": "Done", "o2": "Todo"}, col.Options)
	})

	t.Run("select without options gets an empty map", func(t *testing.T) {
		col := schema.Column("c2")
		require.NotNil(t, col)
		assert.NotNil(t, col.Options)
		assert.Empty(t, col.Options)
		assert.NotNil(t, col.Data, "missing data is normalized")
	})

	t.Run("link with non-select elements has no options", func(t *testing.T) {
		col := schema.Column("c3")
		assert.Nil(t, col.Options)
		assert.Equal(t, ColumnTypeText, col.ElementType())
	})

	t.Run("link-formula with select elements uses nested options", func(t *testing.T) {
		col := schema.Column("c4")
		assert.Equal(t, map[string]string{"x1": "Red"}, col.Options)
	})

	t.Run("non-select columns have no options", func(t *testing.T) {
		assert.Nil(t, schema.Column("0000").Options)
		assert.Nil(t, schema.Column("c5").Options)
	})

	t.Run("unknown key returns nil", func(t *testing.T) {
		assert.Nil(t, schema.Column("zzzz"))
	})

	t.Run("names keep column order", func(t *testing.T) {
		assert.Equal(t, []string{"Name", "Status", "Tags", "Owner", "Colors", "Due"}, schema.Names())
	})
}

func TestIndexSchema_NestedSelectWithoutArrayData(t *testing.T) {
	schema := IndexSchema([]Column{
		{Key: "l", Name: "Link", Type: ColumnTypeLink, Data: &ColumnData{ArrayType: ColumnTypeMultipleSelect}},
	})
	col := schema.Column("l")
	assert.NotNil(t, col.Options)
	assert.Empty(t, col.Options)
}

func TestIndexSchema_DuplicateKeyLastWins(t *testing.T) {
	schema := IndexSchema([]Column{
		{Key: "k", Name: "First", Type: ColumnTypeText},
		{Key: "k", Name: "Second", Type: ColumnTypeNumber},
	})
	assert.Equal(t, 1, schema.Len())
	assert.Equal(t, "Second", schema.Column("k").Name)
	assert.Equal(t, 1, schema.Column("k").Position)
}

func TestIndexedSchema_Nil(t *testing.T) {
	var schema *IndexedSchema
	assert.Equal(t, 0, schema.Len())
	assert.Nil(t, schema.Column("a"))
	assert.Nil(t, schema.ColumnByName("a"))
}

func TestIndexedSchema_Lookup(t *testing.T) {
	schema := IndexSchema([]Column{
		{Key: "0000", Name: "Name", Type: ColumnTypeText},
		{Key: "0001", Name: "Status", Type: ColumnTypeSingleSelect},
	})

	t.Run("found", func(t *testing.T) {
		col, err := schema.Lookup("Status")
		require.NoError(t, err)
		assert.Equal(t, "0001", col.Key)
	})

	t.Run("suggests similar name", func(t *testing.T) {
		_, err := schema.Lookup("status")
		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Contains(t, schemaErr.Message, "Did you mean 'Status'?")
		assert.Contains(t, schemaErr.Message, "Available: Name, Status")
	})

	t.Run("no suggestion for distant name", func(t *testing.T) {
		_, err := schema.Lookup("Completely different")
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "Did you mean")
	})
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"Status", "Status", 0},
		{"größe", "grösse", 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshteinDistance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}
