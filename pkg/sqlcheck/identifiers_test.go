package sqlcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableNames(ids Identifiers) []string {
	names := make([]string, 0, len(ids.Tables))
	for _, table := range ids.Tables {
		names = append(names, table.Name)
	}
	return names
}

func columnNames(ids Identifiers) []string {
	names := make([]string, 0, len(ids.Columns))
	for _, column := range ids.Columns {
		if column.Qualifier != "" {
			names = append(names, column.Qualifier+"."+column.Name)
			continue
		}
		names = append(names, column.Name)
	}
	return names
}

func TestExtractIdentifiers_SimpleSelect(t *testing.T) {
	ids := ExtractIdentifiers("SELECT id, name FROM users WHERE email = 'x'")

	assert.ElementsMatch(t, []string{"users"}, tableNames(ids))
	assert.ElementsMatch(t, []string{"id", "name", "email"}, columnNames(ids))
}

func TestExtractIdentifiers_JoinWithAliases(t *testing.T) {
	ids := ExtractIdentifiers(
		"SELECT u.name, o.total FROM users u JOIN orders o ON u.id = o.user_id")

	assert.ElementsMatch(t, []string{"users", "orders"}, tableNames(ids))

	require.Len(t, ids.Tables, 2)
	assert.Equal(t, "u", ids.Tables[0].Alias)
	assert.Equal(t, "o", ids.Tables[1].Alias)

	assert.ElementsMatch(t,
		[]string{"u.name", "o.total", "u.id", "o.user_id"},
		columnNames(ids))
}

func TestExtractIdentifiers_ExplicitAlias(t *testing.T) {
	ids := ExtractIdentifiers("SELECT c.name FROM customers AS c")

	require.Len(t, ids.Tables, 1)
	assert.Equal(t, "customers", ids.Tables[0].Name)
	assert.Equal(t, "c", ids.Tables[0].Alias)
}

func TestExtractIdentifiers_SchemaQualifiedTable(t *testing.T) {
	ids := ExtractIdentifiers("SELECT id FROM analytics.events")

	assert.Contains(t, tableNames(ids), "analytics.events")
}

func TestExtractIdentifiers_CommaSeparatedFromList(t *testing.T) {
	ids := ExtractIdentifiers("SELECT * FROM users, orders WHERE users.id = orders.user_id")

	assert.ElementsMatch(t, []string{"users", "orders"}, tableNames(ids))
}

func TestExtractIdentifiers_CTEDefinedNames(t *testing.T) {
	ids := ExtractIdentifiers(
		"WITH recent AS (SELECT id FROM orders) SELECT id FROM recent")

	assert.True(t, ids.DefinedNames["recent"])
	assert.Contains(t, tableNames(ids), "orders")
}

func TestExtractIdentifiers_ColumnAliasNotAColumn(t *testing.T) {
	ids := ExtractIdentifiers("SELECT COUNT(*) AS total FROM orders")

	assert.True(t, ids.DefinedNames["total"])
	assert.NotContains(t, columnNames(ids), "total")
}

func TestExtractIdentifiers_FunctionNamesSkipped(t *testing.T) {
	ids := ExtractIdentifiers("SELECT COUNT(id), MAX(placed_at) FROM orders")

	names := columnNames(ids)
	assert.NotContains(t, names, "COUNT")
	assert.NotContains(t, names, "MAX")
	assert.Contains(t, names, "id")
	assert.Contains(t, names, "placed_at")
}

func TestExtractIdentifiers_StringLiteralsIgnored(t *testing.T) {
	ids := ExtractIdentifiers("SELECT id FROM users WHERE name = 'orders'")

	assert.NotContains(t, tableNames(ids), "orders")
	assert.NotContains(t, columnNames(ids), "orders")
}

func TestExtractIdentifiers_SubqueryAlias(t *testing.T) {
	ids := ExtractIdentifiers(
		"SELECT t.n FROM (SELECT COUNT(*) AS n FROM orders) t")

	assert.True(t, ids.DefinedNames["t"])
	assert.True(t, ids.DefinedNames["n"])
	assert.Contains(t, tableNames(ids), "orders")
}
