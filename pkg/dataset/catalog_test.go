package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogComplete(t *testing.T) {
	assert.Len(t, Catalog, 9)

	seen := make(map[string]bool)
	for _, table := range Catalog {
		assert.NotEmpty(t, table.Name)
		assert.True(t, strings.HasSuffix(table.Name, "_raw"), "table %s missing _raw suffix", table.Name)
		assert.True(t, strings.HasSuffix(table.CSVFile, ".csv"))
		assert.NotEmpty(t, table.Columns)
		assert.False(t, seen[table.Name], "duplicate table %s", table.Name)
		seen[table.Name] = true
	}
}

func TestLoadOrderRespectsDependencies(t *testing.T) {
	order, err := LoadOrder()
	require.NoError(t, err)
	require.Len(t, order, len(Catalog))

	position := make(map[string]int, len(order))
	for i, table := range order {
		position[table.Name] = i
	}

	for _, table := range order {
		for _, dep := range table.DependsOn {
			assert.Less(t, position[dep], position[table.Name],
				"%s must load after %s", table.Name, dep)
		}
	}
}

func TestLoadOrderDeterministic(t *testing.T) {
	first, err := LoadOrder()
	require.NoError(t, err)

	expected := []string{
		"customers_raw",
		"sellers_raw",
		"products_raw",
		"geolocation_raw",
		"product_category_name_translation_raw",
		"orders_raw",
		"order_items_raw",
		"order_payments_raw",
		"order_reviews_raw",
	}

	got := make([]string, len(first))
	for i, table := range first {
		got[i] = table.Name
	}
	assert.Equal(t, expected, got)

	// Repeated calls yield the same order.
	second, err := LoadOrder()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestByCSVFile(t *testing.T) {
	table, ok := ByCSVFile("olist_orders_dataset.csv")
	require.True(t, ok)
	assert.Equal(t, "orders_raw", table.Name)

	_, ok = ByCSVFile("unknown.csv")
	assert.False(t, ok)
}

func TestByName(t *testing.T) {
	table, ok := ByName("order_items_raw")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"orders_raw", "products_raw", "sellers_raw"}, table.DependsOn)

	_, ok = ByName("missing_raw")
	assert.False(t, ok)
}

func TestSchemaSQLCoversCatalog(t *testing.T) {
	ddl := SchemaSQL()
	for _, table := range Catalog {
		assert.Contains(t, ddl, table.Name, "DDL missing table %s", table.Name)
		for _, col := range table.Columns {
			assert.Contains(t, ddl, col, "DDL missing column %s.%s", table.Name, col)
		}
	}
}
