// Package dataset describes the fixed Olist Brazilian e-commerce dataset:
// the nine source CSV files, the warehouse tables they map to, and the
// foreign-key dependencies that dictate load order.
//
// The catalog is hand-specified because the dataset is static; nothing
// here is discovered at runtime.
package dataset

import (
	_ "embed"

	"github.com/olistflow/olistflow/pkg/errors"
)

// Slug is the Kaggle dataset slug for the Olist public dataset.
const Slug = "olistbr/brazilian-ecommerce"

//go:embed schema.sql
var schemaSQL string

// SchemaSQL returns the DDL for the raw warehouse tables.
func SchemaSQL() string {
	return schemaSQL
}

// Table describes one source CSV and its warehouse target.
type Table struct {
	// Name is the warehouse table name
	Name string
	// CSVFile is the source file name inside the dataset archive
	CSVFile string
	// Columns lists the CSV header columns in file order
	Columns []string
	// DependsOn names parent tables that must be loaded first
	DependsOn []string
}

// Catalog lists every table in the dataset. Order here is the tie-break
// used by LoadOrder for tables within the same dependency rank.
var Catalog = []Table{
	{
		Name:    "customers_raw",
		CSVFile: "olist_customers_dataset.csv",
		Columns: []string{
			"customer_id", "customer_unique_id", "customer_zip_code_prefix",
			"customer_city", "customer_state",
		},
	},
	{
		Name:    "sellers_raw",
		CSVFile: "olist_sellers_dataset.csv",
		Columns: []string{
			"seller_id", "seller_zip_code_prefix", "seller_city", "seller_state",
		},
	},
	{
		Name:    "products_raw",
		CSVFile: "olist_products_dataset.csv",
		Columns: []string{
			"product_id", "product_category_name", "product_name_lenght",
			"product_description_lenght", "product_photos_qty", "product_weight_g",
			"product_length_cm", "product_height_cm", "product_width_cm",
		},
	},
	{
		Name:    "geolocation_raw",
		CSVFile: "olist_geolocation_dataset.csv",
		Columns: []string{
			"geolocation_zip_code_prefix", "geolocation_lat", "geolocation_lng",
			"geolocation_city", "geolocation_state",
		},
	},
	{
		Name:    "product_category_name_translation_raw",
		CSVFile: "product_category_name_translation.csv",
		Columns: []string{
			"product_category_name", "product_category_name_english",
		},
	},
	{
		Name:    "orders_raw",
		CSVFile: "olist_orders_dataset.csv",
		Columns: []string{
			"order_id", "customer_id", "order_status", "order_purchase_timestamp",
			"order_approved_at", "order_delivered_carrier_date",
			"order_delivered_customer_date", "order_estimated_delivery_date",
		},
		DependsOn: []string{"customers_raw"},
	},
	{
		Name:    "order_items_raw",
		CSVFile: "olist_order_items_dataset.csv",
		Columns: []string{
			"order_id", "order_item_id", "product_id", "seller_id",
			"shipping_limit_date", "price", "freight_value",
		},
		DependsOn: []string{"orders_raw", "products_raw", "sellers_raw"},
	},
	{
		Name:    "order_payments_raw",
		CSVFile: "olist_order_payments_dataset.csv",
		Columns: []string{
			"order_id", "payment_sequential", "payment_type",
			"payment_installments", "payment_value",
		},
		DependsOn: []string{"orders_raw"},
	},
	{
		Name:    "order_reviews_raw",
		CSVFile: "olist_order_reviews_dataset.csv",
		Columns: []string{
			"review_id", "order_id", "review_score", "review_comment_title",
			"review_comment_message", "review_creation_date", "review_answer_timestamp",
		},
		DependsOn: []string{"orders_raw"},
	},
}

// ByCSVFile returns the catalog entry for a CSV file name.
func ByCSVFile(name string) (Table, bool) {
	for _, t := range Catalog {
		if t.CSVFile == name {
			return t, true
		}
	}
	return Table{}, false
}

// ByName returns the catalog entry for a warehouse table name.
func ByName(name string) (Table, bool) {
	for _, t := range Catalog {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// TableNames returns the warehouse table names in catalog order.
func TableNames() []string {
	names := make([]string, len(Catalog))
	for i, t := range Catalog {
		names[i] = t.Name
	}
	return names
}

// LoadOrder returns the catalog sorted so that parent tables precede the
// tables that reference them. The sort is deterministic: within a
// dependency rank, tables keep their catalog order.
func LoadOrder() ([]Table, error) {
	indegree := make(map[string]int, len(Catalog))
	dependents := make(map[string][]string, len(Catalog))

	for _, t := range Catalog {
		indegree[t.Name] += 0
		for _, dep := range t.DependsOn {
			if _, ok := ByName(dep); !ok {
				return nil, errors.New(errors.ErrorTypeValidation,
					"unknown dependency").WithDetail("table", t.Name).WithDetail("dependency", dep)
			}
			indegree[t.Name]++
			dependents[dep] = append(dependents[dep], t.Name)
		}
	}

	// Kahn's algorithm; the ready set is rescanned in catalog order each
	// round to keep the output stable.
	ordered := make([]Table, 0, len(Catalog))
	done := make(map[string]bool, len(Catalog))

	for len(ordered) < len(Catalog) {
		progressed := false
		for _, t := range Catalog {
			if done[t.Name] || indegree[t.Name] != 0 {
				continue
			}
			ordered = append(ordered, t)
			done[t.Name] = true
			progressed = true
			for _, child := range dependents[t.Name] {
				indegree[child]--
			}
		}
		if !progressed {
			return nil, errors.New(errors.ErrorTypeValidation,
				"dependency cycle in table catalog")
		}
	}

	return ordered, nil
}
