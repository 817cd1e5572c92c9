package config

import (
	"github.com/Mj37-com/medallion-warehouse-go/internal/staging"
)

// Default returns the configuration for the retail source systems: four
// change-tracked dimensions from the master data exports and seven fact
// streams from the transactional, logistics, telemetry, clickstream and
// treasury feeds.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			DBName:   "warehouse",
			SSLMode:  "disable",
		},
		Lake: LakeConfig{
			Root: "./lake",
		},
		Calendar: CalendarConfig{
			From: "2024-01-01",
			To:   "2025-12-31",
		},
		Dimensions: []DimensionStream{
			{
				Name:       "customers",
				Source:     "customers.csv",
				Format:     staging.FormatCSV,
				Table:      "dim_customers",
				NaturalKey: "customer_id",
				Tracked:    []string{"address", "city", "country", "vip_flag"},
				Columns: []staging.ColumnSpec{
					{Name: "customer_id", Type: staging.ColumnString},
					{Name: "name", Type: staging.ColumnString},
					{Name: "email", Type: staging.ColumnString},
					{Name: "phone", Type: staging.ColumnString},
					{Name: "address", Type: staging.ColumnString},
					{Name: "city", Type: staging.ColumnString},
					{Name: "country", Type: staging.ColumnString},
					{Name: "gdpr_consent", Type: staging.ColumnBool},
					{Name: "vip_flag", Type: staging.ColumnBool},
					{Name: "joined_at", Type: staging.ColumnTime},
				},
			},
			{
				Name:       "products",
				Source:     "products.csv",
				Format:     staging.FormatCSV,
				Table:      "dim_products",
				NaturalKey: "product_id",
				Tracked:    []string{"name", "category", "current_price"},
				Columns: []staging.ColumnSpec{
					{Name: "product_id", Type: staging.ColumnString},
					{Name: "name", Type: staging.ColumnString},
					{Name: "category", Type: staging.ColumnString},
					{Name: "supplier_id", Type: staging.ColumnString},
					{Name: "current_price", Type: staging.ColumnMoney},
					{Name: "currency", Type: staging.ColumnString},
					{Name: "launched_at", Type: staging.ColumnTime},
				},
			},
			{
				Name:       "stores",
				Source:     "stores.csv",
				Format:     staging.FormatCSV,
				Table:      "dim_stores",
				NaturalKey: "store_id",
				Tracked:    []string{"name", "city", "country"},
				Columns: []staging.ColumnSpec{
					{Name: "store_id", Type: staging.ColumnString},
					{Name: "name", Type: staging.ColumnString},
					{Name: "city", Type: staging.ColumnString},
					{Name: "country", Type: staging.ColumnString},
					{Name: "opened_at", Type: staging.ColumnTime},
				},
			},
			{
				Name:       "suppliers",
				Source:     "suppliers.csv",
				Format:     staging.FormatCSV,
				Table:      "dim_suppliers",
				NaturalKey: "supplier_id",
				Tracked:    []string{"name", "country", "reliability_score"},
				Columns: []staging.ColumnSpec{
					{Name: "supplier_id", Type: staging.ColumnString},
					{Name: "name", Type: staging.ColumnString},
					{Name: "country", Type: staging.ColumnString},
					{Name: "reliability_score", Type: staging.ColumnFloat},
				},
			},
		},
		Facts: []FactStream{
			{
				Name:            "orders",
				Source:          "orders/day_{day}/orders_header.csv",
				Format:          staging.FormatCSV,
				Table:           "fact_orders",
				Strategy:        "key_exclusion",
				KeyColumns:      []string{"order_id"},
				EventTimeColumn: "order_ts",
				Columns: []staging.ColumnSpec{
					{Name: "order_id", Type: staging.ColumnString},
					{Name: "customer_id", Type: staging.ColumnString},
					{Name: "store_id", Type: staging.ColumnString},
					{Name: "order_ts", Type: staging.ColumnTime},
					{Name: "currency", Type: staging.ColumnString},
					{Name: "payment_method", Type: staging.ColumnString},
				},
			},
			{
				Name:       "order_lines",
				Source:     "orders/day_{day}/orders_lines.csv",
				Format:     staging.FormatCSV,
				Table:      "fact_order_lines",
				Strategy:   "key_exclusion",
				KeyColumns: []string{"order_id", "line_number"},
				Columns: []staging.ColumnSpec{
					{Name: "order_id", Type: staging.ColumnString},
					{Name: "line_number", Type: staging.ColumnInt},
					{Name: "product_id", Type: staging.ColumnString},
					{Name: "quantity", Type: staging.ColumnInt},
					{Name: "unit_price", Type: staging.ColumnMoney},
				},
			},
			{
				Name:     "shipments",
				Source:   "shipments.parquet",
				Format:   staging.FormatParquet,
				Table:    "fact_shipments",
				Strategy: "key_exclusion",
			},
			{
				Name:     "returns",
				Source:   "returns.parquet",
				Format:   staging.FormatParquet,
				Table:    "fact_returns",
				Strategy: "key_exclusion",
			},
			{
				Name:            "sensor_readings",
				Source:          "sensors/day_{day}/sensors.csv",
				Format:          staging.FormatCSV,
				Table:           "fact_sensor_readings",
				Strategy:        "watermark",
				EventTimeColumn: "reading_ts",
				Columns: []staging.ColumnSpec{
					{Name: "store_id", Type: staging.ColumnString},
					{Name: "sensor_id", Type: staging.ColumnString},
					{Name: "reading_ts", Type: staging.ColumnTime},
					{Name: "temperature_c", Type: staging.ColumnFloat},
					{Name: "humidity_pct", Type: staging.ColumnFloat},
				},
			},
			{
				Name:            "click_events",
				Source:          "events/events_day_{day}.jsonl",
				Format:          staging.FormatJSONL,
				Table:           "fact_click_events",
				Strategy:        "watermark",
				EventTimeColumn: "event_ts",
				Columns: []staging.ColumnSpec{
					{Name: "event_id", Type: staging.ColumnString},
					{Name: "customer_id", Type: staging.ColumnString},
					{Name: "session_id", Type: staging.ColumnString},
					{Name: "event_type", Type: staging.ColumnString},
					{Name: "url", Type: staging.ColumnString},
					{Name: "event_ts", Type: staging.ColumnTime},
				},
			},
			{
				Name:            "exchange_rates",
				Source:          "exchange_rates.xlsx",
				Format:          staging.FormatXLSX,
				Table:           "fact_exchange_rates",
				Strategy:        "key_exclusion",
				KeyColumns:      []string{"rate_date", "currency"},
				EventTimeColumn: "rate_date",
				Columns: []staging.ColumnSpec{
					{Name: "rate_date", Type: staging.ColumnTime},
					{Name: "currency", Type: staging.ColumnString},
					{Name: "rate_to_eur", Type: staging.ColumnFloat},
				},
			},
		},
	}
}
