// Package views maintains the gold-layer reporting views. Each view is a
// plain SQL view over the silver tables, rebuilt with CREATE OR REPLACE at
// the end of every pipeline run, so reports always reflect the current
// dimension versions without copying data.
package views

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

const dialectPostgres = "postgres"

// View names, qualified with the gold schema.
const (
	ViewDailySalesByStore      = "gold.daily_sales_by_store"
	ViewDailySalesByCategory   = "gold.daily_sales_by_category"
	ViewReturnsRateByProduct   = "gold.returns_rate_by_product"
	ViewSensorDailyTemperature = "gold.sensor_daily_temperature"
)

// Executor runs the view DDL. *pgxpool.Pool satisfies it.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Definition is one gold view: its qualified name and its body.
type Definition struct {
	Name   string
	Select *goqu.SelectDataset
}

// CreateSQL renders the CREATE OR REPLACE statement for the view.
func (d Definition) CreateSQL() (string, error) {
	body, _, err := d.Select.ToSQL()
	if err != nil {
		return "", errors.Join(warehouse.ErrBuildingQueryFailed, err)
	}

	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s", d.Name, body), nil
}

// Definitions returns every gold view in creation order.
func Definitions() []Definition {
	return []Definition{
		{Name: ViewDailySalesByStore, Select: dailySalesByStore()},
		{Name: ViewDailySalesByCategory, Select: dailySalesByCategory()},
		{Name: ViewReturnsRateByProduct, Select: returnsRateByProduct()},
		{Name: ViewSensorDailyTemperature, Select: sensorDailyTemperature()},
	}
}

// Refresh recreates every gold view.
func Refresh(ctx context.Context, executor Executor, logger warehouse.Logger) error {
	for _, view := range Definitions() {
		sqlQuery, buildErr := view.CreateSQL()
		if buildErr != nil {
			return buildErr
		}

		if _, execErr := executor.Exec(ctx, sqlQuery); execErr != nil {
			return fmt.Errorf("failed to create view %s: %w", view.Name, execErr)
		}

		if logger != nil {
			logger.Debug("gold view refreshed", "view", view.Name)
		}
	}

	return nil
}

// dailySalesByStore aggregates order lines per day and store, resolved
// against the store's current version.
func dailySalesByStore() *goqu.SelectDataset {
	salesDate := goqu.L("date_trunc('day', o.event_time)")

	return goqu.Dialect(dialectPostgres).
		From(goqu.T("fact_order_lines").As("l")).
		Join(
			goqu.T("fact_orders").As("o"),
			goqu.On(goqu.L("l.attributes->>'order_id'").Eq(goqu.L("o.fact_key"))),
		).
		Join(
			goqu.T("dim_stores").As("s"),
			goqu.On(
				goqu.L("o.attributes->>'store_id'").Eq(goqu.L("s.natural_key")),
				goqu.L("s.is_current"),
			),
		).
		Select(
			salesDate.As("sales_date"),
			goqu.L("s.natural_key").As("store_id"),
			goqu.L("s.attributes->>'name'").As("store_name"),
			goqu.L("count(distinct o.fact_key)").As("orders"),
			goqu.L("sum((l.attributes->>'quantity')::int)").As("units"),
			goqu.L("sum((l.attributes->>'quantity')::int * (l.attributes->>'unit_price')::numeric)").As("revenue"),
		).
		GroupBy(salesDate, goqu.L("s.natural_key"), goqu.L("s.attributes->>'name'")).
		Order(salesDate.Asc(), goqu.L("s.natural_key").Asc())
}

// dailySalesByCategory aggregates order lines per day and product category,
// resolved against the product's current version.
func dailySalesByCategory() *goqu.SelectDataset {
	salesDate := goqu.L("date_trunc('day', o.event_time)")
	category := goqu.L("p.attributes->>'category'")

	return goqu.Dialect(dialectPostgres).
		From(goqu.T("fact_order_lines").As("l")).
		Join(
			goqu.T("fact_orders").As("o"),
			goqu.On(goqu.L("l.attributes->>'order_id'").Eq(goqu.L("o.fact_key"))),
		).
		Join(
			goqu.T("dim_products").As("p"),
			goqu.On(
				goqu.L("l.attributes->>'product_id'").Eq(goqu.L("p.natural_key")),
				goqu.L("p.is_current"),
			),
		).
		Select(
			salesDate.As("sales_date"),
			category.As("category"),
			goqu.L("sum((l.attributes->>'quantity')::int)").As("units"),
			goqu.L("sum((l.attributes->>'quantity')::int * (l.attributes->>'unit_price')::numeric)").As("revenue"),
		).
		GroupBy(salesDate, category).
		Order(salesDate.Asc(), category.Asc())
}

// returnsRateByProduct relates returned units to sold units per product,
// resolved against the product's current version.
func returnsRateByProduct() *goqu.SelectDataset {
	sold := goqu.Dialect(dialectPostgres).
		From("fact_order_lines").
		Select(
			goqu.L("attributes->>'product_id'").As("product_id"),
			goqu.L("sum((attributes->>'quantity')::int)").As("units_sold"),
		).
		GroupBy(goqu.L("attributes->>'product_id'"))

	returned := goqu.Dialect(dialectPostgres).
		From("fact_returns").
		Select(
			goqu.L("attributes->>'product_id'").As("product_id"),
			goqu.L("sum((attributes->>'quantity')::int)").As("units_returned"),
		).
		GroupBy(goqu.L("attributes->>'product_id'"))

	return goqu.Dialect(dialectPostgres).
		From(sold.As("sold")).
		LeftJoin(
			returned.As("ret"),
			goqu.On(goqu.L("ret.product_id").Eq(goqu.L("sold.product_id"))),
		).
		Join(
			goqu.T("dim_products").As("p"),
			goqu.On(
				goqu.L("p.natural_key").Eq(goqu.L("sold.product_id")),
				goqu.L("p.is_current"),
			),
		).
		Select(
			goqu.L("p.natural_key").As("product_id"),
			goqu.L("p.attributes->>'name'").As("product_name"),
			goqu.L("sold.units_sold").As("units_sold"),
			goqu.L("coalesce(ret.units_returned, 0)").As("units_returned"),
			goqu.L("round(coalesce(ret.units_returned, 0)::numeric / nullif(sold.units_sold, 0), 4)").As("return_rate"),
		)
}

// sensorDailyTemperature condenses the raw telemetry into daily store
// aggregates.
func sensorDailyTemperature() *goqu.SelectDataset {
	readingDate := goqu.L("date_trunc('day', event_time)")
	storeID := goqu.L("attributes->>'store_id'")

	return goqu.Dialect(dialectPostgres).
		From("fact_sensor_readings").
		Select(
			readingDate.As("reading_date"),
			storeID.As("store_id"),
			goqu.L("round(avg((attributes->>'temperature_c')::numeric), 1)").As("avg_temperature_c"),
			goqu.L("min((attributes->>'temperature_c')::numeric)").As("min_temperature_c"),
			goqu.L("max((attributes->>'temperature_c')::numeric)").As("max_temperature_c"),
			goqu.L("count(*)").As("readings"),
		).
		GroupBy(readingDate, storeID)
}
