package views_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mj37-com/medallion-warehouse-go/internal/views"
)

func Test_Definitions_RenderCompleteCreateStatements(t *testing.T) {
	// act
	definitions := views.Definitions()

	// assert
	require.Len(t, definitions, 4)

	rendered := make(map[string]string, len(definitions))
	for _, definition := range definitions {
		sqlQuery, err := definition.CreateSQL()
		assert.NoError(t, err)
		assert.Contains(t, sqlQuery, "CREATE OR REPLACE VIEW "+definition.Name+" AS ")
		rendered[definition.Name] = sqlQuery
	}

	sales := rendered[views.ViewDailySalesByStore]
	assert.Contains(t, sales, "fact_order_lines")
	assert.Contains(t, sales, "fact_orders")
	assert.Contains(t, sales, "dim_stores")
	assert.Contains(t, sales, "s.is_current", "sales must resolve against the current store version")
	assert.Contains(t, sales, "date_trunc('day', o.event_time)")

	categories := rendered[views.ViewDailySalesByCategory]
	assert.Contains(t, categories, "dim_products")
	assert.Contains(t, categories, "p.attributes->>'category'")
	assert.Contains(t, categories, "p.is_current", "sales must resolve against the current product version")

	returns := rendered[views.ViewReturnsRateByProduct]
	assert.Contains(t, returns, "fact_returns")
	assert.Contains(t, returns, "dim_products")
	assert.Contains(t, returns, "nullif", "the rate must not divide by zero")

	sensors := rendered[views.ViewSensorDailyTemperature]
	assert.Contains(t, sensors, "fact_sensor_readings")
	assert.Contains(t, sensors, "avg((attributes->>'temperature_c')::numeric)")
}

func Test_Refresh_ExecutesEveryViewInOrder(t *testing.T) {
	// arrange
	executor := &capturingExecutor{}

	// act
	err := views.Refresh(context.Background(), executor, nil)

	// assert
	assert.NoError(t, err)
	require.Len(t, executor.statements, 4)
	assert.Contains(t, executor.statements[0], views.ViewDailySalesByStore)
	assert.Contains(t, executor.statements[1], views.ViewDailySalesByCategory)
	assert.Contains(t, executor.statements[2], views.ViewReturnsRateByProduct)
	assert.Contains(t, executor.statements[3], views.ViewSensorDailyTemperature)
}

func Test_Refresh_StopsOnTheFirstFailure(t *testing.T) {
	// arrange
	executor := &capturingExecutor{failFrom: 2}

	// act
	err := views.Refresh(context.Background(), executor, nil)

	// assert
	assert.Error(t, err)
	assert.ErrorContains(t, err, views.ViewDailySalesByCategory)
	assert.Len(t, executor.statements, 2, "the failing statement is the last one attempted")
}

type capturingExecutor struct {
	statements []string
	failFrom   int
}

func (e *capturingExecutor) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	e.statements = append(e.statements, sql)

	if e.failFrom > 0 && len(e.statements) >= e.failFrom {
		return pgconn.CommandTag{}, errors.New("simulated database failure")
	}

	return pgconn.CommandTag{}, nil
}
