package staging_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Mj37-com/medallion-warehouse-go/internal/staging"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

func Test_ReadEntitiesCSV_CanonicalizesEveryColumnType(t *testing.T) {
	// arrange - raw values in the messy forms sources actually deliver
	path := givenFile(t, "products.csv",
		"\xEF\xBB\xBFproduct_id,name,current_price,in_stock,launched_at,ignored\n"+
			"P1, Oak Table ,12.5,Yes,2024-03-01 10:00:00,junk\n"+
			"P2,Chair,7,0,2024-03-02,junk\n")

	// act
	batch, err := staging.ReadEntitiesCSV(path, givenProductSpec())

	// assert
	assert.NoError(t, err)
	require.Len(t, batch, 2)

	assert.Equal(t, "P1", batch[0].NaturalKey)
	assert.Equal(t, "Oak Table", batch[0].Attributes["name"])
	assert.Equal(t, "12.50", batch[0].Attributes["current_price"])
	assert.Equal(t, "true", batch[0].Attributes["in_stock"])
	assert.Equal(t, "2024-03-01T10:00:00Z", batch[0].Attributes["launched_at"])
	assert.NotContains(t, batch[0].Attributes, "ignored", "unconfigured columns must not leak into the record")

	assert.Equal(t, "7.00", batch[1].Attributes["current_price"])
	assert.Equal(t, "false", batch[1].Attributes["in_stock"])
	assert.Equal(t, "2024-03-02T00:00:00Z", batch[1].Attributes["launched_at"])
}

func Test_ReadEntitiesCSV_RefusesFileMissingConfiguredColumn(t *testing.T) {
	// arrange - the price column disappeared from the export
	path := givenFile(t, "products.csv",
		"product_id,name,in_stock,launched_at\n"+
			"P1,Oak Table,yes,2024-03-01\n")

	// act
	batch, err := staging.ReadEntitiesCSV(path, givenProductSpec())

	// assert
	assert.Nil(t, batch)
	assert.ErrorIs(t, err, warehouse.ErrSchemaViolation)
	assert.ErrorContains(t, err, `column "current_price" is missing`)
}

func Test_ReadEntitiesCSV_RefusesUnparsableCell_NamingTheFileRow(t *testing.T) {
	// arrange - second data row sits on file row 3, counting the header
	path := givenFile(t, "products.csv",
		"product_id,name,current_price,in_stock,launched_at\n"+
			"P1,Oak Table,12.50,yes,2024-03-01\n"+
			"P2,Chair,not-a-price,no,2024-03-01\n")

	// act
	_, err := staging.ReadEntitiesCSV(path, givenProductSpec())

	// assert
	assert.ErrorIs(t, err, warehouse.ErrSchemaViolation)
	assert.ErrorContains(t, err, "row 3")
	assert.ErrorContains(t, err, `unable to coerce "not-a-price" to money`)
}

func Test_ReadEntitiesCSV_RefusesRowWithEmptyNaturalKey(t *testing.T) {
	// arrange
	path := givenFile(t, "products.csv",
		"product_id,name,current_price,in_stock,launched_at\n"+
			" ,Oak Table,12.50,yes,2024-03-01\n")

	// act
	_, err := staging.ReadEntitiesCSV(path, givenProductSpec())

	// assert
	assert.ErrorIs(t, err, warehouse.ErrSchemaViolation)
	assert.ErrorContains(t, err, "row 2")
}

func Test_ReadEntitiesCSV_RefusesNaturalKeyOutsideConfiguredColumns(t *testing.T) {
	// arrange
	path := givenFile(t, "products.csv", "product_id,name\nP1,Oak Table\n")
	spec := staging.EntitySpec{
		NaturalKeyColumn: "sku",
		Columns:          []staging.ColumnSpec{{Name: "product_id", Type: staging.ColumnString}, {Name: "name", Type: staging.ColumnString}},
	}

	// act
	_, err := staging.ReadEntitiesCSV(path, spec)

	// assert
	assert.ErrorIs(t, err, warehouse.ErrSchemaViolation)
	assert.ErrorContains(t, err, `natural key column "sku"`)
}

func Test_ReadEntitiesCSV_SkipsBlankLines(t *testing.T) {
	// arrange
	path := givenFile(t, "products.csv",
		"product_id,name,current_price,in_stock,launched_at\n"+
			"\n"+
			"P1,Oak Table,12.50,yes,2024-03-01\n"+
			"\n")

	// act
	batch, err := staging.ReadEntitiesCSV(path, givenProductSpec())

	// assert
	assert.NoError(t, err)
	assert.Len(t, batch, 1)
}

func Test_ReadEntitiesXLSX_ReadsTheFirstSheet(t *testing.T) {
	// arrange - numeric cells come back from excelize as display strings
	path := givenXLSXFile(t, [][]any{
		{"product_id", "name", "current_price", "in_stock", "launched_at"},
		{"P1", "Oak Table", 12.5, "yes", "2024-03-01 10:00:00"},
	})

	// act
	batch, err := staging.ReadEntitiesXLSX(path, givenProductSpec())

	// assert
	assert.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "P1", batch[0].NaturalKey)
	assert.Equal(t, "12.50", batch[0].Attributes["current_price"])
	assert.Equal(t, "2024-03-01T10:00:00Z", batch[0].Attributes["launched_at"])
}

func Test_ReadFactsCSV_JoinsCompositeKeys_AndStampsArrivalTime(t *testing.T) {
	// arrange - order lines carry no event timestamp of their own
	arrivedAt := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	path := givenFile(t, "orders_lines.csv",
		"order_id,line_number,quantity\n"+
			"O1,1,3\n"+
			"O1,2,1\n")

	spec := staging.FactSpec{
		KeyColumns: []string{"order_id", "line_number"},
		Columns: []staging.ColumnSpec{
			{Name: "order_id", Type: staging.ColumnString},
			{Name: "line_number", Type: staging.ColumnInt},
			{Name: "quantity", Type: staging.ColumnInt},
		},
		ArrivedAt: arrivedAt,
	}

	// act
	batch, err := staging.ReadFactsCSV(path, spec)

	// assert
	assert.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "O1|1", batch[0].Key)
	assert.Equal(t, "O1|2", batch[1].Key)
	assert.True(t, batch[0].EventTime.Equal(arrivedAt))
	assert.Equal(t, "3", batch[0].Attributes["quantity"])
}

func Test_ReadFactsCSV_TakesEventTimeFromTheConfiguredColumn(t *testing.T) {
	// arrange
	path := givenFile(t, "sensors.csv",
		"sensor_id,reading_ts,temperature_c\n"+
			"S1,2024-03-01 06:30:00,21.5\n")

	spec := staging.FactSpec{
		EventTimeColumn: "reading_ts",
		Columns: []staging.ColumnSpec{
			{Name: "sensor_id", Type: staging.ColumnString},
			{Name: "reading_ts", Type: staging.ColumnTime},
			{Name: "temperature_c", Type: staging.ColumnFloat},
		},
		ArrivedAt: time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC),
	}

	// act
	batch, err := staging.ReadFactsCSV(path, spec)

	// assert
	assert.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Empty(t, batch[0].Key, "watermark rows carry no key")
	assert.True(t, batch[0].EventTime.Equal(time.Date(2024, 3, 1, 6, 30, 0, 0, time.UTC)))
	assert.Equal(t, "21.5", batch[0].Attributes["temperature_c"])
}

func Test_ReadFactsCSV_RefusesEmptyEventTimeCell(t *testing.T) {
	// arrange
	path := givenFile(t, "sensors.csv",
		"sensor_id,reading_ts\n"+
			"S1,\n")

	spec := staging.FactSpec{
		EventTimeColumn: "reading_ts",
		Columns: []staging.ColumnSpec{
			{Name: "sensor_id", Type: staging.ColumnString},
			{Name: "reading_ts", Type: staging.ColumnTime},
		},
	}

	// act
	_, err := staging.ReadFactsCSV(path, spec)

	// assert
	assert.ErrorIs(t, err, warehouse.ErrSchemaViolation)
	assert.ErrorContains(t, err, `event time column "reading_ts" is empty`)
}

func givenProductSpec() staging.EntitySpec {
	return staging.EntitySpec{
		NaturalKeyColumn: "product_id",
		Columns: []staging.ColumnSpec{
			{Name: "product_id", Type: staging.ColumnString},
			{Name: "name", Type: staging.ColumnString},
			{Name: "current_price", Type: staging.ColumnMoney},
			{Name: "in_stock", Type: staging.ColumnBool},
			{Name: "launched_at", Type: staging.ColumnTime},
		},
	}
}

func givenFile(t *testing.T, name string, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func givenXLSXFile(t *testing.T, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	for rowIdx, row := range rows {
		for colIdx, value := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			assert.NoError(t, err)
			assert.NoError(t, f.SetCellValue(sheet, cell, value))
		}
	}

	path := filepath.Join(t.TempDir(), "workbook.xlsx")
	assert.NoError(t, f.SaveAs(path))

	return path
}
