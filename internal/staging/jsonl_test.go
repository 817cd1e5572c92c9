package staging_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mj37-com/medallion-warehouse-go/internal/staging"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

func Test_ReadFactsJSONL_ParsesOneObjectPerLine(t *testing.T) {
	// arrange - JSON numbers arrive as float64 and must still canonicalize
	path := givenFile(t, "events.jsonl",
		`{"event_id":"E1","event_type":"page_view","event_ts":"2024-03-01T09:15:00Z","amount":12.5}`+"\n"+
			"\n"+
			`{"event_id":"E2","event_type":"add_to_cart","event_ts":"2024-03-01T09:16:30Z","amount":7}`+"\n")

	// act
	batch, err := staging.ReadFactsJSONL(path, givenClickEventSpec())

	// assert
	assert.NoError(t, err)
	require.Len(t, batch, 2, "blank lines must be skipped")

	assert.Empty(t, batch[0].Key)
	assert.True(t, batch[0].EventTime.Equal(time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)))
	assert.Equal(t, "page_view", batch[0].Attributes["event_type"])
	assert.Equal(t, "12.50", batch[0].Attributes["amount"])

	assert.True(t, batch[1].EventTime.Equal(time.Date(2024, 3, 1, 9, 16, 30, 0, time.UTC)))
	assert.Equal(t, "7.00", batch[1].Attributes["amount"])
}

func Test_ReadFactsJSONL_RefusesMalformedLine_NamingTheLineNumber(t *testing.T) {
	// arrange
	path := givenFile(t, "events.jsonl",
		`{"event_id":"E1","event_type":"page_view","event_ts":"2024-03-01T09:15:00Z"}`+"\n"+
			"this is not json\n")

	// act
	batch, err := staging.ReadFactsJSONL(path, givenClickEventSpec())

	// assert
	assert.Nil(t, batch)
	assert.ErrorIs(t, err, warehouse.ErrSchemaViolation)
	assert.ErrorContains(t, err, "line 2")
}

func Test_ReadFactsJSONL_RefusesObjectWithoutEventTime(t *testing.T) {
	// arrange
	path := givenFile(t, "events.jsonl",
		`{"event_id":"E1","event_type":"page_view"}`+"\n")

	// act
	_, err := staging.ReadFactsJSONL(path, givenClickEventSpec())

	// assert
	assert.ErrorIs(t, err, warehouse.ErrSchemaViolation)
	assert.ErrorContains(t, err, `event time column "event_ts" is empty`)
}

func Test_ReadFactsJSONL_ReportsUncoercibleField(t *testing.T) {
	// arrange
	path := givenFile(t, "events.jsonl",
		`{"event_id":"E1","event_type":"page_view","event_ts":"2024-03-01T09:15:00Z","amount":"lots"}`+"\n")

	// act
	_, err := staging.ReadFactsJSONL(path, givenClickEventSpec())

	// assert
	assert.ErrorIs(t, err, warehouse.ErrSchemaViolation)
	assert.ErrorContains(t, err, `field "amount"`)
}

func givenClickEventSpec() staging.FactSpec {
	return staging.FactSpec{
		EventTimeColumn: "event_ts",
		Columns: []staging.ColumnSpec{
			{Name: "event_id", Type: staging.ColumnString},
			{Name: "event_type", Type: staging.ColumnString},
			{Name: "event_ts", Type: staging.ColumnTime},
			{Name: "amount", Type: staging.ColumnMoney},
		},
		ArrivedAt: time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC),
	}
}
