package staging

import (
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/Mj37-com/medallion-warehouse-go/internal/retail"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

// ReadShipmentsParquet loads the logistics Parquet feed. The feed carries a
// fixed schema, so rows decode straight into the typed shipment struct and
// the event time comes from the embedded shipped_at column.
func ReadShipmentsParquet(path string) (warehouse.FactBatch, error) {
	rows, err := parquet.ReadFile[retail.Shipment](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet %s: %w", path, err)
	}

	batch := make(warehouse.FactBatch, 0, len(rows))
	for _, row := range rows {
		batch = append(batch, row.ToFactRecord())
	}

	return batch, nil
}

// ReadReturnsParquet loads the returns desk's Parquet feed.
func ReadReturnsParquet(path string) (warehouse.FactBatch, error) {
	rows, err := parquet.ReadFile[retail.Return](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet %s: %w", path, err)
	}

	batch := make(warehouse.FactBatch, 0, len(rows))
	for _, row := range rows {
		batch = append(batch, row.ToFactRecord())
	}

	return batch, nil
}
