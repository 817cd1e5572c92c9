// Package retail is the source domain of the warehouse: the typed raw
// records a retailer's operational systems export each day, a deterministic
// synthetic generator for those exports, and the descriptive projections
// (privacy masking, tier and region derivation, calendar days) applied on the
// way into the silver layer.
package retail

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

// Customer is one row of the customers master export.
type Customer struct {
	CustomerID  string
	Name        string
	Email       string
	Phone       string
	Address     string
	City        string
	Country     string
	GDPRConsent bool
	VIPFlag     bool
	JoinedAt    time.Time
}

// Product is one row of the products master export.
type Product struct {
	ProductID    string
	Name         string
	Category     string
	SupplierID   string
	CurrentPrice float64
	Currency     string
	LaunchedAt   time.Time
}

// Store is one row of the stores master export.
type Store struct {
	StoreID   string
	Name      string
	City      string
	Country   string
	OpenedAt  time.Time
}

// Supplier is one row of the suppliers master export.
type Supplier struct {
	SupplierID       string
	Name             string
	Country          string
	ReliabilityScore float64
}

// OrderHeader is one order of the daily order export.
type OrderHeader struct {
	OrderID       string
	CustomerID    string
	StoreID       string
	OrderTS       time.Time
	Currency      string
	PaymentMethod string
}

// OrderLine is one line of the daily order export.
type OrderLine struct {
	OrderID    string
	LineNumber int
	ProductID  string
	Quantity   int
	UnitPrice  float64
}

// Shipment is one row of the carrier's Parquet feed.
type Shipment struct {
	ShipmentID string    `parquet:"shipment_id"`
	OrderID    string    `parquet:"order_id"`
	Carrier    string    `parquet:"carrier"`
	ShippedAt  time.Time `parquet:"shipped_at,timestamp(millisecond)"`
	WeightKG   float64   `parquet:"weight_kg"`
}

// ToFactRecord converts the shipment to its canonical fact shape.
func (s Shipment) ToFactRecord() warehouse.FactRecord {
	return warehouse.BuildFactRecord(s.ShipmentID, s.ShippedAt.UTC(), map[string]string{
		"shipment_id": s.ShipmentID,
		"order_id":    s.OrderID,
		"carrier":     s.Carrier,
		"shipped_at":  s.ShippedAt.UTC().Format(time.RFC3339),
		"weight_kg":   strconv.FormatFloat(s.WeightKG, 'f', -1, 64),
	})
}

// Return is one row of the returns desk's Parquet feed.
type Return struct {
	ReturnID     string    `parquet:"return_id"`
	OrderID      string    `parquet:"order_id"`
	ProductID    string    `parquet:"product_id"`
	Quantity     int32     `parquet:"quantity"`
	Reason       string    `parquet:"reason"`
	RefundAmount float64   `parquet:"refund_amount"`
	ReturnedAt   time.Time `parquet:"returned_at,timestamp(millisecond)"`
}

// ToFactRecord converts the return to its canonical fact shape.
func (r Return) ToFactRecord() warehouse.FactRecord {
	return warehouse.BuildFactRecord(r.ReturnID, r.ReturnedAt.UTC(), map[string]string{
		"return_id":     r.ReturnID,
		"order_id":      r.OrderID,
		"product_id":    r.ProductID,
		"quantity":      strconv.FormatInt(int64(r.Quantity), 10),
		"reason":        r.Reason,
		"refund_amount": fmt.Sprintf("%.2f", r.RefundAmount),
		"returned_at":   r.ReturnedAt.UTC().Format(time.RFC3339),
	})
}

// SensorReading is one row of the store telemetry export. Readings carry no
// row key; the stream is loaded by watermark.
type SensorReading struct {
	StoreID       string
	SensorID      string
	ReadingTS     time.Time
	TemperatureC  float64
	HumidityPct   float64
}

// ClickEvent is one line of the web shop's event export.
type ClickEvent struct {
	EventID    string    `json:"event_id"`
	CustomerID string    `json:"customer_id"`
	SessionID  string    `json:"session_id"`
	EventType  string    `json:"event_type"`
	URL        string    `json:"url"`
	EventTS    time.Time `json:"event_ts"`
}

// ExchangeRate is one row of the treasury's daily rate workbook.
type ExchangeRate struct {
	RateDate  time.Time
	Currency  string
	RateToEUR float64
}
