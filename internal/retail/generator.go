package retail

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"
)

var json = jsoniter.ConfigFastest

const (
	customerCount = 40
	productCount  = 30
	storeCount    = 8
	supplierCount = 10

	ordersPerDay         = 25
	shipmentsPerDay      = 15
	returnsPerDay        = 6
	sensorReadingsPerDay = 6
	clickEventsPerDay    = 60

	// priceMutationShare is the fraction of products whose price changes on
	// each day after the first.
	priceMutationShare = 0.1
)

var (
	firstNames = []string{"Ada", "Bruno", "Clara", "Diego", "Elif", "Femi", "Greta", "Hugo", "Ines", "Jonas", "Katrin", "Luca", "Marta", "Nils", "Olga", "Pavel", "Quinn", "Rosa", "Sven", "Tara"}
	lastNames  = []string{"Almeida", "Berger", "Costa", "Dubois", "Eriksen", "Fischer", "Garcia", "Hansen", "Ivanova", "Jensen", "Keller", "Lombardi", "Moreau", "Novak", "Olsen", "Peeters", "Quaranta", "Rossi", "Schmidt", "Tanaka"}
	cities     = []string{"Berlin", "Lisbon", "Madrid", "Milan", "Paris", "Prague", "Rotterdam", "Vienna", "Warsaw", "Zurich"}
	countries  = []string{"DE", "PT", "ES", "IT", "FR", "CZ", "NL", "AT", "PL", "CH"}
	streets    = []string{"Ahornweg", "Birkenstrasse", "Via Cavour", "Rue Verte", "Calle Mayor", "Lindenallee", "Kanaalweg", "Ulica Polna"}

	categories     = []string{"furniture", "lighting", "textiles", "kitchen", "outdoor", "storage"}
	productNouns   = []string{"Desk", "Chair", "Lamp", "Shelf", "Table", "Sofa", "Rug", "Cabinet", "Bench", "Mirror"}
	productWoods   = []string{"Walnut", "Oak", "Birch", "Ash", "Pine", "Beech", "Maple", "Cherry"}
	carriers       = []string{"DHL", "UPS", "DPD", "GLS"}
	paymentMethods = []string{"card", "invoice", "paypal", "giftcard"}
	returnReasons  = []string{"damaged", "wrong_item", "not_as_described", "changed_mind"}
	eventTypes     = []string{"page_view", "add_to_cart", "checkout", "search"}
	currencies     = []string{"USD", "GBP", "CHF", "PLN"}
)

// Generator produces the deterministic synthetic exports of the retail
// source systems. The same seed and day always yield the same data; days
// after the first mutate a share of product prices, a few customer addresses
// and one supplier score, so a rerun of the pipeline exercises the version
// close-and-open path.
type Generator struct {
	seed int64
}

// NewGenerator creates a generator for the given seed.
func NewGenerator(seed int64) Generator {
	return Generator{seed: seed}
}

// DayData is everything the source systems export for one day.
type DayData struct {
	Day            int
	Customers      []Customer
	Products       []Product
	Stores         []Store
	Suppliers      []Supplier
	Orders         []OrderHeader
	OrderLines     []OrderLine
	Shipments      []Shipment
	Returns        []Return
	SensorReadings []SensorReading
	ClickEvents    []ClickEvent
	ExchangeRates  []ExchangeRate
}

// BuildDay computes the day's data set. Dimension data starts from the seed's
// base population and applies each prior day's mutations in order, so daily
// snapshots evolve consistently; fact data is generated fresh per day with
// day-unique identifiers.
func (g Generator) BuildDay(day int) (DayData, error) {
	if day < 1 {
		return DayData{}, fmt.Errorf("day must be >= 1, got %d", day)
	}

	data := DayData{
		Day:       day,
		Customers: g.baseCustomers(),
		Products:  g.baseProducts(),
		Stores:    g.baseStores(),
		Suppliers: g.baseSuppliers(),
	}

	for mutationDay := 2; mutationDay <= day; mutationDay++ {
		g.mutateDay(&data, mutationDay)
	}

	rng := g.dayRand(day, "facts")
	date := dayDate(day)

	data.Orders, data.OrderLines = g.buildOrders(rng, date, day, data)
	data.Shipments = g.buildShipments(rng, date, day, data.Orders)
	data.Returns = g.buildReturns(rng, date, day, data)
	data.SensorReadings = g.buildSensorReadings(rng, date, data.Stores)
	data.ClickEvents = g.buildClickEvents(rng, date, day, data.Customers)
	data.ExchangeRates = g.buildExchangeRates(rng, date)

	return data, nil
}

// WriteDay builds the day and writes every export file under dir, returning
// the written paths. Master data files and the carrier/treasury feeds live at
// fixed paths and are overwritten each day; order, sensor and event exports
// are day-scoped.
func (g Generator) WriteDay(dir string, day int) ([]string, error) {
	data, err := g.BuildDay(day)
	if err != nil {
		return nil, err
	}

	dayDir := fmt.Sprintf("day_%d", day)
	writes := []struct {
		path  string
		write func(path string) error
	}{
		{"customers.csv", func(p string) error { return writeCustomersCSV(p, data.Customers) }},
		{"products.csv", func(p string) error { return writeProductsCSV(p, data.Products) }},
		{"stores.csv", func(p string) error { return writeStoresCSV(p, data.Stores) }},
		{"suppliers.csv", func(p string) error { return writeSuppliersCSV(p, data.Suppliers) }},
		{filepath.Join("orders", dayDir, "orders_header.csv"), func(p string) error { return writeOrdersCSV(p, data.Orders) }},
		{filepath.Join("orders", dayDir, "orders_lines.csv"), func(p string) error { return writeOrderLinesCSV(p, data.OrderLines) }},
		{"shipments.parquet", func(p string) error { return writeParquet(p, data.Shipments) }},
		{"returns.parquet", func(p string) error { return writeParquet(p, data.Returns) }},
		{filepath.Join("sensors", dayDir, "sensors.csv"), func(p string) error { return writeSensorsCSV(p, data.SensorReadings) }},
		{filepath.Join("events", fmt.Sprintf("events_day_%d.jsonl", day)), func(p string) error { return writeClickEventsJSONL(p, data.ClickEvents) }},
		{"exchange_rates.xlsx", func(p string) error { return writeExchangeRatesXLSX(p, data.ExchangeRates) }},
	}

	written := make([]string, 0, len(writes))
	for _, w := range writes {
		path := filepath.Join(dir, w.path)
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, mkErr)
		}
		if writeErr := w.write(path); writeErr != nil {
			return nil, writeErr
		}
		written = append(written, path)
	}

	return written, nil
}

// dayRand derives an independent deterministic random stream per day and
// purpose.
func (g Generator) dayRand(day int, purpose string) *rand.Rand {
	h := int64(0)
	for _, c := range purpose {
		h = h*31 + int64(c)
	}

	return rand.New(rand.NewSource(g.seed + int64(day)*1_000_003 + h))
}

func dayDate(day int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day-1)
}

func (g Generator) baseCustomers() []Customer {
	rng := rand.New(rand.NewSource(g.seed))
	customers := make([]Customer, 0, customerCount)

	for i := 0; i < customerCount; i++ {
		first := firstNames[rng.Intn(len(firstNames))]
		last := lastNames[rng.Intn(len(lastNames))]
		cityIdx := rng.Intn(len(cities))

		customers = append(customers, Customer{
			CustomerID:  fmt.Sprintf("CUST_%04d", i+1),
			Name:        first + " " + last,
			Email:       fmt.Sprintf("%s.%s%d@example.com", first, last, i+1),
			Phone:       fmt.Sprintf("+49 30 %07d", rng.Intn(10_000_000)),
			Address:     fmt.Sprintf("%s %d", streets[rng.Intn(len(streets))], rng.Intn(120)+1),
			City:        cities[cityIdx],
			Country:     countries[cityIdx],
			GDPRConsent: rng.Float64() < 0.7,
			VIPFlag:     rng.Float64() < 0.15,
			JoinedAt:    time.Date(2020+rng.Intn(4), time.Month(rng.Intn(12)+1), rng.Intn(28)+1, 0, 0, 0, 0, time.UTC),
		})
	}

	return customers
}

func (g Generator) baseProducts() []Product {
	rng := rand.New(rand.NewSource(g.seed + 1))
	products := make([]Product, 0, productCount)

	for i := 0; i < productCount; i++ {
		products = append(products, Product{
			ProductID:    fmt.Sprintf("SKU_%05d", i+1),
			Name:         productWoods[rng.Intn(len(productWoods))] + " " + productNouns[rng.Intn(len(productNouns))],
			Category:     categories[rng.Intn(len(categories))],
			SupplierID:   fmt.Sprintf("SUP_%03d", rng.Intn(supplierCount)+1),
			CurrentPrice: 10 + float64(rng.Intn(49_000))/100,
			Currency:     "EUR",
			LaunchedAt:   time.Date(2021+rng.Intn(3), time.Month(rng.Intn(12)+1), rng.Intn(28)+1, 0, 0, 0, 0, time.UTC),
		})
	}

	return products
}

func (g Generator) baseStores() []Store {
	rng := rand.New(rand.NewSource(g.seed + 2))
	stores := make([]Store, 0, storeCount)

	for i := 0; i < storeCount; i++ {
		cityIdx := rng.Intn(len(cities))
		stores = append(stores, Store{
			StoreID:  fmt.Sprintf("STORE_%02d", i+1),
			Name:     cities[cityIdx] + " " + []string{"Central", "North", "South", "East", "West"}[rng.Intn(5)],
			City:     cities[cityIdx],
			Country:  countries[cityIdx],
			OpenedAt: time.Date(2015+rng.Intn(8), time.Month(rng.Intn(12)+1), rng.Intn(28)+1, 0, 0, 0, 0, time.UTC),
		})
	}

	return stores
}

func (g Generator) baseSuppliers() []Supplier {
	rng := rand.New(rand.NewSource(g.seed + 3))
	suppliers := make([]Supplier, 0, supplierCount)

	for i := 0; i < supplierCount; i++ {
		suppliers = append(suppliers, Supplier{
			SupplierID:       fmt.Sprintf("SUP_%03d", i+1),
			Name:             lastNames[rng.Intn(len(lastNames))] + " & Co",
			Country:          countries[rng.Intn(len(countries))],
			ReliabilityScore: float64(60+rng.Intn(40)) / 10,
		})
	}

	return suppliers
}

// mutateDay applies the dimension changes the source systems made on the
// given day: some repriced products, a couple of moved customers, one
// rescored supplier.
func (g Generator) mutateDay(data *DayData, day int) {
	rng := g.dayRand(day, "mutations")

	priceChanges := int(float64(len(data.Products)) * priceMutationShare)
	if priceChanges < 1 {
		priceChanges = 1
	}
	for i := 0; i < priceChanges; i++ {
		idx := rng.Intn(len(data.Products))
		factor := 0.9 + rng.Float64()*0.25
		data.Products[idx].CurrentPrice = roundCents(data.Products[idx].CurrentPrice * factor)
	}

	for i := 0; i < 2; i++ {
		idx := rng.Intn(len(data.Customers))
		cityIdx := rng.Intn(len(cities))
		data.Customers[idx].Address = fmt.Sprintf("%s %d", streets[rng.Intn(len(streets))], rng.Intn(120)+1)
		data.Customers[idx].City = cities[cityIdx]
		data.Customers[idx].Country = countries[cityIdx]
	}

	idx := rng.Intn(len(data.Suppliers))
	data.Suppliers[idx].ReliabilityScore = float64(60+rng.Intn(40)) / 10
}

func (g Generator) buildOrders(rng *rand.Rand, date time.Time, day int, data DayData) ([]OrderHeader, []OrderLine) {
	orders := make([]OrderHeader, 0, ordersPerDay)
	var lines []OrderLine

	for i := 0; i < ordersPerDay; i++ {
		orderID := fmt.Sprintf("ORD_%d_%05d", day, i+1)
		orders = append(orders, OrderHeader{
			OrderID:       orderID,
			CustomerID:    data.Customers[rng.Intn(len(data.Customers))].CustomerID,
			StoreID:       data.Stores[rng.Intn(len(data.Stores))].StoreID,
			OrderTS:       date.Add(time.Duration(8+rng.Intn(12)) * time.Hour).Add(time.Duration(rng.Intn(60)) * time.Minute),
			Currency:      "EUR",
			PaymentMethod: paymentMethods[rng.Intn(len(paymentMethods))],
		})

		lineCount := 1 + rng.Intn(3)
		for lineNumber := 1; lineNumber <= lineCount; lineNumber++ {
			product := data.Products[rng.Intn(len(data.Products))]
			lines = append(lines, OrderLine{
				OrderID:    orderID,
				LineNumber: lineNumber,
				ProductID:  product.ProductID,
				Quantity:   1 + rng.Intn(4),
				UnitPrice:  product.CurrentPrice,
			})
		}
	}

	return orders, lines
}

func (g Generator) buildShipments(rng *rand.Rand, date time.Time, day int, orders []OrderHeader) []Shipment {
	shipments := make([]Shipment, 0, shipmentsPerDay)

	for i := 0; i < shipmentsPerDay; i++ {
		shipments = append(shipments, Shipment{
			ShipmentID: fmt.Sprintf("SHIP_%d_%05d", day, i+1),
			OrderID:    orders[rng.Intn(len(orders))].OrderID,
			Carrier:    carriers[rng.Intn(len(carriers))],
			ShippedAt:  date.Add(time.Duration(14+rng.Intn(6)) * time.Hour),
			WeightKG:   roundCents(0.5 + rng.Float64()*30),
		})
	}

	return shipments
}

func (g Generator) buildReturns(rng *rand.Rand, date time.Time, day int, data DayData) []Return {
	returns := make([]Return, 0, returnsPerDay)

	for i := 0; i < returnsPerDay; i++ {
		product := data.Products[rng.Intn(len(data.Products))]
		returns = append(returns, Return{
			ReturnID:     fmt.Sprintf("RET_%d_%05d", day, i+1),
			OrderID:      data.Orders[rng.Intn(len(data.Orders))].OrderID,
			ProductID:    product.ProductID,
			Quantity:     int32(1 + rng.Intn(2)),
			Reason:       returnReasons[rng.Intn(len(returnReasons))],
			RefundAmount: roundCents(product.CurrentPrice * float64(1+rng.Intn(2))),
			ReturnedAt:   date.Add(time.Duration(9+rng.Intn(9)) * time.Hour),
		})
	}

	return returns
}

func (g Generator) buildSensorReadings(rng *rand.Rand, date time.Time, stores []Store) []SensorReading {
	readings := make([]SensorReading, 0, len(stores)*sensorReadingsPerDay)

	for _, store := range stores {
		for hour := 0; hour < sensorReadingsPerDay; hour++ {
			readings = append(readings, SensorReading{
				StoreID:      store.StoreID,
				SensorID:     store.StoreID + "_TEMP_1",
				ReadingTS:    date.Add(time.Duration(8+hour*2) * time.Hour),
				TemperatureC: roundTenth(18 + rng.Float64()*6),
				HumidityPct:  roundTenth(35 + rng.Float64()*25),
			})
		}
	}

	return readings
}

func (g Generator) buildClickEvents(rng *rand.Rand, date time.Time, day int, customers []Customer) []ClickEvent {
	events := make([]ClickEvent, 0, clickEventsPerDay)

	for i := 0; i < clickEventsPerDay; i++ {
		events = append(events, ClickEvent{
			EventID:    fmt.Sprintf("EVT_%d_%06d", day, i+1),
			CustomerID: customers[rng.Intn(len(customers))].CustomerID,
			SessionID:  fmt.Sprintf("sess_%d_%04d", day, rng.Intn(1000)),
			EventType:  eventTypes[rng.Intn(len(eventTypes))],
			URL:        fmt.Sprintf("/catalog/%s", categories[rng.Intn(len(categories))]),
			EventTS:    date.Add(time.Duration(rng.Intn(86_400)) * time.Second),
		})
	}

	return events
}

func (g Generator) buildExchangeRates(rng *rand.Rand, date time.Time) []ExchangeRate {
	rates := make([]ExchangeRate, 0, len(currencies))

	for _, currency := range currencies {
		rates = append(rates, ExchangeRate{
			RateDate:  date,
			Currency:  currency,
			RateToEUR: 0.5 + rng.Float64(),
		})
	}

	return rates
}

func roundCents(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func roundTenth(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}

// CSV, JSONL, Parquet and XLSX writers for the export files.

func writeCustomersCSV(path string, customers []Customer) error {
	rows := make([][]string, 0, len(customers))
	for _, c := range customers {
		rows = append(rows, []string{
			c.CustomerID, c.Name, c.Email, c.Phone, c.Address, c.City, c.Country,
			strconv.FormatBool(c.GDPRConsent), strconv.FormatBool(c.VIPFlag),
			c.JoinedAt.Format(time.RFC3339),
		})
	}

	header := []string{"customer_id", "name", "email", "phone", "address", "city", "country", "gdpr_consent", "vip_flag", "joined_at"}

	return writeCSV(path, header, rows)
}

func writeProductsCSV(path string, products []Product) error {
	rows := make([][]string, 0, len(products))
	for _, p := range products {
		rows = append(rows, []string{
			p.ProductID, p.Name, p.Category, p.SupplierID,
			fmt.Sprintf("%.2f", p.CurrentPrice), p.Currency,
			p.LaunchedAt.Format(time.RFC3339),
		})
	}

	header := []string{"product_id", "name", "category", "supplier_id", "current_price", "currency", "launched_at"}

	return writeCSV(path, header, rows)
}

func writeStoresCSV(path string, stores []Store) error {
	rows := make([][]string, 0, len(stores))
	for _, s := range stores {
		rows = append(rows, []string{
			s.StoreID, s.Name, s.City, s.Country, s.OpenedAt.Format(time.RFC3339),
		})
	}

	header := []string{"store_id", "name", "city", "country", "opened_at"}

	return writeCSV(path, header, rows)
}

func writeSuppliersCSV(path string, suppliers []Supplier) error {
	rows := make([][]string, 0, len(suppliers))
	for _, s := range suppliers {
		rows = append(rows, []string{
			s.SupplierID, s.Name, s.Country, strconv.FormatFloat(s.ReliabilityScore, 'f', -1, 64),
		})
	}

	header := []string{"supplier_id", "name", "country", "reliability_score"}

	return writeCSV(path, header, rows)
}

func writeOrdersCSV(path string, orders []OrderHeader) error {
	rows := make([][]string, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, []string{
			o.OrderID, o.CustomerID, o.StoreID, o.OrderTS.Format(time.RFC3339), o.Currency, o.PaymentMethod,
		})
	}

	header := []string{"order_id", "customer_id", "store_id", "order_ts", "currency", "payment_method"}

	return writeCSV(path, header, rows)
}

func writeOrderLinesCSV(path string, lines []OrderLine) error {
	rows := make([][]string, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, []string{
			l.OrderID, strconv.Itoa(l.LineNumber), l.ProductID, strconv.Itoa(l.Quantity), fmt.Sprintf("%.2f", l.UnitPrice),
		})
	}

	header := []string{"order_id", "line_number", "product_id", "quantity", "unit_price"}

	return writeCSV(path, header, rows)
}

func writeSensorsCSV(path string, readings []SensorReading) error {
	rows := make([][]string, 0, len(readings))
	for _, r := range readings {
		rows = append(rows, []string{
			r.StoreID, r.SensorID, r.ReadingTS.Format(time.RFC3339),
			strconv.FormatFloat(r.TemperatureC, 'f', 1, 64),
			strconv.FormatFloat(r.HumidityPct, 'f', 1, 64),
		})
	}

	header := []string{"store_id", "sensor_id", "reading_ts", "temperature_c", "humidity_pct"}

	return writeCSV(path, header, rows)
}

func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	if err = writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", path, err)
	}
	for _, row := range rows {
		if err = writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row of %s: %w", path, err)
		}
	}

	writer.Flush()
	if err = writer.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}

	return nil
}

func writeParquet[T any](path string, rows []T) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[T](file)
	if _, err = writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows to %s: %w", path, err)
	}
	if err = writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer for %s: %w", path, err)
	}

	return nil
}

func writeClickEventsJSONL(path string, events []ClickEvent) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	for _, event := range events {
		line, marshalErr := json.Marshal(event)
		if marshalErr != nil {
			return fmt.Errorf("failed to marshal click event: %w", marshalErr)
		}
		if _, writeErr := file.Write(append(line, '\n')); writeErr != nil {
			return fmt.Errorf("failed to write %s: %w", path, writeErr)
		}
	}

	return nil
}

func writeExchangeRatesXLSX(path string, rates []ExchangeRate) error {
	workbook := excelize.NewFile()
	defer func() { _ = workbook.Close() }()

	sheet := workbook.GetSheetName(0)

	headers := []string{"rate_date", "currency", "rate_to_eur"}
	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := workbook.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to write header of %s: %w", path, err)
		}
	}

	for rowIdx, rate := range rates {
		values := []any{
			rate.RateDate.Format("2006-01-02"),
			rate.Currency,
			rate.RateToEUR,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err := workbook.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to write row of %s: %w", path, err)
			}
		}
	}

	if err := workbook.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}

	return nil
}
