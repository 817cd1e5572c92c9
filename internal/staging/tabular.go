package staging

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

var (
	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	timeLayouts = []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.000",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"2006/01/02",
		"01-02-06", // excelize's default display form for date cells
	}
)

// ReadEntitiesCSV extracts dimension records from a CSV file with a header
// row.
func ReadEntitiesCSV(path string, spec EntitySpec) (warehouse.EntityBatch, error) {
	table, err := loadCSVTable(path)
	if err != nil {
		return nil, err
	}

	return tableToEntities(path, table, spec)
}

// ReadEntitiesXLSX extracts dimension records from the first sheet of an
// XLSX workbook.
func ReadEntitiesXLSX(path string, spec EntitySpec) (warehouse.EntityBatch, error) {
	table, err := loadXLSXTable(path)
	if err != nil {
		return nil, err
	}

	return tableToEntities(path, table, spec)
}

// ReadFactsCSV extracts fact rows from a CSV file with a header row.
func ReadFactsCSV(path string, spec FactSpec) (warehouse.FactBatch, error) {
	table, err := loadCSVTable(path)
	if err != nil {
		return nil, err
	}

	return tableToFacts(path, table, spec)
}

// ReadFactsXLSX extracts fact rows from the first sheet of an XLSX workbook.
func ReadFactsXLSX(path string, spec FactSpec) (warehouse.FactBatch, error) {
	table, err := loadXLSXTable(path)
	if err != nil {
		return nil, err
	}

	return tableToFacts(path, table, spec)
}

type table struct {
	headers []string
	rows    [][]string
}

func loadCSVTable(path string) (table, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return table{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, peekErr := reader.Peek(len(byteOrderMark)); peekErr == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return table{}, fmt.Errorf("failed to parse csv %s: %w", path, err)
	}

	return normalizeTable(path, records)
}

func loadXLSXTable(path string) (table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return table{}, fmt.Errorf("failed to open xlsx %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return table{}, fmt.Errorf("xlsx %s has no sheets", path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return table{}, fmt.Errorf("failed to read rows from xlsx %s: %w", path, err)
	}

	return normalizeTable(path, rows)
}

func normalizeTable(path string, records [][]string) (table, error) {
	var headers []string
	var dataRows [][]string

	for _, row := range records {
		if isEmptyRow(row) {
			continue
		}
		if headers == nil {
			headers = make([]string, len(row))
			for i, cell := range row {
				headers[i] = strings.TrimSpace(cell)
			}
			continue
		}
		dataRows = append(dataRows, row)
	}

	if headers == nil {
		return table{}, fmt.Errorf("no header row found in %s", path)
	}

	return table{headers: headers, rows: dataRows}, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}

	return true
}

func tableToEntities(path string, t table, spec EntitySpec) (warehouse.EntityBatch, error) {
	columnIdx, err := resolveColumns(path, t.headers, spec.Columns)
	if err != nil {
		return nil, err
	}
	if _, ok := columnIdx[spec.NaturalKeyColumn]; !ok {
		return nil, errors.Join(
			warehouse.ErrSchemaViolation,
			fmt.Errorf("natural key column %q is not among the configured columns of %s", spec.NaturalKeyColumn, path),
		)
	}

	batch := make(warehouse.EntityBatch, 0, len(t.rows))

	for rowIdx, row := range t.rows {
		attributes, convErr := rowToAttributes(path, rowIdx, row, spec.Columns, columnIdx)
		if convErr != nil {
			return nil, convErr
		}

		record, buildErr := warehouse.BuildEntityRecord(attributes[spec.NaturalKeyColumn], attributes)
		if buildErr != nil {
			return nil, errors.Join(buildErr, fmt.Errorf("%s row %d", path, rowNumber(rowIdx)))
		}

		batch = append(batch, record)
	}

	return batch, nil
}

func tableToFacts(path string, t table, spec FactSpec) (warehouse.FactBatch, error) {
	columnIdx, err := resolveColumns(path, t.headers, spec.Columns)
	if err != nil {
		return nil, err
	}

	batch := make(warehouse.FactBatch, 0, len(t.rows))

	for rowIdx, row := range t.rows {
		attributes, convErr := rowToAttributes(path, rowIdx, row, spec.Columns, columnIdx)
		if convErr != nil {
			return nil, convErr
		}

		record, factErr := attributesToFact(path, rowNumber(rowIdx), attributes, spec)
		if factErr != nil {
			return nil, factErr
		}

		batch = append(batch, record)
	}

	return batch, nil
}

// resolveColumns maps every configured column to its header position.
func resolveColumns(path string, headers []string, columns []ColumnSpec) (map[string]int, error) {
	headerIdx := make(map[string]int, len(headers))
	for i, header := range headers {
		headerIdx[header] = i
	}

	columnIdx := make(map[string]int, len(columns))
	for _, column := range columns {
		idx, ok := headerIdx[column.Name]
		if !ok {
			return nil, errors.Join(
				warehouse.ErrSchemaViolation,
				fmt.Errorf("column %q is missing from %s", column.Name, path),
			)
		}
		columnIdx[column.Name] = idx
	}

	return columnIdx, nil
}

func rowToAttributes(
	path string,
	rowIdx int,
	row []string,
	columns []ColumnSpec,
	columnIdx map[string]int,
) (map[string]string, error) {

	attributes := make(map[string]string, len(columns))

	for _, column := range columns {
		idx := columnIdx[column.Name]

		raw := ""
		if idx < len(row) {
			raw = strings.TrimSpace(row[idx])
		}
		if raw == "" {
			attributes[column.Name] = ""
			continue
		}

		canonical, err := coerceValue(column.Type, raw)
		if err != nil {
			return nil, errors.Join(
				warehouse.ErrSchemaViolation,
				fmt.Errorf("%s row %d column %q: %w", path, rowNumber(rowIdx), column.Name, err),
			)
		}
		attributes[column.Name] = canonical
	}

	return attributes, nil
}

func attributesToFact(path string, rowNumber int, attributes map[string]string, spec FactSpec) (warehouse.FactRecord, error) {
	key := ""
	if len(spec.KeyColumns) > 0 {
		parts := make([]string, 0, len(spec.KeyColumns))
		for _, keyColumn := range spec.KeyColumns {
			parts = append(parts, attributes[keyColumn])
		}
		key = warehouse.FormatKeyParts(parts...)
	}

	eventTime := spec.ArrivedAt
	if spec.EventTimeColumn != "" {
		canonical := attributes[spec.EventTimeColumn]
		if canonical == "" {
			return warehouse.FactRecord{}, errors.Join(
				warehouse.ErrSchemaViolation,
				fmt.Errorf("%s row %d: event time column %q is empty", path, rowNumber, spec.EventTimeColumn),
			)
		}

		parsed, err := time.Parse(time.RFC3339, canonical)
		if err != nil {
			return warehouse.FactRecord{}, errors.Join(
				warehouse.ErrSchemaViolation,
				fmt.Errorf("%s row %d: event time column %q: %w", path, rowNumber, spec.EventTimeColumn, err),
			)
		}
		eventTime = parsed
	}

	return warehouse.BuildFactRecord(key, eventTime, attributes), nil
}

// rowNumber converts a data-row index into the 1-based file row number,
// counting the header row.
func rowNumber(rowIdx int) int {
	return rowIdx + 2
}

func coerceValue(columnType ColumnType, raw string) (string, error) {
	switch columnType {
	case ColumnInt:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// Allow float representations that convert losslessly.
			f, floatErr := strconv.ParseFloat(raw, 64)
			if floatErr != nil || f != float64(int64(f)) {
				return "", fmt.Errorf("unable to coerce %q to integer", raw)
			}
			i = int64(f)
		}
		return strconv.FormatInt(i, 10), nil

	case ColumnFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", fmt.Errorf("unable to coerce %q to float", raw)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil

	case ColumnMoney:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", fmt.Errorf("unable to coerce %q to money", raw)
		}
		return fmt.Sprintf("%.2f", f), nil

	case ColumnBool:
		switch strings.ToLower(raw) {
		case "1", "yes", "y":
			return "true", nil
		case "0", "no", "n":
			return "false", nil
		}
		b, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return "", fmt.Errorf("unable to coerce %q to boolean", raw)
		}
		return strconv.FormatBool(b), nil

	case ColumnTime:
		ts, err := parseTimestamp(raw)
		if err != nil {
			return "", fmt.Errorf("unable to coerce %q to timestamp: %w", raw, err)
		}
		return ts.UTC().Format(time.RFC3339), nil

	default:
		return raw, nil
	}
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}

	return time.Time{}, errors.New("unrecognized timestamp format")
}
