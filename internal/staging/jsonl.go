package staging

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

var json = jsoniter.ConfigFastest

const maxJSONLineSize = 1024 * 1024

// ReadFactsJSONL extracts fact rows from a file holding one JSON object per
// line. Blank lines are skipped; a line that is not a JSON object fails the
// read with its line number.
func ReadFactsJSONL(path string, spec FactSpec) (warehouse.FactBatch, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxJSONLineSize)

	var batch warehouse.FactBatch
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var object map[string]any
		if unmarshalErr := json.UnmarshalFromString(line, &object); unmarshalErr != nil {
			return nil, errors.Join(
				warehouse.ErrSchemaViolation,
				fmt.Errorf("%s line %d: %w", path, lineNumber, unmarshalErr),
			)
		}

		attributes, convErr := objectToAttributes(path, lineNumber, object, spec.Columns)
		if convErr != nil {
			return nil, convErr
		}

		record, factErr := attributesToFact(path, lineNumber, attributes, spec)
		if factErr != nil {
			return nil, factErr
		}

		batch = append(batch, record)
	}

	if scanErr := scanner.Err(); scanErr != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, scanErr)
	}

	return batch, nil
}

func objectToAttributes(
	path string,
	lineNumber int,
	object map[string]any,
	columns []ColumnSpec,
) (map[string]string, error) {

	attributes := make(map[string]string, len(columns))

	for _, column := range columns {
		raw := jsonValueToRaw(object[column.Name])
		if raw == "" {
			attributes[column.Name] = ""
			continue
		}

		canonical, err := coerceValue(column.Type, raw)
		if err != nil {
			return nil, errors.Join(
				warehouse.ErrSchemaViolation,
				fmt.Errorf("%s line %d field %q: %w", path, lineNumber, column.Name, err),
			)
		}
		attributes[column.Name] = canonical
	}

	return attributes, nil
}

func jsonValueToRaw(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
