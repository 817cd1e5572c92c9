// Package staging extracts raw lake files into typed warehouse batches.
// Each reader parses one source file, coerces every configured column to its
// declared type, and canonicalizes the value to a stable string form so that
// downstream fingerprints do not flap on formatting noise: integers without
// leading zeros, floats in their shortest form, money with two decimals,
// booleans as true/false, timestamps as RFC3339 in UTC.
package staging

import (
	"time"
)

// Format names a supported source file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

// ColumnType declares how a raw column value is parsed and canonicalized.
type ColumnType string

const (
	ColumnString ColumnType = "string"
	ColumnInt    ColumnType = "int"
	ColumnFloat  ColumnType = "float"
	ColumnMoney  ColumnType = "money"
	ColumnBool   ColumnType = "bool"
	ColumnTime   ColumnType = "time"
)

// ColumnSpec declares one expected source column.
type ColumnSpec struct {
	Name string
	Type ColumnType
}

// EntitySpec tells an entity reader which column carries the natural key and
// which columns to extract. Columns present in the file but absent from the
// spec are ignored; a spec column missing from the file fails the read.
type EntitySpec struct {
	NaturalKeyColumn string
	Columns          []ColumnSpec
}

// FactSpec tells a fact reader how to derive row identity and event time.
// KeyColumns may be empty for watermark streams, whose rows need no key.
// EventTimeColumn may be empty for key-exclusion streams without a source
// timestamp; such rows are stamped with ArrivedAt instead.
type FactSpec struct {
	KeyColumns      []string
	EventTimeColumn string
	Columns         []ColumnSpec
	ArrivedAt       time.Time
}
