// Package config holds the warehouse runtime configuration: the Postgres
// connection, the lake location, the calendar range, and the dimension and
// fact stream definitions that drive the pipeline. Defaults describe the
// retail source systems; a warehouse.yaml and WAREHOUSE_* environment
// variables override them.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Mj37-com/medallion-warehouse-go/internal/staging"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/factload"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/snapshot"
)

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the keyword/value connection string for pgxpool.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// MigrateURL returns the connection URL for the migration runner, which
// addresses the database through the pgx/v5 driver scheme.
func (c DatabaseConfig) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}

	return u.String()
}

// LakeConfig locates the raw file landing zone.
type LakeConfig struct {
	Root string `mapstructure:"root"`
}

// CalendarConfig bounds the date dimension. Both dates are inclusive and use
// the YYYY-MM-DD form.
type CalendarConfig struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

// DimensionStream configures one change-tracked reference data stream.
// Source is resolved against the lake root and may contain a {day} token.
type DimensionStream struct {
	Name            string               `mapstructure:"name"`
	Source          string               `mapstructure:"source"`
	Format          staging.Format       `mapstructure:"format"`
	Table           string               `mapstructure:"table"`
	NaturalKey      string               `mapstructure:"natural_key"`
	Tracked         []string             `mapstructure:"tracked"`
	Columns         []staging.ColumnSpec `mapstructure:"columns"`
	DuplicatePolicy string               `mapstructure:"duplicate_policy"`
}

// EntitySpec returns the staging spec for the stream's source files.
func (s DimensionStream) EntitySpec() staging.EntitySpec {
	return staging.EntitySpec{NaturalKeyColumn: s.NaturalKey, Columns: s.Columns}
}

// FactStream configures one append-only fact stream. KeyColumns feed the
// key-exclusion strategy, EventTimeColumn the watermark strategy; Parquet
// streams decode through typed row structs and ignore Columns.
type FactStream struct {
	Name            string               `mapstructure:"name"`
	Source          string               `mapstructure:"source"`
	Format          staging.Format       `mapstructure:"format"`
	Table           string               `mapstructure:"table"`
	Strategy        string               `mapstructure:"strategy"`
	KeyColumns      []string             `mapstructure:"key_columns"`
	EventTimeColumn string               `mapstructure:"event_time_column"`
	Columns         []staging.ColumnSpec `mapstructure:"columns"`
}

// FactSpec returns the staging spec for the stream's source files, stamping
// rows without a source event time with arrivedAt.
func (s FactStream) FactSpec(arrivedAt time.Time) staging.FactSpec {
	return staging.FactSpec{
		KeyColumns:      s.KeyColumns,
		EventTimeColumn: s.EventTimeColumn,
		Columns:         s.Columns,
		ArrivedAt:       arrivedAt,
	}
}

// Config is the complete warehouse configuration.
type Config struct {
	Database   DatabaseConfig    `mapstructure:"database"`
	Lake       LakeConfig        `mapstructure:"lake"`
	Calendar   CalendarConfig    `mapstructure:"calendar"`
	Dimensions []DimensionStream `mapstructure:"dimensions"`
	Facts      []FactStream      `mapstructure:"facts"`
}

// Validate checks that every stream definition is complete enough to run.
func (c Config) Validate() error {
	for _, dim := range c.Dimensions {
		if dim.Name == "" || dim.Table == "" || dim.Source == "" {
			return fmt.Errorf("dimension stream %q: name, table and source are required", dim.Name)
		}
		if len(dim.Tracked) == 0 {
			return fmt.Errorf("dimension stream %q: at least one tracked attribute is required", dim.Name)
		}
		if !knownFormat(dim.Format) {
			return fmt.Errorf("dimension stream %q: unknown format %q", dim.Name, dim.Format)
		}
		if dim.Format != staging.FormatParquet && !containsColumn(dim.Columns, dim.NaturalKey) {
			return fmt.Errorf("dimension stream %q: natural key %q is not among its columns", dim.Name, dim.NaturalKey)
		}
		if dim.DuplicatePolicy != "" {
			if _, err := snapshot.ParseDuplicatePolicy(dim.DuplicatePolicy); err != nil {
				return fmt.Errorf("dimension stream %q: %w", dim.Name, err)
			}
		}
	}

	for _, fact := range c.Facts {
		if fact.Name == "" || fact.Table == "" || fact.Source == "" {
			return fmt.Errorf("fact stream %q: name, table and source are required", fact.Name)
		}
		if !knownFormat(fact.Format) {
			return fmt.Errorf("fact stream %q: unknown format %q", fact.Name, fact.Format)
		}

		strategy, err := factload.ParseStrategy(fact.Strategy)
		if err != nil {
			return fmt.Errorf("fact stream %q: %w", fact.Name, err)
		}
		if fact.Format == staging.FormatParquet {
			continue
		}
		if strategy == factload.KeyExclusion && len(fact.KeyColumns) == 0 {
			return fmt.Errorf("fact stream %q: key exclusion requires key columns", fact.Name)
		}
		if strategy == factload.Watermark && fact.EventTimeColumn == "" {
			return fmt.Errorf("fact stream %q: watermark requires an event time column", fact.Name)
		}
	}

	return nil
}

func knownFormat(format staging.Format) bool {
	switch format {
	case staging.FormatCSV, staging.FormatXLSX, staging.FormatJSONL, staging.FormatParquet:
		return true
	default:
		return false
	}
}

func containsColumn(columns []staging.ColumnSpec, name string) bool {
	for _, column := range columns {
		if column.Name == name {
			return true
		}
	}

	return false
}
