// Package migrations embeds the warehouse schema: the silver-layer
// dimension and fact tables, the audit tables, and the gold schema that
// holds the reporting views. The migration runner in internal/db applies
// them through golang-migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
