// Package adapters provides database adapter implementations for the
// PostgreSQL warehouse stores.
//
// This package implements the adapter pattern to support multiple PostgreSQL
// database libraries: pgx.Pool, sql.DB, and sqlx.DB. All adapters provide
// equivalent functionality through a common DBAdapter interface, allowing
// the stores to work seamlessly with any supported connection type.
//
// Beyond plain query execution, the adapters expose transactions, because
// snapshot change sets and fact appends must be applied atomically.
package adapters
