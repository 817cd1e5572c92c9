// Package postgresengine provides the PostgreSQL implementations of the
// snapshot and fact store contracts.
//
// Both stores build their SQL with goqu and execute it through a small
// database adapter, so they work with pgxpool.Pool, database/sql, and
// sqlx.DB connections alike. Writes run in a single transaction per batch
// run and rely on guarded statements plus the schema's partial unique
// indexes to defend the history invariants under concurrent runs: a guarded
// UPDATE that affects an unexpected number of rows or an INSERT that trips
// a unique index aborts the whole run.
//
// Table layout expectations are documented on the store types; the
// migrations shipped with cmd/warehouse create matching tables.
package postgresengine
