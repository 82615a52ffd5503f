// Package database opens the relational store shared by the job queue, the
// ingestion job records, and (optionally) the catalog.
//
// SQLite (modernc.org/sqlite) is the embedded default; PostgreSQL is reached
// through the pgx stdlib driver for shared deployments. Callers write queries
// with ? placeholders and go through DB.Exec, DB.ScanRow, and DB.Query, which
// rebind placeholders for the active dialect and retry lock contention with a
// short doubling backoff. Versioned migrations are embedded per dialect and
// recorded in schema_migrations.
package database
