// Package api defines wire-format types and converters for the HTTP API and
// CLI. It translates ingestion job records and workflow diagnostics into
// transport-friendly DTOs so callers never couple to internal types.
//
// # Key Types
//
// JobView: the caller-visible state of one ingestion job. Lease tokens, worker
// ids and attempt counts stay internal.
//
// WorkflowStatus: worker pool state, queue and job counts, phase health.
//
// DaemonStatus: aggregated runtime information including dependencies.
//
// # Services
//
// JobService answers status queries with ownership checks: a caller sees its
// own jobs, an admin sees every job.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Enums are exposed as lowercase strings.
// Timestamps use RFC3339 with milliseconds.
package api
