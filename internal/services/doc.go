// Package services defines shared utilities consumed by the ingestion pipeline
// and its HTTP surface.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, phase names, worker identities and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper. Kind collapses any error
//     into the caller-facing taxonomy (validation, not_found, conflict,
//     forbidden, transient, fatal) which drives both HTTP status codes and the
//     retry decision in the workflow manager.
//
// Wrap new failures with a marker at the point where the cause is understood;
// callers further up should only add context with fmt.Errorf("...: %w").
package services
