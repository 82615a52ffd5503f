// Package jobstore persists ingestion job records.
//
// Every status change goes through UpdateStatus or Claim, both of which are
// compare-and-swap updates on the expected current status and, for workers,
// the lease token stamped on the row at claim time. A stale writer that lost
// its lease receives a conflict and must stop without further writes.
// Progress only ever moves up; completion forces it to 100 and requires a
// result url, while failure requires an error message.
package jobstore
