// Package ingest defines the ingestion job model shared by the queue, the job
// record store, the orchestrator, and the HTTP layer.
//
// Status is an explicit enum with an exhaustive transition table
// (CanTransition); terminal statuses accept no further edges. Source is a
// tagged union of an uploaded object key or a remote URL. Policy is the
// immutable per-job snapshot of size ceiling and attempt ceiling taken at
// submission time.
package ingest
