// Package queue is the durable, prioritized work queue behind the ingestion
// workers.
//
// Entries are keyed by job id, so enqueueing the same job twice is a no-op
// that reports the existing position. Dequeue hands out a lease (a fresh uuid
// token with a visibility deadline); a worker that stops heartbeating loses
// the lease and the entry becomes deliverable again, which gives at-least-once
// delivery. Ordering is priority first, then FIFO by insertion sequence.
//
// Nack either requeues with capped, jittered exponential backoff or, when
// retries are disabled or the attempt ceiling is reached, parks the entry as
// dead so the orchestrator can fail the job. Dead entries are kept until
// retention purges them.
package queue
