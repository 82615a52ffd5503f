// Package workflow owns the ingestion job lifecycle.
//
// The Manager accepts submissions (validate, persist as pending, enqueue) and
// runs a pool of workers that lease queue entries and drive each job through
// downloading and processing to completed or failed. Every status write is a
// compare-and-swap fenced on the worker's lease token, so a worker whose lease
// lapsed can never overwrite a newer holder's progress; it abandons the job
// silently instead.
//
// Failures are classified through services.Kind: transient errors nack the
// queue entry for a backed-off retry and leave the job status alone, while
// fatal errors, exhausted retries and cancellations mark the job failed and
// clean up partially published artifacts. A catalog write that fails after
// the artifact was published keeps the artifact so an operator can reconcile.
//
// Cancellation is advisory once a worker holds the job: the flag is checked
// between phases. Phase timeouts feed the retry policy like any other
// transient failure.
package workflow
