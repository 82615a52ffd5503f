// Package daemon coordinates the long-running vodingest process.
//
// It wires configuration, the job store and queue, the object store gateway,
// the workflow manager and the retention janitor into a single lifecycle with
// flock-based locking so only one daemon serves a data directory. The daemon
// owns the HTTP surface: huma operations under /api for uploads, job
// submission, status and cancellation, plus raw echo routes for the local
// upload sink and artifact serving.
//
// Keep orchestration logic here: pipeline phases live in their own packages
// while the daemon focuses on startup, shutdown and request plumbing.
package daemon
