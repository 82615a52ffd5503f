// Package main hosts the vodingest command line: the long-running daemon
// (`serve`), standalone workers (`work`), and operator tooling for jobs, the
// queue, retention, and configuration.
//
// Read-only and maintenance commands open the databases directly, so they
// work whether or not a daemon is running. `status` prefers the daemon's
// HTTP API and falls back to an offline snapshot.
package main
