// Package preflight provides readiness checks for the filesystem paths and
// external services vodingest depends on.
//
// The daemon runs RunAll before starting and refuses to start when a check
// fails. Status reports include the same results.
package preflight
