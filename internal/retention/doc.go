// Package retention reclaims space held by finished work: terminal job
// records, dead queue entries and staging directories no live job owns.
//
// A Janitor run is safe to trigger from several places at once. Concurrent
// calls inside one process share a single run, and a lock file keeps two
// processes sharing a data directory from sweeping at the same time.
package retention
