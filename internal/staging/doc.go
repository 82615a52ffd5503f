// Package staging manages per-job scratch directories under staging_dir.
//
// Each job downloads and transcodes inside JobDir(root, jobID). Directories
// are removed when a job finishes; CleanStale and CleanOrphaned reclaim what a
// crashed worker left behind.
package staging
