// Package objectstore fronts the object storage that holds uploads and
// published artifacts.
//
// A Bucket is the raw store: LocalBucket writes under a directory on disk and
// RcloneBucket shells out to the rclone CLI for any remote rclone supports.
// The Gateway layers the ingestion rules on top: per-file-type upload policy,
// key derivation, HMAC-signed time-boxed upload credentials and public URLs.
package objectstore
