// Package fetch retrieves the source bytes of an ingestion job into a local
// staging directory.
//
// Uploaded sources are copied out of the object store. Remote URLs on known
// video hosts go through yt-dlp; anything else is a plain HTTP GET. Errors
// carry the services markers the orchestrator uses to pick between retry and
// terminal failure.
package fetch
