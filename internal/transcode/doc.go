// Package transcode turns a fetched source into publishable artifacts.
//
// Videos are packaged as an HLS VOD rendition (index.m3u8 plus MPEG-TS
// segments) with ffmpeg, after ffprobe confirms a playable video stream.
// Posters and avatars are decode-checked and copied under their canonical
// extension. Output lands in a local directory; publishing to the object
// store is the caller's job.
package transcode
