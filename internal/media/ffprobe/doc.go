// Package ffprobe runs ffprobe against staged sources and decodes its JSON.
//
// The transcoder uses Inspect before encoding to reject files without a video
// stream and to learn the duration that scales ffmpeg progress.
package ffprobe
