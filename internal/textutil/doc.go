// Package textutil sanitizes user-supplied names for use in object keys and
// filesystem paths.
//
// Input is normalized to NFKD and stripped of combining marks before unsafe
// characters are replaced, so "Crème Brûlée.MP4" and "Creme Brulee.MP4"
// produce the same key segment.
package textutil
