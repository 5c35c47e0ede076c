// Package segment plans chunk boundaries for long sources and merges
// per-chunk transcriptions back into a single timeline.
package segment
