// Package language normalizes caller-supplied language hints into the codes
// the transcription backend understands.
package language
