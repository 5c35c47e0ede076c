// Package pipeline executes the per-task state machine: acquire, validate,
// optional segmentation, transcription, merge, and delivery. The dispatcher
// owns scheduling; this package owns what happens inside one task.
package pipeline
