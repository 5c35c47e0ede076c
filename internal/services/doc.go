// Package services defines shared utilities consumed by the pipeline stage
// handlers and external collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the error kinds persisted on tasks and reported to pollers.
package services
