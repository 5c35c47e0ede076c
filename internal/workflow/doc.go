// Package workflow schedules task execution: a bounded FIFO of submitted
// tasks, a concurrency-limited dispatch loop, per-task watchdog timeouts, and
// cancellation. What happens inside a task belongs to internal/pipeline.
package workflow
