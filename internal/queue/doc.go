// Package queue persists transcription tasks in SQLite and defines the task
// lifecycle state graph. The store is the single source of truth for task
// state; the workflow dispatcher and the HTTP API both read and mutate tasks
// exclusively through it.
package queue
