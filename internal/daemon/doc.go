// Package daemon hosts the long-running scribe process. It owns the task
// dispatcher, the optional folder monitor, and the HTTP API, and uses a lock
// file to guarantee a single instance per state directory.
package daemon
