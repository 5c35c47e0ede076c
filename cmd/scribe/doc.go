// Package main hosts the Scribe CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the daemon's API: submissions, task inspection, cancellation,
// folder monitor control, and health checks. It centralizes configuration
// resolution and API client construction so subcommands can focus on user
// experience instead of wiring.
package main
