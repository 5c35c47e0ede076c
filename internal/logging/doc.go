// Package logging builds the slog loggers used throughout Scribe and defines
// the standardized attribute helpers and field names shared by every
// component, so task IDs and stage names are queryable with consistent keys
// in both console and JSON output.
package logging
