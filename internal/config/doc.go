// Package config loads, validates, and normalizes Scribe configuration.
//
// Configuration is read from a TOML file (default ~/.config/scribe/config.toml
// or ./scribe.toml), overlaid on built-in defaults, with secrets overridable
// via SCRIBE_* environment variables. All path fields are expanded to absolute
// paths during load so downstream components never handle ~ or relative paths.
package config
