// Package notifications delivers task outcome emails via a pluggable service.
//
// The default implementation posts JSON messages to an HTTP mail gateway using
// the endpoint configured in config.toml and gracefully degrades to a no-op
// when notifications are disabled. Delivery problems are reported to the
// caller but never change a task's outcome; the dispatcher records them on the
// task instead.
//
// Extend this package if you need alternative transports; all pipeline code
// depends only on the simple Service interface.
package notifications
