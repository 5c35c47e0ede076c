// Package api defines the wire types exchanged over the daemon's HTTP
// surface, converters from queue records into those types, and the HTTP
// client the command line tool uses to reach a running daemon.
package api
