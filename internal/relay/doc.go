// Package relay implements the client-facing half of the chat pipeline:
// the WebSocket endpoint, the per-connection session state machine, and
// the broadcast dispatcher that fans persisted messages out to room
// members.
//
// The implementation is organized into specialized files for the HTTP
// server, sessions, dispatching, origin checks, and rate limiting to keep
// the codebase maintainable and testable as the project grows.
package relay
