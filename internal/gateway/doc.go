// Package gateway wires the coach-gateway components into a running server.
//
// # Architecture
//
// The Gateway owns three pieces:
//
//   - SQLite store: durable conversation and message history
//   - Agent bridge: runs one agent turn per user message
//   - HTTP server: the conversation API consumed by mobile clients
//
// # HTTP API
//
// Conversation endpoints:
//
//	GET    /conversations                  List active conversations
//	POST   /conversations                  Create a conversation
//	GET    /conversations/{id}             Get a conversation
//	PATCH  /conversations/{id}             Update the title
//	DELETE /conversations/{id}             Delete with all messages
//	GET    /conversations/{id}/messages    List messages oldest-first
//	POST   /conversations/{id}/messages    Send a message, returns the reply
//
// Health endpoints (never behind auth):
//
//	GET /health        Liveness
//	GET /health/ready  Store reachability
//
// # Error Mapping
//
// Missing conversations map to 404. Agent transport failures (the runtime
// process could not be started or its stream broke) map to 502. Storage
// and other internal failures map to 500. A semantically failed agent turn
// is not an HTTP error; the bridge absorbs it into a degraded reply.
//
// # Lifecycle
//
// Run blocks until the context is canceled or the server fails, then
// performs a graceful shutdown with a 5 second deadline.
package gateway
