// Package conversation orchestrates the send-message flow.
//
// Service composes the store (durable history) and the agent bridge (one
// turn against the external runtime). The ordering contract is strict:
// the user message is persisted before the agent is invoked, and the
// assistant reply is persisted before the session handle is updated. A
// bridge failure therefore leaves a one-sided conversation - the user's
// message with no reply - which callers resolve by retrying. Retries are
// not deduplicated; each creates a new user message row.
//
// A turn may yield several structured metadata items, but a stored message
// carries at most one. The service keeps the first item and logs the rest.
package conversation
