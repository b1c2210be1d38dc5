// Package agent bridges conversations to the external agent runtime.
//
// The runtime is a black-box collaborator: the bridge hands it one user
// message per turn and consumes an ordered, unbounded stream of typed
// events (assistant text, tool invocations, a terminal result, and future
// kinds that must be tolerated). The Bridge reduces that stream into a
// single TurnResult: joined response text, ordered structured-output
// metadata items, and the last session handle observed.
//
// Two failure modes are deliberately distinct:
//
//   - TransportError: the stream could not be established or read. The
//     turn aborts and the error propagates to the caller.
//   - A result event tagged as an error: a semantic failure inside the
//     runtime. It is logged and the turn still returns whatever text was
//     accumulated, falling back to a fixed apology when there is none.
//
// CLIRuntime is the production Runtime: it spawns the configured agent
// executable once per turn with the system prompt, tool allow-list,
// max-turns ceiling, permission mode, and optional resume handle, and
// parses stream-json events from its stdout.
//
// The stored conversation history and the runtime's own resumed context
// are independent; the bridge never replays persisted messages into the
// prompt, so the two histories can diverge if clients edit stored rows.
package agent
