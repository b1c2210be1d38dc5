// Package store provides persistent storage for the gateway using SQLite.
//
// # Data Models
//
//   - Conversation: Durable chat thread with an optional agent resume handle
//   - Message: Immutable message rows ordered by created_at within a conversation
//
// Assistant messages may carry a metadata payload (see the metadata package),
// stored as a serialized JSON blob and decoded back into the tagged union on
// read. Unknown metadata types decode to nil rather than failing.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Deleting a conversation cascades to its messages via the foreign key.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrDuplicateConversation: Conversation id already exists
//   - StorageError: Constraint violation or I/O failure in the engine
//
// All methods accept context.Context for cancellation support. Each
// operation is a single atomic statement, except message insertion which
// also bumps the parent conversation's updated_at in one transaction.
//
// Use NewSQLiteStore(":memory:") for tests.
package store
