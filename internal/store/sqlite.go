// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fitversal/coach-gateway/internal/metadata"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// Each connection to :memory: is a separate database, so the
		// pool must never open a second one.
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// sqliteDSN builds the connection string. foreign_keys and journal_mode
// are per-connection settings in SQLite, so they ride in the DSN where
// the driver applies them to every connection the pool opens; a one-off
// PRAGMA exec would only configure whichever connection it happened to
// run on.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(1)"
	}
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT,
			agent_session_id TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,

			CHECK (status IN ('active', 'archived'))
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_status_updated
			ON conversations(status, updated_at);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL,

			CHECK (role IN ('user', 'assistant', 'system'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateConversation inserts a new conversation row. Duplicate ids
// return ErrDuplicateConversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (id, title, agent_session_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	status := conv.Status
	if status == "" {
		status = StatusActive
	}

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.Title,
		conv.AgentSessionID,
		status,
		conv.CreatedAt.UTC().Format(time.RFC3339Nano),
		conv.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateConversation
		}
		return &StorageError{Op: "inserting conversation", Err: err}
	}

	s.logger.Debug("created conversation", "id", conv.ID)
	return nil
}

// GetConversation retrieves a conversation by id.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, title, agent_session_id, status, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`

	row := s.db.QueryRowContext(ctx, query, id)
	return scanConversation(row)
}

// ListActiveConversations returns active conversations, most recently
// updated first.
func (s *SQLiteStore) ListActiveConversations(ctx context.Context) ([]*Conversation, error) {
	query := `
		SELECT id, title, agent_session_id, status, created_at, updated_at
		FROM conversations
		WHERE status = ?
		ORDER BY updated_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, StatusActive)
	if err != nil {
		return nil, &StorageError{Op: "listing conversations", Err: err}
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterating conversations", Err: err}
	}
	return conversations, nil
}

// DeleteConversation removes a conversation and, via cascade, all its
// messages. Returns false without error when the id does not exist.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return false, &StorageError{Op: "deleting conversation", Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, &StorageError{Op: "deleting conversation", Err: err}
	}

	if affected > 0 {
		s.logger.Debug("deleted conversation", "id", id)
	}
	return affected > 0, nil
}

// UpdateAgentSessionID sets the agent's resume handle and bumps updated_at.
func (s *SQLiteStore) UpdateAgentSessionID(ctx context.Context, conversationID, sessionID string) error {
	query := `
		UPDATE conversations
		SET agent_session_id = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, sessionID, time.Now().UTC().Format(time.RFC3339Nano), conversationID)
	if err != nil {
		return &StorageError{Op: "updating agent session id", Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &StorageError{Op: "updating agent session id", Err: err}
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetConversationTitle sets the title and bumps updated_at.
func (s *SQLiteStore) SetConversationTitle(ctx context.Context, conversationID, title string) error {
	query := `
		UPDATE conversations
		SET title = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, title, time.Now().UTC().Format(time.RFC3339Nano), conversationID)
	if err != nil {
		return &StorageError{Op: "setting conversation title", Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &StorageError{Op: "setting conversation title", Err: err}
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateMessage inserts a message row and bumps the parent conversation's
// updated_at in the same transaction. A missing parent conversation fails
// with a StorageError (foreign key violation).
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	encoded, err := metadata.Encode(msg.Metadata)
	if err != nil {
		return &StorageError{Op: "encoding message metadata", Err: err}
	}

	var metadataText *string
	if encoded != nil {
		text := string(encoded)
		metadataText = &text
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "beginning message transaction", Err: err}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.ConversationID,
		msg.Role,
		msg.Content,
		metadataText,
		msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return &StorageError{Op: "inserting message", Err: err}
	}

	_, err = tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`,
		msg.CreatedAt.UTC().Format(time.RFC3339Nano), msg.ConversationID)
	if err != nil {
		return &StorageError{Op: "bumping conversation updated_at", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "committing message", Err: err}
	}

	s.logger.Debug("created message", "id", msg.ID, "conversation_id", msg.ConversationID, "role", msg.Role)
	return nil
}

// ListMessages returns a conversation's messages ordered oldest-first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, role, content, metadata, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, &StorageError{Op: "listing messages", Err: err}
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var (
			msg          Message
			metadataText sql.NullString
			createdAt    string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &metadataText, &createdAt); err != nil {
			return nil, &StorageError{Op: "scanning message", Err: err}
		}

		msg.CreatedAt, err = parseTimestamp(createdAt)
		if err != nil {
			return nil, &StorageError{Op: "parsing message timestamp", Err: err}
		}

		if metadataText.Valid {
			m, err := metadata.Decode([]byte(metadataText.String))
			if err != nil {
				// Corrupt blobs are logged and treated as no metadata
				s.logger.Warn("undecodable message metadata", "message_id", msg.ID, "error", err)
			} else {
				msg.Metadata = m
			}
		}

		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterating messages", Err: err}
	}
	return messages, nil
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var (
		conv      Conversation
		title     sql.NullString
		sessionID sql.NullString
		createdAt string
		updatedAt string
	)

	err := row.Scan(&conv.ID, &title, &sessionID, &conv.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "scanning conversation", Err: err}
	}

	if title.Valid {
		conv.Title = &title.String
	}
	if sessionID.Valid {
		conv.AgentSessionID = &sessionID.String
	}

	if conv.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, &StorageError{Op: "parsing conversation created_at", Err: err}
	}
	if conv.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, &StorageError{Op: "parsing conversation updated_at", Err: err}
	}

	return &conv, nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}

// isUniqueViolation checks if the error is a SQLite UNIQUE constraint violation
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsForeignKeyViolation reports whether the error stems from a foreign key
// constraint failure (e.g. a message referencing a missing conversation).
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
