// ABOUTME: Store interface and data types for coach-gateway persistence
// ABOUTME: Defines Conversation, Message structs and the Store interface

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitversal/coach-gateway/internal/metadata"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when creating a conversation whose id already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// StorageError wraps constraint violations and I/O failures from the
// underlying database engine.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Conversation status values
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// Message role values
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation is a durable chat thread between a user and the coach agent.
// AgentSessionID is the opaque resume handle issued by the external agent
// runtime; nil until the first successful turn.
type Conversation struct {
	ID             string
	Title          *string
	AgentSessionID *string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Message is a single stored message within a conversation. Messages are
// immutable after creation. Metadata is nil for messages without a
// structured proposal or choice payload.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	Metadata       metadata.Metadata
	CreatedAt      time.Time
}

// Store defines the interface for conversation and message persistence
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListActiveConversations(ctx context.Context) ([]*Conversation, error)
	DeleteConversation(ctx context.Context, id string) (bool, error)
	UpdateAgentSessionID(ctx context.Context, conversationID, sessionID string) error
	SetConversationTitle(ctx context.Context, conversationID, title string) error

	// Messages
	CreateMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// Close releases any resources held by the store
	Close() error
}
