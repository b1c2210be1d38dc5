// ABOUTME: ConversationService is the central layer for message persistence
// ABOUTME: All turns flow through here - history is the source of truth, not a side effect

package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fitversal/coach-gateway/internal/agent"
	"github.com/fitversal/coach-gateway/internal/metadata"
	"github.com/fitversal/coach-gateway/internal/store"
)

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	ListActiveConversations(ctx context.Context) ([]*store.Conversation, error)
	DeleteConversation(ctx context.Context, id string) (bool, error)
	UpdateAgentSessionID(ctx context.Context, conversationID, sessionID string) error
	SetConversationTitle(ctx context.Context, conversationID, title string) error
	CreateMessage(ctx context.Context, msg *store.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error)
}

// TurnRunner defines what the service needs from the agent bridge
type TurnRunner interface {
	RunTurn(ctx context.Context, conversationID, userMessage, resumeSessionID string) (*agent.TurnResult, error)
}

// Service composes the store and the agent bridge into the externally
// callable conversation operations.
type Service struct {
	store  ConversationStore
	bridge TurnRunner
	logger *slog.Logger
}

// New creates a new conversation service
func New(store ConversationStore, bridge TurnRunner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		bridge: bridge,
		logger: logger.With("component", "conversation"),
	}
}

// CreateConversation creates a conversation with the given id (generated
// when empty) and optional title. The agent session handle starts absent
// and is filled in by the first successful turn.
func (s *Service) CreateConversation(ctx context.Context, id string, title *string) (*store.Conversation, error) {
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now()
	conv := &store.Conversation{
		ID:        id,
		Title:     title,
		Status:    store.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	s.logger.Debug("conversation created", "conversation_id", conv.ID)
	return conv, nil
}

// ListConversations returns active conversations, most recently active first.
func (s *Service) ListConversations(ctx context.Context) ([]*store.Conversation, error) {
	return s.store.ListActiveConversations(ctx)
}

// GetConversation returns a single conversation or store.ErrNotFound.
func (s *Service) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// DeleteConversation removes a conversation and all its messages.
// Returns false when the id did not exist.
func (s *Service) DeleteConversation(ctx context.Context, id string) (bool, error) {
	removed, err := s.store.DeleteConversation(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		s.logger.Debug("conversation deleted", "conversation_id", id)
	}
	return removed, nil
}

// SetTitle updates a conversation's title and returns the updated record.
func (s *Service) SetTitle(ctx context.Context, id, title string) (*store.Conversation, error) {
	if err := s.store.SetConversationTitle(ctx, id, title); err != nil {
		return nil, err
	}
	return s.store.GetConversation(ctx, id)
}

// ListMessages returns a conversation's messages oldest-first. The
// conversation must exist.
func (s *Service) ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error) {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// SendMessage runs one full turn: persist the user message, drive the
// agent, persist the assistant reply, and update the session linkage.
//
// Key principle: record first, then act. The user message is saved BEFORE
// the agent is invoked, so a failed turn leaves the user's side of the
// exchange intact for retry.
func (s *Service) SendMessage(ctx context.Context, conversationID, content string) (*store.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	userMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := s.store.CreateMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	s.logger.Debug("user message recorded",
		"conversation_id", conv.ID,
		"message_id", userMsg.ID)

	resumeSessionID := ""
	if conv.AgentSessionID != nil {
		resumeSessionID = *conv.AgentSessionID
	}

	result, err := s.bridge.RunTurn(ctx, conv.ID, content, resumeSessionID)
	if err != nil {
		// User message stays persisted; the one-sided history is the
		// expected degraded state for the caller to retry
		return nil, err
	}

	assistantMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           store.RoleAssistant,
		Content:        result.ResponseText,
		Metadata:       firstMetadata(result, s.logger, conv.ID),
		CreatedAt:      time.Now(),
	}
	if err := s.store.CreateMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}

	if result.SessionID != "" && result.SessionID != resumeSessionID {
		if err := s.store.UpdateAgentSessionID(ctx, conv.ID, result.SessionID); err != nil {
			// The reply is already persisted; losing the session handle
			// only costs agent-side context on the next turn
			s.logger.Error("failed to update agent session id",
				"conversation_id", conv.ID,
				"error", err)
		}
	}

	s.logger.Debug("assistant message recorded",
		"conversation_id", conv.ID,
		"message_id", assistantMsg.ID,
		"has_metadata", assistantMsg.Metadata != nil)

	return assistantMsg, nil
}

// firstMetadata picks the metadata item attached to the stored assistant
// message. The data model allows one metadata object per message; extra
// items are logged rather than silently dropped.
func firstMetadata(result *agent.TurnResult, logger *slog.Logger, conversationID string) metadata.Metadata {
	if len(result.Metadata) == 0 {
		return nil
	}
	if len(result.Metadata) > 1 {
		logger.Warn("turn produced multiple metadata items, storing the first",
			"conversation_id", conversationID,
			"dropped", len(result.Metadata)-1)
	}
	return result.Metadata[0]
}
