// ABOUTME: HTTP API handlers for the conversation endpoints
// ABOUTME: Maps service errors to status codes and shapes JSON responses

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fitversal/coach-gateway/internal/agent"
	"github.com/fitversal/coach-gateway/internal/metadata"
	"github.com/fitversal/coach-gateway/internal/store"
)

// CreateConversationRequest is the JSON request body for POST /conversations.
type CreateConversationRequest struct {
	ID    string  `json:"id,omitempty"`
	Title *string `json:"title,omitempty"`
}

// UpdateConversationRequest is the JSON request body for PATCH /conversations/{id}.
type UpdateConversationRequest struct {
	Title *string `json:"title"`
}

// SendMessageRequest is the JSON request body for POST /conversations/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ConversationResponse is the JSON shape for a conversation.
type ConversationResponse struct {
	ID             string  `json:"id"`
	Title          *string `json:"title"`
	AgentSessionID *string `json:"agent_session_id"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// ListConversationsResponse is the JSON response for GET /conversations.
type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

// MessageResponse is the JSON shape for a message. Metadata is the encoded
// structured payload, present only when the message carries one.
type MessageResponse struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

// ListMessagesResponse is the JSON response for GET /conversations/{id}/messages.
type ListMessagesResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []MessageResponse `json:"messages"`
}

func conversationToResponse(conv *store.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:             conv.ID,
		Title:          conv.Title,
		AgentSessionID: conv.AgentSessionID,
		Status:         string(conv.Status),
		CreatedAt:      conv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      conv.UpdatedAt.Format(time.RFC3339),
	}
}

func (g *Gateway) messageToResponse(msg *store.Message) MessageResponse {
	resp := MessageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt.Format(time.RFC3339),
	}
	if msg.Metadata != nil {
		encoded, err := metadata.Encode(msg.Metadata)
		if err != nil {
			g.logger.Error("failed to encode message metadata",
				"message_id", msg.ID,
				"error", err)
		} else {
			resp.Metadata = encoded
		}
	}
	return resp
}

// handleConversations handles GET and POST /conversations.
func (g *Gateway) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleListConversations(w, r)
	case http.MethodPost:
		g.handleCreateConversation(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleConversationRoutes dispatches /conversations/{id} and
// /conversations/{id}/messages by path and method.
func (g *Gateway) handleConversationRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/conversations/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		g.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}
	conversationID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			g.handleGetConversation(w, r, conversationID)
		case http.MethodDelete:
			g.handleDeleteConversation(w, r, conversationID)
		case http.MethodPatch:
			g.handleUpdateConversation(w, r, conversationID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "messages":
		switch r.Method {
		case http.MethodGet:
			g.handleListMessages(w, r, conversationID)
		case http.MethodPost:
			g.handleSendMessage(w, r, conversationID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		g.sendJSONError(w, http.StatusNotFound, "not found")
	}
}

// handleListConversations handles GET /conversations.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := g.conversation.ListConversations(r.Context())
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	response := ListConversationsResponse{
		Conversations: make([]ConversationResponse, len(conversations)),
	}
	for i, conv := range conversations {
		response.Conversations[i] = conversationToResponse(conv)
	}

	g.writeJSON(w, http.StatusOK, response)
}

// handleCreateConversation handles POST /conversations.
func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	conv, err := g.conversation.CreateConversation(r.Context(), req.ID, req.Title)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateConversation) {
			g.sendJSONError(w, http.StatusConflict, "conversation already exists")
			return
		}
		g.sendServiceError(w, err)
		return
	}

	g.writeJSON(w, http.StatusCreated, conversationToResponse(conv))
}

// handleGetConversation handles GET /conversations/{id}.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request, id string) {
	conv, err := g.conversation.GetConversation(r.Context(), id)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, conversationToResponse(conv))
}

// handleDeleteConversation handles DELETE /conversations/{id}.
// Deleting a missing conversation returns 404; deletion itself is idempotent
// at the store level.
func (g *Gateway) handleDeleteConversation(w http.ResponseWriter, r *http.Request, id string) {
	removed, err := g.conversation.DeleteConversation(r.Context(), id)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	if !removed {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateConversation handles PATCH /conversations/{id}.
func (g *Gateway) handleUpdateConversation(w http.ResponseWriter, r *http.Request, id string) {
	var req UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Title == nil {
		g.sendJSONError(w, http.StatusBadRequest, "title is required")
		return
	}

	conv, err := g.conversation.SetTitle(r.Context(), id, *req.Title)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, conversationToResponse(conv))
}

// handleListMessages handles GET /conversations/{id}/messages.
func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request, id string) {
	messages, err := g.conversation.ListMessages(r.Context(), id)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	response := ListMessagesResponse{
		ConversationID: id,
		Messages:       make([]MessageResponse, len(messages)),
	}
	for i, msg := range messages {
		response.Messages[i] = g.messageToResponse(msg)
	}

	g.writeJSON(w, http.StatusOK, response)
}

// handleSendMessage handles POST /conversations/{id}/messages.
// Runs a full agent turn and returns the persisted assistant message.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request, id string) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}

	msg, err := g.conversation.SendMessage(r.Context(), id, req.Content)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, g.messageToResponse(msg))
}

// sendServiceError maps service-layer errors to HTTP status codes:
// missing records are 404, agent transport failures are 502, and
// everything else (including storage failures) is 500.
func (g *Gateway) sendServiceError(w http.ResponseWriter, err error) {
	var transportErr *agent.TransportError
	switch {
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
	case errors.As(err, &transportErr):
		g.logger.Error("agent transport failure", "error", err)
		g.sendJSONError(w, http.StatusBadGateway, "agent unavailable")
	default:
		g.logger.Error("internal error", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON writes a JSON response with the given status code.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
