// ABOUTME: Bridge executes one conversational turn against the agent runtime
// ABOUTME: Reduces the heterogeneous event stream into text, metadata, and a session handle

package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/fitversal/coach-gateway/internal/metadata"
	"github.com/fitversal/coach-gateway/internal/tools"
)

// fallbackResponse is returned whenever a turn produces no text at all.
// The bridge's response text contract is "never empty".
const fallbackResponse = "Sorry, I couldn't come up with a response. Please try again."

// defaultSystemPrompt is the fixed behavioral prompt for the coaching
// assistant. Deployments can override it via SessionConfig.
const defaultSystemPrompt = `You are a knowledgeable fitness coach helping users plan workouts.
Answer questions about training, exercises, and programming concisely.
When proposing a workout template, call create_template_proposal instead of
describing it in prose. When proposing a single exercise, call
create_exercise_proposal. When you need the user to pick between options,
call present_choices. Use WebSearch and WebFetch to look up exercise science
or equipment details you are unsure about.`

// SessionConfig is the immutable per-deployment configuration for agent
// turns: persona prompt, tool allow-list, and cost ceilings.
type SessionConfig struct {
	SystemPrompt   string
	MaxTurns       int
	PermissionMode string
	AllowedTools   []string
}

// DefaultSessionConfig returns the stock coaching configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SystemPrompt:   defaultSystemPrompt,
		MaxTurns:       10,
		PermissionMode: "bypassPermissions",
		AllowedTools:   tools.AllowedTools(),
	}
}

// TurnResult is the reduced outcome of one turn.
type TurnResult struct {
	// ResponseText is the user-facing reply. Never empty.
	ResponseText string
	// Metadata holds structured tool-call payloads in arrival order.
	// Nil when the turn produced none.
	Metadata []metadata.Metadata
	// SessionID is the last session handle observed, or "" if the runtime
	// never reported one.
	SessionID string
}

// Bridge runs turns against a Runtime and reduces their event streams.
type Bridge struct {
	runtime Runtime
	cfg     SessionConfig
	logger  *slog.Logger
}

// NewBridge creates a bridge. Zero-value config fields fall back to the
// defaults from DefaultSessionConfig.
func NewBridge(runtime Runtime, cfg SessionConfig, logger *slog.Logger) *Bridge {
	defaults := DefaultSessionConfig()
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaults.SystemPrompt
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaults.MaxTurns
	}
	if cfg.PermissionMode == "" {
		cfg.PermissionMode = defaults.PermissionMode
	}
	if len(cfg.AllowedTools) == 0 {
		cfg.AllowedTools = defaults.AllowedTools
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		runtime: runtime,
		cfg:     cfg,
		logger:  logger.With("component", "bridge"),
	}
}

// RunTurn sends one user message to the runtime and consumes its event
// stream in arrival order. resumeSessionID, when non-empty, instructs the
// runtime to resume its own prior context; the bridge never replays stored
// history into the prompt.
//
// Transport failures return a *TransportError. A runtime-reported error
// result is not a failure here: it is logged and the turn still returns
// whatever was accumulated.
func (b *Bridge) RunTurn(ctx context.Context, conversationID, userMessage, resumeSessionID string) (*TurnResult, error) {
	events, err := b.runtime.StartTurn(ctx, &TurnRequest{
		Prompt:          userMessage,
		SystemPrompt:    b.cfg.SystemPrompt,
		AllowedTools:    b.cfg.AllowedTools,
		MaxTurns:        b.cfg.MaxTurns,
		PermissionMode:  b.cfg.PermissionMode,
		ResumeSessionID: resumeSessionID,
	})
	if err != nil {
		return nil, err
	}

	var (
		fragments []string
		items     []metadata.Metadata
		sessionID string
	)

	for ev := range events {
		if ev.SessionID != "" {
			sessionID = ev.SessionID
		}

		switch ev.Kind {
		case EventText:
			if ev.Text != "" {
				fragments = append(fragments, ev.Text)
			}

		case EventToolUse:
			if ev.ToolUse == nil {
				continue
			}
			if !tools.IsStructuredOutput(ev.ToolUse.Name) {
				b.logger.Debug("tool call",
					"conversation_id", conversationID,
					"tool", ev.ToolUse.Name)
				continue
			}
			// Read the call arguments, not the result: the tool's return
			// value is an echo of the same data.
			item, err := tools.Extract(ev.ToolUse.Name, ev.ToolUse.Input)
			if err != nil {
				b.logger.Error("invalid structured-output tool input",
					"conversation_id", conversationID,
					"tool", ev.ToolUse.Name,
					"error", err)
				continue
			}
			items = append(items, item)

		case EventResult:
			if ev.Result == nil {
				continue
			}
			if ev.Result.IsError {
				b.logger.Error("runtime reported turn error",
					"conversation_id", conversationID,
					"category", ev.Result.Subtype,
					"detail", ev.Result.Text)
				continue
			}
			// All output may have come via tool calls; fall back to the
			// result's own summary so the reply is never empty
			if len(fragments) == 0 && ev.Result.Text != "" {
				fragments = append(fragments, ev.Result.Text)
			}

		case EventStreamError:
			b.logger.Error("runtime stream failed",
				"conversation_id", conversationID,
				"error", ev.Err)
			return nil, &TransportError{Op: "reading event stream", Err: ev.Err}

		case EventSystem:
			// session id already captured above

		default:
			b.logger.Debug("ignoring unknown runtime event", "conversation_id", conversationID)
		}
	}

	responseText := strings.TrimSpace(strings.Join(fragments, "\n\n"))
	if responseText == "" {
		responseText = fallbackResponse
	}

	b.logger.Debug("turn complete",
		"conversation_id", conversationID,
		"fragments", len(fragments),
		"metadata_items", len(items),
		"session_id", sessionID)

	return &TurnResult{
		ResponseText: responseText,
		Metadata:     items,
		SessionID:    sessionID,
	}, nil
}
