// ABOUTME: Event types emitted by the external agent runtime during a turn
// ABOUTME: Decodes the runtime's stream-json wire format into tagged variants

package agent

import (
	"encoding/json"
	"fmt"
)

// EventKind indicates the type of runtime event.
type EventKind int

const (
	EventSystem      EventKind = iota // runtime lifecycle (init, etc.)
	EventText                         // assistant text chunk
	EventToolUse                      // assistant tool invocation
	EventResult                       // terminal result of the turn
	EventStreamError                  // transport failure while reading the stream
	EventUnknown                      // unrecognized event, tolerated and ignored
)

// Event is one item of the runtime's ordered event stream. Any event may
// carry a session identifier; within a turn the last one seen wins.
type Event struct {
	Kind      EventKind
	SessionID string
	Text      string          // for EventText
	ToolUse   *ToolUseEvent   // for EventToolUse
	Result    *ResultEvent    // for EventResult
	Err       error           // for EventStreamError
}

// ToolUseEvent represents a tool invocation by the agent. Input holds the
// call arguments, not the tool's return value.
type ToolUseEvent struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ResultEvent is the terminal result of a turn. IsError marks a semantic
// failure reported by the runtime; it is not a transport failure.
type ResultEvent struct {
	Text    string
	Subtype string
	IsError bool
}

// Wire format of the runtime's stream-json output: one JSON object per line.
type wireEvent struct {
	Type      string       `json:"type"`
	Subtype   string       `json:"subtype"`
	SessionID string       `json:"session_id"`
	Message   *wireMessage `json:"message"`
	Result    string       `json:"result"`
	IsError   bool         `json:"is_error"`
}

type wireMessage struct {
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// decodeEvents parses one wire line into events. An assistant message can
// carry several content blocks, so a single line may yield multiple events.
func decodeEvents(line []byte) ([]*Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(line, &wire); err != nil {
		return nil, fmt.Errorf("decoding runtime event: %w", err)
	}

	switch wire.Type {
	case "system":
		return []*Event{{Kind: EventSystem, SessionID: wire.SessionID}}, nil

	case "assistant":
		if wire.Message == nil {
			return []*Event{{Kind: EventUnknown, SessionID: wire.SessionID}}, nil
		}
		var events []*Event
		for _, block := range wire.Message.Content {
			switch block.Type {
			case "text":
				events = append(events, &Event{
					Kind:      EventText,
					SessionID: wire.SessionID,
					Text:      block.Text,
				})
			case "tool_use":
				events = append(events, &Event{
					Kind:      EventToolUse,
					SessionID: wire.SessionID,
					ToolUse: &ToolUseEvent{
						ID:    block.ID,
						Name:  block.Name,
						Input: block.Input,
					},
				})
			}
		}
		if len(events) == 0 {
			events = append(events, &Event{Kind: EventUnknown, SessionID: wire.SessionID})
		}
		return events, nil

	case "result":
		return []*Event{{
			Kind:      EventResult,
			SessionID: wire.SessionID,
			Result: &ResultEvent{
				Text:    wire.Result,
				Subtype: wire.Subtype,
				IsError: wire.IsError,
			},
		}}, nil

	default:
		// The runtime is a moving target; tolerate future event types
		return []*Event{{Kind: EventUnknown, SessionID: wire.SessionID}}, nil
	}
}
