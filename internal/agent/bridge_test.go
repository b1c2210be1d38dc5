// ABOUTME: Tests for the Bridge event-stream reduction
// ABOUTME: Verifies text accumulation, metadata extraction, session tracking, and failure modes

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitversal/coach-gateway/internal/metadata"
)

// mockRuntime implements Runtime with a scripted event stream
type mockRuntime struct {
	events   []*Event
	startErr error
	lastReq  *TurnRequest
}

func (m *mockRuntime) StartTurn(ctx context.Context, req *TurnRequest) (<-chan *Event, error) {
	m.lastReq = req
	if m.startErr != nil {
		return nil, m.startErr
	}
	ch := make(chan *Event, len(m.events))
	for _, ev := range m.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func TestRunTurn_JoinsTextFragments(t *testing.T) {
	rt := &mockRuntime{events: []*Event{
		{Kind: EventText, Text: "First thought."},
		{Kind: EventText, Text: "Second thought."},
		{Kind: EventResult, Result: &ResultEvent{Text: "full", Subtype: "success"}},
	}}
	b := NewBridge(rt, SessionConfig{}, nil)

	result, err := b.RunTurn(context.Background(), "c1", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "First thought.\n\nSecond thought.", result.ResponseText)
	assert.Nil(t, result.Metadata)
}

func TestRunTurn_PassesSessionConfigToRuntime(t *testing.T) {
	rt := &mockRuntime{events: []*Event{
		{Kind: EventResult, Result: &ResultEvent{Text: "ok"}},
	}}
	b := NewBridge(rt, SessionConfig{}, nil)

	_, err := b.RunTurn(context.Background(), "c1", "hi", "sess-1")
	require.NoError(t, err)

	require.NotNil(t, rt.lastReq)
	assert.Equal(t, "hi", rt.lastReq.Prompt)
	assert.Equal(t, "sess-1", rt.lastReq.ResumeSessionID)
	assert.Equal(t, 10, rt.lastReq.MaxTurns)
	assert.Equal(t, "bypassPermissions", rt.lastReq.PermissionMode)
	assert.NotEmpty(t, rt.lastReq.SystemPrompt)
	assert.Contains(t, rt.lastReq.AllowedTools, "present_choices")
	assert.Contains(t, rt.lastReq.AllowedTools, "WebSearch")
}

func TestRunTurn_LastSessionIDWins(t *testing.T) {
	rt := &mockRuntime{events: []*Event{
		{Kind: EventSystem, SessionID: "s1"},
		{Kind: EventText, Text: "hello", SessionID: "s1"},
		{Kind: EventResult, SessionID: "s2", Result: &ResultEvent{Text: "hello"}},
	}}
	b := NewBridge(rt, SessionConfig{}, nil)

	result, err := b.RunTurn(context.Background(), "c1", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "s2", result.SessionID)
}

func TestRunTurn_NoSessionID(t *testing.T) {
	rt := &mockRuntime{events: []*Event{
		{Kind: EventText, Text: "hello"},
		{Kind: EventResult, Result: &ResultEvent{Text: "hello"}},
	}}
	b := NewBridge(rt, SessionConfig{}, nil)

	result, err := b.RunTurn(context.Background(), "c1", "hi", "")
	require.NoError(t, err)
	assert.Empty(t, result.SessionID)
}

func TestRunTurn_ExtractsStructuredToolCalls(t *testing.T) {
	rt := &mockRuntime{events: []*Event{
		{Kind: EventToolUse, ToolUse: &ToolUseEvent{
			ID:    "t1",
			Name:  "present_choices",
			Input: json.RawMessage(`{"question":"Goal?","options":[{"id":"a","label":"Strength"}]}`),
		}},
		{Kind: EventResult, Result: &ResultEvent{Text: "Pick one"}},
	}}
	b := NewBridge(rt, SessionConfig{}, nil)

	result, err := b.RunTurn(context.Background(), "c1", "hi", "")
	require.NoError(t, err)

	require.Len(t, result.Metadata, 1)
	mc, ok := result.Metadata[0].(*metadata.MultipleChoice)
	require.True(t, ok)
	assert.Equal(t, metadata.TypeMultipleChoice, mc.Type)
	assert.Equal(t, "Goal?", mc.Question)
	require.Len(t, mc.Options, 1)
	assert.Equal(t, "a", mc.Options[0].ID)
	assert.Equal(t, "Strength", mc.Options[0].Label)
}

func TestRunTurn_MetadataPreservesArrivalOrder(t *testing.T) {
	rt := &mockRuntime{events: []*Event{
		{Kind: EventToolUse, ToolUse: &ToolUseEvent{
			Name:  "create_exercise_proposal",
			Input: json.RawMessage(`{"name":"Squat","muscleGroup":"Legs"}`),
		}},
		{Kind: EventToolUse, ToolUse: &ToolUseEvent{
			Name:  "create_exercise_proposal",
			Input: json.RawMessage(`{"name":"Lunge","muscleGroup":"Legs"}`),
		}},
		{Kind: EventResult, Result: &ResultEvent{Text: "Two ideas"}},
	}}
	b := NewBridge(rt, SessionConfig{}, nil)

	result, err := b.RunTurn(context.Background(), "c1", "hi", "")
	require.NoError(t, err)

	require.Len(t, result.Metadata, 2)
	assert.Equal(t, "Squat", result.Metadata[0].(*metadata.ExerciseProposal).Name)
	assert.Equal(t, "Lunge", result.Metadata[1].(*metadata.ExerciseProposal).Name)
}

func TestRunTurn_NonStructuredToolsIgnored(t *testing.T) {
	rt := &mockRuntime{events: []*Event{
		{Kind: EventToolUse, ToolUse: &ToolUseEvent{Name: "WebSearch", Input: json.RawMessage(`{"query":"RDL form"}`)}},
		{Kind: EventText, Text: "Found it."},
		{Kind: EventResult, Result: &ResultEvent{Text: "Found it."}},
	}}
	b := NewBridge(rt, SessionConfig{}, nil)

	result, err := b.RunTurn(context.Background(), "c1", "hi", "")
	require.NoError(t, err)
	assert.Nil(t, result.Metadata)
	assert.Equal(t, "Found it.", result.ResponseText)
}

func TestRunTurn_InvalidToolInputSkippedNotFatal(t *testing.T) {
	rt := &mockRuntime{events: []*Event{
		{Kind: EventToolUse, ToolUse: &ToolUseEvent{Name: "present_choices", Input: json.RawMessage(`{"options":[]}`)}},
		{Kind: EventText, Text: "Anyway."},
		{Kind: EventResult, Result: &ResultEvent{Text: "Anyway."}},
	}}
	b := NewBridge(rt, SessionConfig{}, nil)

	result, err := b.RunTurn(context.Background(), "c1", "hi", "")
	require.NoError(t, err)
	assert.Nil(t, result.Metadata)
	assert.Equal(t, "Anyway.", result.ResponseText)
}

func TestRunTurn_ResultTextFallbackWhenNoStreamingText(t *testing.T) {
	rt := &mockRuntime{events: []*Event{
		{Kind: EventToolUse, ToolUse: &ToolUseEvent{
			Name:  "create_exercise_proposal",
			Input: json.RawMessage(`{"name":"Squat","muscleGroup":"Legs"}`),
		}},
		{Kind: EventResult, Result: &ResultEvent{Text: "Proposed a squat."}},
	}}
	b := NewBridge(rt, SessionConfig{}, nil)

	result, err := b.RunTurn(context.Background(), "c1", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "Proposed a squat.", result.ResponseText)
}

func TestRunTurn_ResponseTextNeverEmpty(t *testing.T) {
	cases := []struct {
		name   string
		events []*Event
	}{
		{"no events at all", nil},
		{"empty result text", []*Event{{Kind: EventResult, Result: &ResultEvent{Text: ""}}}},
		{"whitespace fragments", []*Event{
			{Kind: EventText, Text: "  \n"},
			{Kind: EventResult, Result: &ResultEvent{}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := &mockRuntime{events: tc.events}
			b := NewBridge(rt, SessionConfig{}, nil)

			result, err := b.RunTurn(context.Background(), "c1", "hi", "")
			require.NoError(t, err)
			assert.Equal(t, fallbackResponse, result.ResponseText)
		})
	}
}

func TestRunTurn_ErrorResultKeepsBufferedText(t *testing.T) {
	rt := &mockRuntime{events: []*Event{
		{Kind: EventText, Text: "Partial answer."},
		{Kind: EventResult, Result: &ResultEvent{Subtype: "error_max_turns", IsError: true, Text: "turn limit"}},
	}}
	b := NewBridge(rt, SessionConfig{}, nil)

	result, err := b.RunTurn(context.Background(), "c1", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "Partial answer.", result.ResponseText)
}

func TestRunTurn_ErrorResultWithNoTextFallsBack(t *testing.T) {
	rt := &mockRuntime{events: []*Event{
		{Kind: EventResult, Result: &ResultEvent{Subtype: "error_during_execution", IsError: true, Text: "boom"}},
	}}
	b := NewBridge(rt, SessionConfig{}, nil)

	result, err := b.RunTurn(context.Background(), "c1", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, fallbackResponse, result.ResponseText)
}

func TestRunTurn_StartFailurePropagates(t *testing.T) {
	rt := &mockRuntime{startErr: &TransportError{Op: "starting runtime process", Err: errors.New("no such file")}}
	b := NewBridge(rt, SessionConfig{}, nil)

	_, err := b.RunTurn(context.Background(), "c1", "hi", "")
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
}

func TestRunTurn_StreamErrorPropagates(t *testing.T) {
	rt := &mockRuntime{events: []*Event{
		{Kind: EventText, Text: "some text"},
		{Kind: EventStreamError, Err: errors.New("pipe closed")},
	}}
	b := NewBridge(rt, SessionConfig{}, nil)

	_, err := b.RunTurn(context.Background(), "c1", "hi", "")
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Contains(t, err.Error(), "pipe closed")
}

func TestRunTurn_UnknownEventsTolerated(t *testing.T) {
	rt := &mockRuntime{events: []*Event{
		{Kind: EventUnknown},
		{Kind: EventText, Text: "still fine"},
		{Kind: EventUnknown, SessionID: "s9"},
		{Kind: EventResult, Result: &ResultEvent{Text: "still fine"}},
	}}
	b := NewBridge(rt, SessionConfig{}, nil)

	result, err := b.RunTurn(context.Background(), "c1", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "still fine", result.ResponseText)
	// unknown events may still carry a session id
	assert.Equal(t, "s9", result.SessionID)
}

func TestNewBridge_ConfigOverrides(t *testing.T) {
	rt := &mockRuntime{events: []*Event{
		{Kind: EventResult, Result: &ResultEvent{Text: "ok"}},
	}}
	b := NewBridge(rt, SessionConfig{
		SystemPrompt:   "custom persona",
		MaxTurns:       3,
		PermissionMode: "default",
		AllowedTools:   []string{"present_choices"},
	}, nil)

	_, err := b.RunTurn(context.Background(), "c1", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "custom persona", rt.lastReq.SystemPrompt)
	assert.Equal(t, 3, rt.lastReq.MaxTurns)
	assert.Equal(t, "default", rt.lastReq.PermissionMode)
	assert.Equal(t, []string{"present_choices"}, rt.lastReq.AllowedTools)
}
