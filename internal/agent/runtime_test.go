// ABOUTME: Tests for the CLI subprocess runtime
// ABOUTME: Uses sh scripts as stand-in agent processes

package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptRuntime returns a CLIRuntime backed by sh -c <script>. The turn
// flags the runtime appends become positional parameters to the script.
func scriptRuntime(script string) *CLIRuntime {
	return NewCLIRuntime(CLIRuntimeConfig{
		Command: "sh",
		Args:    []string{"-c", script},
	}, nil)
}

func collectEvents(t *testing.T, ch <-chan *Event) []*Event {
	t.Helper()
	var events []*Event
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("timed out waiting for event stream to close")
		}
	}
}

func TestNewCLIRuntime_Defaults(t *testing.T) {
	rt := NewCLIRuntime(CLIRuntimeConfig{Command: "claude"}, nil)
	assert.Equal(t, 10*time.Second, rt.cfg.ConnectTimeout)
	assert.Equal(t, 5*time.Minute, rt.cfg.RequestTimeout)
}

func TestStartTurn_EmptyPrompt(t *testing.T) {
	rt := NewCLIRuntime(CLIRuntimeConfig{Command: "claude"}, nil)

	_, err := rt.StartTurn(context.Background(), &TurnRequest{})
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
}

func TestStartTurn_CommandNotFound(t *testing.T) {
	rt := NewCLIRuntime(CLIRuntimeConfig{Command: "/nonexistent/agent-binary"}, nil)

	_, err := rt.StartTurn(context.Background(), &TurnRequest{Prompt: "hi"})
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "starting runtime process", transportErr.Op)
}

func TestStartTurn_StreamsEvents(t *testing.T) {
	rt := scriptRuntime(`printf '%s\n' \
		'{"type":"system","subtype":"init","session_id":"s1"}' \
		'{"type":"assistant","session_id":"s1","message":{"content":[{"type":"text","text":"hello"}]}}' \
		'{"type":"result","subtype":"success","session_id":"s1","result":"hello","is_error":false}'`)

	ch, err := rt.StartTurn(context.Background(), &TurnRequest{Prompt: "hi"})
	require.NoError(t, err)

	events := collectEvents(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, EventSystem, events[0].Kind)
	assert.Equal(t, "s1", events[0].SessionID)
	assert.Equal(t, EventText, events[1].Kind)
	assert.Equal(t, "hello", events[1].Text)
	assert.Equal(t, EventResult, events[2].Kind)
	require.NotNil(t, events[2].Result)
	assert.Equal(t, "hello", events[2].Result.Text)
}

func TestStartTurn_UndecodableLinesSkipped(t *testing.T) {
	rt := scriptRuntime(`printf '%s\n' \
		'this is not json' \
		'{"type":"result","subtype":"success","result":"ok","is_error":false}'`)

	ch, err := rt.StartTurn(context.Background(), &TurnRequest{Prompt: "hi"})
	require.NoError(t, err)

	events := collectEvents(t, ch)
	require.Len(t, events, 1)
	assert.Equal(t, EventResult, events[0].Kind)
}

func TestStartTurn_ProcessFailureWithoutResult(t *testing.T) {
	rt := scriptRuntime(`exit 3`)

	ch, err := rt.StartTurn(context.Background(), &TurnRequest{Prompt: "hi"})
	require.NoError(t, err)

	events := collectEvents(t, ch)
	require.Len(t, events, 1)
	assert.Equal(t, EventStreamError, events[0].Kind)
	assert.Error(t, events[0].Err)
}

func TestStartTurn_ProcessFailureAfterResult(t *testing.T) {
	// A nonzero exit after a result was reported is not a transport failure
	rt := scriptRuntime(`printf '%s\n' '{"type":"result","subtype":"success","result":"ok","is_error":false}'; exit 1`)

	ch, err := rt.StartTurn(context.Background(), &TurnRequest{Prompt: "hi"})
	require.NoError(t, err)

	events := collectEvents(t, ch)
	require.Len(t, events, 1)
	assert.Equal(t, EventResult, events[0].Kind)
}
