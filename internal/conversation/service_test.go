// ABOUTME: Tests for the conversation service
// ABOUTME: Verifies record-first persistence, session linkage, and failure semantics

package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitversal/coach-gateway/internal/agent"
	"github.com/fitversal/coach-gateway/internal/metadata"
	"github.com/fitversal/coach-gateway/internal/store"
)

// mockBridge implements TurnRunner for testing
type mockBridge struct {
	result      *agent.TurnResult
	err         error
	lastSession string
	lastMessage string
	calls       int
}

func (m *mockBridge) RunTurn(ctx context.Context, conversationID, userMessage, resumeSessionID string) (*agent.TurnResult, error) {
	m.calls++
	m.lastMessage = userMessage
	m.lastSession = resumeSessionID
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func createTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSendMessage_EndToEnd(t *testing.T) {
	testStore := createTestStore(t)
	bridge := &mockBridge{result: &agent.TurnResult{
		ResponseText: "Here's a plan",
		Metadata: []metadata.Metadata{
			&metadata.TemplateProposal{
				Name: "Leg Day",
				Exercises: []metadata.TemplateExercise{
					{Name: "Squat", Sets: 3, Reps: "8-12", MuscleGroup: "Legs"},
				},
			},
		},
		SessionID: "abc",
	}}
	svc := New(testStore, bridge, nil)
	ctx := context.Background()

	_, err := svc.CreateConversation(ctx, "c1", nil)
	require.NoError(t, err)

	reply, err := svc.SendMessage(ctx, "c1", "Build me a leg day")
	require.NoError(t, err)
	assert.Equal(t, store.RoleAssistant, reply.Role)
	assert.Equal(t, "Here's a plan", reply.Content)

	tp, ok := reply.Metadata.(*metadata.TemplateProposal)
	require.True(t, ok)
	assert.Equal(t, "Leg Day", tp.Name)

	// Exactly two message rows: user then assistant
	messages, err := svc.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, store.RoleUser, messages[0].Role)
	assert.Equal(t, "Build me a leg day", messages[0].Content)
	assert.Nil(t, messages[0].Metadata)
	assert.Equal(t, store.RoleAssistant, messages[1].Role)

	conv, err := svc.GetConversation(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, conv.AgentSessionID)
	assert.Equal(t, "abc", *conv.AgentSessionID)
}

func TestSendMessage_MissingConversation(t *testing.T) {
	testStore := createTestStore(t)
	bridge := &mockBridge{result: &agent.TurnResult{ResponseText: "x"}}
	svc := New(testStore, bridge, nil)

	_, err := svc.SendMessage(context.Background(), "missing", "hi")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, bridge.calls, "bridge must not run for a missing conversation")
}

func TestSendMessage_BridgeFailureLeavesUserMessage(t *testing.T) {
	testStore := createTestStore(t)
	bridge := &mockBridge{err: &agent.TransportError{Op: "reading event stream", Err: errors.New("pipe closed")}}
	svc := New(testStore, bridge, nil)
	ctx := context.Background()

	_, err := svc.CreateConversation(ctx, "c1", nil)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, "c1", "hello")
	var transportErr *agent.TransportError
	require.ErrorAs(t, err, &transportErr)

	// Degraded state: user message persisted, no assistant reply
	messages, err := svc.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, store.RoleUser, messages[0].Role)

	conv, err := svc.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, conv.AgentSessionID)
}

func TestSendMessage_RetryCreatesNewUserRow(t *testing.T) {
	testStore := createTestStore(t)
	bridge := &mockBridge{err: errors.New("down")}
	svc := New(testStore, bridge, nil)
	ctx := context.Background()

	_, err := svc.CreateConversation(ctx, "c1", nil)
	require.NoError(t, err)

	_, _ = svc.SendMessage(ctx, "c1", "hello")
	_, _ = svc.SendMessage(ctx, "c1", "hello")

	messages, err := svc.ListMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, messages, 2, "retries are not deduplicated")
}

func TestSendMessage_ResumesStoredSession(t *testing.T) {
	testStore := createTestStore(t)
	bridge := &mockBridge{result: &agent.TurnResult{ResponseText: "ok", SessionID: "s2"}}
	svc := New(testStore, bridge, nil)
	ctx := context.Background()

	_, err := svc.CreateConversation(ctx, "c1", nil)
	require.NoError(t, err)
	require.NoError(t, testStore.UpdateAgentSessionID(ctx, "c1", "s1"))

	_, err = svc.SendMessage(ctx, "c1", "more")
	require.NoError(t, err)
	assert.Equal(t, "s1", bridge.lastSession)

	conv, err := svc.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "s2", *conv.AgentSessionID)
}

func TestSendMessage_FirstTurnStartsFreshSession(t *testing.T) {
	testStore := createTestStore(t)
	bridge := &mockBridge{result: &agent.TurnResult{ResponseText: "ok"}}
	svc := New(testStore, bridge, nil)
	ctx := context.Background()

	_, err := svc.CreateConversation(ctx, "c1", nil)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, "c1", "hi")
	require.NoError(t, err)
	assert.Empty(t, bridge.lastSession)

	// No session reported: stored handle stays absent
	conv, err := svc.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, conv.AgentSessionID)
}

func TestSendMessage_MultipleMetadataKeepsFirst(t *testing.T) {
	testStore := createTestStore(t)
	bridge := &mockBridge{result: &agent.TurnResult{
		ResponseText: "two ideas",
		Metadata: []metadata.Metadata{
			&metadata.ExerciseProposal{Name: "Squat", MuscleGroup: "Legs"},
			&metadata.ExerciseProposal{Name: "Lunge", MuscleGroup: "Legs"},
		},
	}}
	svc := New(testStore, bridge, nil)
	ctx := context.Background()

	_, err := svc.CreateConversation(ctx, "c1", nil)
	require.NoError(t, err)

	reply, err := svc.SendMessage(ctx, "c1", "ideas?")
	require.NoError(t, err)

	ep, ok := reply.Metadata.(*metadata.ExerciseProposal)
	require.True(t, ok)
	assert.Equal(t, "Squat", ep.Name)
}

func TestCreateConversation_GeneratesID(t *testing.T) {
	testStore := createTestStore(t)
	svc := New(testStore, &mockBridge{}, nil)

	conv, err := svc.CreateConversation(context.Background(), "", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, store.StatusActive, conv.Status)
}

func TestCreateConversation_Duplicate(t *testing.T) {
	testStore := createTestStore(t)
	svc := New(testStore, &mockBridge{}, nil)
	ctx := context.Background()

	_, err := svc.CreateConversation(ctx, "c1", nil)
	require.NoError(t, err)
	_, err = svc.CreateConversation(ctx, "c1", nil)
	assert.ErrorIs(t, err, store.ErrDuplicateConversation)
}

func TestListMessages_MissingConversation(t *testing.T) {
	testStore := createTestStore(t)
	svc := New(testStore, &mockBridge{}, nil)

	_, err := svc.ListMessages(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteConversation(t *testing.T) {
	testStore := createTestStore(t)
	bridge := &mockBridge{result: &agent.TurnResult{ResponseText: "ok"}}
	svc := New(testStore, bridge, nil)
	ctx := context.Background()

	_, err := svc.CreateConversation(ctx, "c1", nil)
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, "c1", "hi")
	require.NoError(t, err)

	removed, err := svc.DeleteConversation(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = svc.ListMessages(ctx, "c1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	removed, err = svc.DeleteConversation(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSetTitle(t *testing.T) {
	testStore := createTestStore(t)
	svc := New(testStore, &mockBridge{}, nil)
	ctx := context.Background()

	_, err := svc.CreateConversation(ctx, "c1", nil)
	require.NoError(t, err)

	conv, err := svc.SetTitle(ctx, "c1", "Cutting phase")
	require.NoError(t, err)
	require.NotNil(t, conv.Title)
	assert.Equal(t, "Cutting phase", *conv.Title)

	_, err = svc.SetTitle(ctx, "missing", "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
