package textgen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockMatchesKeyword(t *testing.T) {
	m := &Mock{Responses: map[string]string{"overlays": "Great point about overlays."}}

	reply, err := m.Complete(context.Background(), "sys", []Message{
		{Role: RoleUser, Text: "You should add more OVERLAYS"},
	}, 200, 0.7)

	require.NoError(t, err)
	assert.Equal(t, "Great point about overlays.", reply)
}

func TestMockFallsBackToDefault(t *testing.T) {
	m := &Mock{Default: "Tell me more."}

	reply, err := m.Complete(context.Background(), "sys", []Message{
		{Role: RoleUser, Text: "unmatched"},
	}, 200, 0.7)

	require.NoError(t, err)
	assert.Equal(t, "Tell me more.", reply)
}

func TestMockNoMatchIsGenerationError(t *testing.T) {
	m := &Mock{}

	_, err := m.Complete(context.Background(), "sys", []Message{
		{Role: RoleUser, Text: "anything"},
	}, 200, 0.7)

	assert.True(t, errors.Is(err, ErrGeneration))
}

func TestMockRecordsCalls(t *testing.T) {
	m := &Mock{Default: "ok"}

	history := []Message{
		{Role: RoleAssistant, Text: "Question?"},
		{Role: RoleUser, Text: "Answer."},
	}
	_, err := m.Complete(context.Background(), "system prompt", history, 200, 0.7)
	require.NoError(t, err)

	require.Len(t, m.Calls, 1)
	assert.Equal(t, "system prompt", m.Calls[0].SystemPrompt)
	assert.Equal(t, history, m.Calls[0].History)
	assert.Equal(t, 200, m.Calls[0].MaxTokens)
	assert.InDelta(t, 0.7, m.Calls[0].Temperature, 1e-9)
}
