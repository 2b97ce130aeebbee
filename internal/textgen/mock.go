package textgen

import (
	"context"
	"fmt"
	"strings"
)

// Mock is a keyword-matching Client for tests and for running the server
// without an API key. The reply for the first key contained in the last
// user message is returned; Err, when set, takes precedence.
type Mock struct {
	Responses map[string]string
	Default   string
	Err       error

	// Calls records every request for assertions.
	Calls []MockCall
}

// MockCall captures one Complete invocation.
type MockCall struct {
	SystemPrompt string
	History      []Message
	MaxTokens    int
	Temperature  float64
}

var _ Client = (*Mock)(nil)

// Complete implements Client.
func (m *Mock) Complete(ctx context.Context, systemPrompt string, history []Message, maxTokens int, temperature float64) (string, error) {
	m.Calls = append(m.Calls, MockCall{
		SystemPrompt: systemPrompt,
		History:      history,
		MaxTokens:    maxTokens,
		Temperature:  temperature,
	})

	if m.Err != nil {
		return "", m.Err
	}
	if len(history) == 0 {
		return "", fmt.Errorf("%w: empty history", ErrGeneration)
	}

	last := strings.ToLower(history[len(history)-1].Text)
	for k, reply := range m.Responses {
		if strings.Contains(last, strings.ToLower(k)) {
			return reply, nil
		}
	}
	if m.Default != "" {
		return m.Default, nil
	}
	return "", fmt.Errorf("%w: no mock response for %q", ErrGeneration, last)
}
