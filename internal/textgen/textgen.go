// Package textgen abstracts the text-generation backend behind a small
// completion interface. It purposefully does not expose provider
// features beyond plain chat completions; the conversation layer only
// needs prompt-in, text-out.
package textgen

import (
	"context"
	"errors"
)

// ErrGeneration marks any backend failure: unreachable service, timeout,
// or an empty/unusable completion. Callers recover with a fixed fallback
// reply rather than surfacing the error to the viewer.
var ErrGeneration = errors.New("text generation failed")

// Role identifies the author of a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history sent to the backend.
type Message struct {
	Role Role
	Text string
}

// Client submits a prompt plus history and returns a free-text completion.
type Client interface {
	// Complete sends the system prompt and history to the backend. The
	// last history entry must be the new user message. Failures are
	// reported as errors wrapping ErrGeneration.
	Complete(ctx context.Context, systemPrompt string, history []Message, maxTokens int, temperature float64) (string, error)
}
