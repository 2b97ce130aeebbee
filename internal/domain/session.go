// Package domain contains core domain types for the Evalubot application.
package domain

import (
	"time"
)

// Strategy identifies which conversation strategy a viewer session uses.
type Strategy string

const (
	// StrategyScripted runs the fixed question bank with local validation.
	StrategyScripted Strategy = "scripted"
	// StrategyDelegated hands the whole interview to the text-generation backend.
	StrategyDelegated Strategy = "delegated"
)

// Speaker identifies who authored a conversation turn.
type Speaker string

const (
	SpeakerViewer    Speaker = "viewer"
	SpeakerAssistant Speaker = "assistant"
)

// Polarity is the sub-aspect of a feedback category being asked about.
type Polarity string

const (
	PolarityStrengths    Polarity = "strengths"
	PolarityImprovements Polarity = "improvements"
)

// Turn is one message exchange unit, viewer or assistant authored.
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// ViewerSession holds the per-(viewer, creator) conversation state.
// It is serialized as-is into the session store.
type ViewerSession struct {
	ViewerID    string   `json:"viewer_id"`
	CreatorName string   `json:"creator_name"`
	Strategy    Strategy `json:"strategy"`

	// TurnLog is append-only and is the sole source of truth for replay.
	TurnLog []Turn `json:"turn_log"`

	// CategoryIndex and PolarityIndex only move forward (scripted strategy).
	CategoryIndex int `json:"category_index"`
	PolarityIndex int `json:"polarity_index"`

	// PriorUtterances records normalized viewer texts for repetition detection.
	PriorUtterances map[string]bool `json:"prior_utterances"`

	AwaitingConsent bool `json:"awaiting_consent"`
	Completed       bool `json:"completed"`

	// SystemPrompt is built once on the first post-consent turn (delegated strategy).
	SystemPrompt string `json:"system_prompt,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the session store key for a (viewer, creator) pair.
func Key(viewerID, creatorName string) string {
	return viewerID + ":" + creatorName
}

// AppendTurn appends a turn to the session's log.
func (s *ViewerSession) AppendTurn(speaker Speaker, text string) {
	s.TurnLog = append(s.TurnLog, Turn{Speaker: speaker, Text: text, At: time.Now()})
}
