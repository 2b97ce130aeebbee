// Package conversation implements the feedback interview core: the
// scripted per-turn state machine and the strategy dispatcher that
// routes each viewer message to the scripted or delegated path.
package conversation

import (
	"github.com/evalubot/evalubot/internal/domain"
	"github.com/evalubot/evalubot/internal/question"
	"github.com/evalubot/evalubot/internal/validate"
)

// Machine advances a scripted session through the fixed category and
// polarity ordering. It owns no I/O: it mutates the session in place and
// leaves persistence to the dispatcher.
type Machine struct {
	questions *question.Generator
}

// NewMachine creates a scripted-path state machine.
func NewMachine(questions *question.Generator) *Machine {
	return &Machine{questions: questions}
}

// FirstQuestion returns the opening question, asked right after consent.
func (m *Machine) FirstQuestion(creatorName string) string {
	return m.questions.NextPrompt(question.Categories[0], question.Polarities[0], creatorName)
}

// Step handles one post-consent viewer message. The viewer turn and the
// resulting assistant turn are both appended to the session log before
// the reply is returned.
func (m *Machine) Step(sess *domain.ViewerSession, message string) string {
	sess.AppendTurn(domain.SpeakerViewer, message)
	reply := m.reply(sess, message)
	sess.AppendTurn(domain.SpeakerAssistant, reply)
	return reply
}

func (m *Machine) reply(sess *domain.ViewerSession, message string) string {
	c := validate.Classify(message)
	if c.Negative {
		return negativePrompt
	}
	if c.Unhelpful {
		return unhelpfulPrompt
	}

	polarity := question.Polarities[sess.PolarityIndex]
	if sess.PriorUtterances == nil {
		sess.PriorUtterances = make(map[string]bool)
	}
	if !validate.IsConstructive(message, polarity, sess.PriorUtterances) {
		return question.ClarifyingPrompt(polarity)
	}

	// Accepted. Once every category and polarity is exhausted the indices
	// stay frozen and further accepted answers re-elicit the closing prompt.
	if sess.Completed {
		return completedPrompt
	}

	switch {
	case sess.PolarityIndex < len(question.Polarities)-1:
		sess.PolarityIndex++
	case sess.CategoryIndex < len(question.Categories)-1:
		sess.CategoryIndex++
		sess.PolarityIndex = 0
	default:
		sess.Completed = true
		return completedPrompt
	}

	return m.questions.NextPrompt(
		question.Categories[sess.CategoryIndex],
		question.Polarities[sess.PolarityIndex],
		sess.CreatorName,
	)
}
