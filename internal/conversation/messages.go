package conversation

import (
	"fmt"
	"strings"
)

// Fixed assistant messages. Only viewer utterances are validated, so
// these strings are free to contain words from the keyword sets.
const (
	consentToken = "ok"
	endSentinel  = "end"

	consentReprompt = "Please reply with 'ok' to continue."
	closingMessage  = "Thank you for using Evalubot! If you need more assistance, feel free to start a new conversation."
	negativePrompt  = "That's pretty negative, could you rephrase that?"
	unhelpfulPrompt = "That's not really helpful, could you rephrase that?"
	completedPrompt = "Thank you for all your feedback! If you have more comments, type 'end' to finish or continue with additional feedback."
	fallbackReply   = "An error occurred while communicating with Evalubot. Please try again later."
)

// introMessage is the shared consent gate shown on first contact,
// regardless of the assigned strategy.
func introMessage(creatorName string) string {
	return fmt.Sprintf("Hi, I'm Evalubot, here to gather feedback for %s. "+
		"I'll ask you some questions and share your answers with the streamer "+
		"and the researchers studying this prototype. Reply with 'ok' to continue.", creatorName)
}

// delegatedSystemPrompt is the single instruction handed to the
// text-generation backend on the delegated path. The backend is trusted
// to self-regulate with it; no local validation applies on that path.
func delegatedSystemPrompt(creatorName string) string {
	return fmt.Sprintf(`You are Evalubot, a chatbot that gathers feedback about streamers. `+
		`Your goal is to guide users to provide feedback on %s across three categories: `+
		`marketing strategies, content production, and community management. `+
		`For each category, ask about strengths and improvements.

Feedback should be constructive, which means:
- Specific: the response should have at least 5 characters.
- Justifiable: for strengths, users should explain why it's a strength (e.g., using phrases like "because" or "due to").
- Actionable: for improvements, users should suggest how the streamer could improve (e.g., using phrases like "should" or "could").

If a response is overly negative (e.g., uses words like "terrible" or "useless"), respond with `+
		`"That's pretty negative, could you rephrase that?".

If a response is too vague (e.g., "okay", "fine"), respond with `+
		`"That's not really helpful, could you rephrase that?".

If a response does not meet the criteria for constructiveness, prompt the user to provide more details or clarify their feedback.`, creatorName)
}

func isConsent(message string) bool {
	return strings.EqualFold(strings.TrimSpace(message), consentToken)
}

func isEndSentinel(message string) bool {
	return strings.EqualFold(strings.TrimSpace(message), endSentinel)
}
