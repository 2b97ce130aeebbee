// Package validate classifies viewer utterances for the scripted
// conversation strategy. All checks are case-insensitive substring
// matches over fixed keyword sets.
package validate

import (
	"strings"

	"github.com/evalubot/evalubot/internal/domain"
)

// negativeKeywords flag an utterance as overly negative. "bad" is
// deliberately absent here: it sits in the vague set, so a bare "bad"
// draws the not-helpful prompt rather than the too-negative one.
var negativeKeywords = []string{"terrible", "awful", "horrible", "disappointing", "useless"}

// vagueKeywords flag an utterance as too vague to act on.
var vagueKeywords = []string{"okay", "fine", "good", "bad", "meh", "average"}

// justificationMarkers must appear in strengths feedback.
var justificationMarkers = []string{"because", "due to", "as a result"}

// actionabilityMarkers must appear in improvements feedback.
var actionabilityMarkers = []string{"should", "could", "need to", "try to"}

// minConstructiveLength is the minimum trimmed length of an accepted answer.
const minConstructiveLength = 5

// Classification is the result of screening a single utterance.
type Classification struct {
	Negative  bool
	Unhelpful bool
}

// Classify screens an utterance against the negative and vague keyword sets.
func Classify(utterance string) Classification {
	lower := strings.ToLower(utterance)
	return Classification{
		Negative:  containsAny(lower, negativeKeywords),
		Unhelpful: containsAny(lower, vagueKeywords),
	}
}

// IsConstructive reports whether an utterance qualifies as constructive
// feedback for the given polarity. Regardless of the outcome, the trimmed
// utterance is recorded into prior so an immediate verbatim repeat is
// always caught, including a repeat of a previously rejected attempt.
func IsConstructive(utterance string, polarity domain.Polarity, prior map[string]bool) bool {
	trimmed := strings.TrimSpace(utterance)
	lower := strings.ToLower(trimmed)

	longEnough := len(trimmed) >= minConstructiveLength

	justified := true
	if polarity == domain.PolarityStrengths {
		justified = containsAny(lower, justificationMarkers)
	}

	actionable := true
	if polarity == domain.PolarityImprovements {
		actionable = containsAny(lower, actionabilityMarkers)
	}

	repeated := prior[trimmed]
	prior[trimmed] = true

	return longEnough && justified && actionable && !repeated
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
