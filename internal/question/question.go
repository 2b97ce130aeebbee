// Package question produces the prompts the scripted strategy asks,
// parameterized by creator name. Phrasing variants are picked uniformly
// from a fixed bank; only viewer repetition is policed, so repeated bot
// phrasing across turns is acceptable.
package question

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/evalubot/evalubot/internal/domain"
)

// Categories is the fixed feedback category ordering.
var Categories = []string{"marketing strategies", "content production", "community management"}

// Polarities is the fixed polarity ordering within each category.
var Polarities = []domain.Polarity{domain.PolarityStrengths, domain.PolarityImprovements}

// template is a question phrasing. categoryFirst marks phrasings where
// the category fills the first format slot instead of the creator name.
type template struct {
	text          string
	categoryFirst bool
}

var strengthsTemplates = []template{
	{text: "What do you think are %s's strengths when it comes to %s?"},
	{text: "In terms of %s, what stands out to you as %s's biggest strengths?", categoryFirst: true},
	{text: "How would you describe %s's strengths in their approach to %s?"},
	{text: "What aspects of %s do you think %s excels at?", categoryFirst: true},
}

var improvementsTemplates = []template{
	{text: "Where do you think %s could improve in terms of %s?"},
	{text: "Are there any areas in %s where you think %s could do better?", categoryFirst: true},
	{text: "What suggestions do you have for %s to enhance their %s?"},
	{text: "How could %s improve their efforts in %s?"},
}

// Generator selects prompt phrasings using an injected randomness source
// so tests can pin the choice.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a Generator backed by the given source.
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// NextPrompt returns the question for a (category, polarity) pair.
func (g *Generator) NextPrompt(category string, polarity domain.Polarity, creatorName string) string {
	templates := strengthsTemplates
	if polarity == domain.PolarityImprovements {
		templates = improvementsTemplates
	}

	g.mu.Lock()
	tmpl := templates[g.rng.Intn(len(templates))]
	g.mu.Unlock()

	if tmpl.categoryFirst {
		return fmt.Sprintf(tmpl.text, category, creatorName)
	}
	return fmt.Sprintf(tmpl.text, creatorName, category)
}

// ClarifyingPrompt returns the fixed follow-up used when an answer is
// neither negative nor vague but fails the constructiveness checks.
func ClarifyingPrompt(polarity domain.Polarity) string {
	if polarity == domain.PolarityImprovements {
		return "Can you clarify how this improvement can be implemented or why it's important for the stream?"
	}
	return "Can you provide more details about why this is a strength and how it impacts the stream positively?"
}
