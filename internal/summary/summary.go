// Package summary turns a creator's accumulated feedback transcript into
// the five-part digest shown on the creator dashboard. Generation only
// runs once enough distinct viewers have contributed, both to keep the
// digest representative and to make it harder to attribute a line to a
// single viewer.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/evalubot/evalubot/internal/domain"
	"github.com/evalubot/evalubot/internal/store"
	"github.com/evalubot/evalubot/internal/textgen"
)

// Completion parameters for the summarizer.
const (
	summaryMaxTokens   = 1000
	summaryTemperature = 0.7
)

// DefaultMinViewers is the distinct-viewer threshold below which no
// summary is generated.
const DefaultMinViewers = 5

// Errors returned by Generate.
var (
	// ErrBelowThreshold means too few distinct viewers have given feedback.
	ErrBelowThreshold = errors.New("not enough distinct viewers for a summary")
	// ErrMalformed means the backend reply did not follow the expected format.
	ErrMalformed = errors.New("malformed summary from backend")
)

// Section labels the backend is instructed to emit, in display order.
var sectionLabels = []string{
	"Why Viewers Watch",
	"How to Improve",
	"Content Production",
	"Community Management",
	"Marketing Strategy",
}

// Manager generates and stores creator feedback summaries.
type Manager struct {
	repo       store.Repository
	backend    textgen.Client
	minViewers int
	logger     *slog.Logger
}

// NewManager creates a Manager. minViewers values below one fall back to
// DefaultMinViewers.
func NewManager(repo store.Repository, backend textgen.Client, minViewers int, logger *slog.Logger) *Manager {
	if minViewers < 1 {
		minViewers = DefaultMinViewers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:       repo,
		backend:    backend,
		minViewers: minViewers,
		logger:     logger,
	}
}

// Generate builds the digest for one creator from the full stored
// transcript and upserts it. It returns ErrBelowThreshold when too few
// distinct viewers have contributed.
func (m *Manager) Generate(ctx context.Context, creatorName string) (*domain.Summary, error) {
	viewers, err := m.repo.CountDistinctViewers(ctx, creatorName)
	if err != nil {
		return nil, fmt.Errorf("count viewers for %s: %w", creatorName, err)
	}
	if viewers < m.minViewers {
		return nil, fmt.Errorf("%w: %d of %d for %s", ErrBelowThreshold, viewers, m.minViewers, creatorName)
	}

	turns, err := m.repo.ListTurns(ctx, creatorName)
	if err != nil {
		return nil, fmt.Errorf("load transcript for %s: %w", creatorName, err)
	}

	reply, err := m.backend.Complete(ctx, systemPrompt(creatorName),
		[]textgen.Message{{Role: textgen.RoleUser, Text: transcriptText(turns)}},
		summaryMaxTokens, summaryTemperature)
	if err != nil {
		return nil, fmt.Errorf("summarize %s: %w", creatorName, err)
	}

	sum, err := parseSummary(creatorName, reply)
	if err != nil {
		return nil, err
	}
	sum.GeneratedAt = time.Now().UTC()

	if err := m.repo.UpsertSummary(ctx, sum); err != nil {
		return nil, fmt.Errorf("store summary for %s: %w", creatorName, err)
	}

	m.logger.Info("summary generated", "creator", creatorName, "viewers", viewers)
	return sum, nil
}

func systemPrompt(creatorName string) string {
	return fmt.Sprintf(`You summarize viewer feedback for the streamer %s. `+
		`The user message is a transcript of feedback conversations. Produce a concise digest `+
		`with exactly these five lines and nothing else:

- Why Viewers Watch: <one or two sentences>
- How to Improve: <one or two sentences>
- Content Production: <one or two sentences>
- Community Management: <one or two sentences>
- Marketing Strategy: <one or two sentences>

Base every line only on the transcript. Do not quote viewers verbatim or identify them.`, creatorName)
}

func transcriptText(turns []store.StoredTurn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(string(t.Speaker))
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// parseSummary extracts the five labeled sections from the backend
// reply. Every label must be present with a non-empty value.
func parseSummary(creatorName, reply string) (*domain.Summary, error) {
	sections := make(map[string]string, len(sectionLabels))

	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-* ")

		label, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		label = strings.TrimSpace(label)
		value = strings.TrimSpace(value)
		for _, want := range sectionLabels {
			if strings.EqualFold(label, want) && value != "" {
				sections[want] = value
			}
		}
	}

	for _, want := range sectionLabels {
		if sections[want] == "" {
			return nil, fmt.Errorf("%w: missing section %q", ErrMalformed, want)
		}
	}

	return &domain.Summary{
		CreatorName:         creatorName,
		WhyViewersWatch:     sections["Why Viewers Watch"],
		HowToImprove:        sections["How to Improve"],
		ContentProduction:   sections["Content Production"],
		CommunityManagement: sections["Community Management"],
		MarketingStrategy:   sections["Marketing Strategy"],
	}, nil
}
