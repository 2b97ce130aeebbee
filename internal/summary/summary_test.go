package summary

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalubot/evalubot/internal/domain"
	"github.com/evalubot/evalubot/internal/store"
	"github.com/evalubot/evalubot/internal/textgen"
)

const wellFormedReply = `- Why Viewers Watch: Viewers enjoy the humor and the relaxed pacing.
- How to Improve: Stream on a more predictable schedule.
- Content Production: Editing is tight but audio quality varies between sessions.
- Community Management: Moderators respond quickly and chat feels welcoming.
- Marketing Strategy: Clips are rarely shared outside the platform.`

type summaryRepo struct {
	store.Repository

	viewers  int
	turns    []store.StoredTurn
	stale    []string
	upserted []*domain.Summary

	listErr error
}

func (r *summaryRepo) CountDistinctViewers(ctx context.Context, creatorName string) (int, error) {
	return r.viewers, nil
}

func (r *summaryRepo) ListTurns(ctx context.Context, creatorName string) ([]store.StoredTurn, error) {
	return r.turns, nil
}

func (r *summaryRepo) ListCreatorsNeedingSummary(ctx context.Context, minViewers int) ([]string, error) {
	return r.stale, r.listErr
}

func (r *summaryRepo) UpsertSummary(ctx context.Context, summary *domain.Summary) error {
	r.upserted = append(r.upserted, summary)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerateStoresDigest(t *testing.T) {
	repo := &summaryRepo{
		viewers: 5,
		turns: []store.StoredTurn{
			{ViewerID: "v1", Speaker: domain.SpeakerViewer, Text: "I love the humor because it lands"},
			{ViewerID: "v2", Speaker: domain.SpeakerViewer, Text: "They should stream more often"},
		},
	}
	mock := &textgen.Mock{Default: wellFormedReply}
	m := NewManager(repo, mock, 5, testLogger())

	sum, err := m.Generate(context.Background(), "StreamerJane")
	require.NoError(t, err)

	assert.Equal(t, "StreamerJane", sum.CreatorName)
	assert.Equal(t, "Viewers enjoy the humor and the relaxed pacing.", sum.WhyViewersWatch)
	assert.Equal(t, "Stream on a more predictable schedule.", sum.HowToImprove)
	assert.Equal(t, "Editing is tight but audio quality varies between sessions.", sum.ContentProduction)
	assert.Equal(t, "Moderators respond quickly and chat feels welcoming.", sum.CommunityManagement)
	assert.Equal(t, "Clips are rarely shared outside the platform.", sum.MarketingStrategy)
	assert.False(t, sum.GeneratedAt.IsZero())

	require.Len(t, repo.upserted, 1)
	assert.Equal(t, sum, repo.upserted[0])

	require.Len(t, mock.Calls, 1)
	call := mock.Calls[0]
	assert.Equal(t, summaryMaxTokens, call.MaxTokens)
	assert.Equal(t, summaryTemperature, call.Temperature)
	assert.Contains(t, call.SystemPrompt, "StreamerJane")
	require.Len(t, call.History, 1)
	assert.Contains(t, call.History[0].Text, "They should stream more often")
}

func TestGenerateBelowThreshold(t *testing.T) {
	repo := &summaryRepo{viewers: 4}
	m := NewManager(repo, &textgen.Mock{Default: wellFormedReply}, 5, testLogger())

	_, err := m.Generate(context.Background(), "StreamerJane")
	require.ErrorIs(t, err, ErrBelowThreshold)
	assert.Empty(t, repo.upserted)
}

func TestGenerateMalformedReply(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"free text", "The streamer is doing well overall."},
		{"missing section", strings.Replace(wellFormedReply, "Marketing Strategy:", "Marketing:", 1)},
		{"empty section", strings.Replace(wellFormedReply,
			"How to Improve: Stream on a more predictable schedule.", "How to Improve:", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &summaryRepo{viewers: 5}
			m := NewManager(repo, &textgen.Mock{Default: tt.reply}, 5, testLogger())

			_, err := m.Generate(context.Background(), "StreamerJane")
			require.ErrorIs(t, err, ErrMalformed)
			assert.Empty(t, repo.upserted)
		})
	}
}

func TestGenerateBackendError(t *testing.T) {
	repo := &summaryRepo{viewers: 5}
	m := NewManager(repo, &textgen.Mock{Err: textgen.ErrGeneration}, 5, testLogger())

	_, err := m.Generate(context.Background(), "StreamerJane")
	require.ErrorIs(t, err, textgen.ErrGeneration)
	assert.Empty(t, repo.upserted)
}

func TestParseSummaryToleratesBulletStyles(t *testing.T) {
	reply := strings.ReplaceAll(wellFormedReply, "- ", "* ")
	sum, err := parseSummary("StreamerJane", reply)
	require.NoError(t, err)
	assert.Equal(t, "Stream on a more predictable schedule.", sum.HowToImprove)
}

func TestWorkerSweep(t *testing.T) {
	repo := &summaryRepo{
		viewers: 5,
		stale:   []string{"StreamerJane", "StreamerBob"},
	}
	m := NewManager(repo, &textgen.Mock{Default: wellFormedReply}, 5, testLogger())

	m.sweep(context.Background())
	require.Len(t, repo.upserted, 2)
	assert.Equal(t, "StreamerJane", repo.upserted[0].CreatorName)
	assert.Equal(t, "StreamerBob", repo.upserted[1].CreatorName)
}

func TestWorkerSweepToleratesListFailure(t *testing.T) {
	repo := &summaryRepo{listErr: errors.New("db closed")}
	m := NewManager(repo, &textgen.Mock{Default: wellFormedReply}, 5, testLogger())

	m.sweep(context.Background())
	assert.Empty(t, repo.upserted)
}
