package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/evalubot/evalubot/internal/domain"
	"github.com/evalubot/evalubot/internal/question"
	"github.com/evalubot/evalubot/internal/session"
	"github.com/evalubot/evalubot/internal/store"
	"github.com/evalubot/evalubot/internal/textgen"
)

// fixedSource pins the strategy coin flip. Intn(2) reduces to
// Int63()>>32 masked to the low bit, so 0 yields scripted and 1<<32
// yields delegated.
type fixedSource struct{ v int64 }

func (s fixedSource) Int63() int64 { return s.v }
func (s fixedSource) Seed(int64)   {}

func scriptedRand() *rand.Rand  { return rand.New(fixedSource{0}) }
func delegatedRand() *rand.Rand { return rand.New(fixedSource{1 << 32}) }

type fakeRepo struct {
	mu         sync.Mutex
	turns      []store.StoredTurn
	strategies map[string]domain.Strategy
	appendErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{strategies: make(map[string]domain.Strategy)}
}

func (r *fakeRepo) AppendTurn(ctx context.Context, viewerID, creatorName string, speaker domain.Speaker, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.turns = append(r.turns, store.StoredTurn{
		ViewerID:    viewerID,
		CreatorName: creatorName,
		Speaker:     speaker,
		Text:        text,
	})
	return nil
}

func (r *fakeRepo) SaveStrategyAssignment(ctx context.Context, viewerID, creatorName string, strategy domain.Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[domain.Key(viewerID, creatorName)] = strategy
	return nil
}

func (r *fakeRepo) GetStrategyAssignment(ctx context.Context, viewerID, creatorName string) (domain.Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.strategies[domain.Key(viewerID, creatorName)], nil
}

func (r *fakeRepo) ListTurns(ctx context.Context, creatorName string) ([]store.StoredTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.StoredTurn(nil), r.turns...), nil
}

func (r *fakeRepo) CountDistinctViewers(ctx context.Context, creatorName string) (int, error) {
	return 0, nil
}

func (r *fakeRepo) ListCreatorsNeedingSummary(ctx context.Context, minViewers int) ([]string, error) {
	return nil, nil
}

func (r *fakeRepo) UpsertSummary(ctx context.Context, summary *domain.Summary) error { return nil }

func (r *fakeRepo) GetSummary(ctx context.Context, creatorName string) (*domain.Summary, error) {
	return nil, nil
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

func (r *fakeRepo) lastTurn() (store.StoredTurn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.turns) == 0 {
		return store.StoredTurn{}, false
	}
	return r.turns[len(r.turns)-1], true
}

type failingStore struct{ session.Store }

func (failingStore) Get(ctx context.Context, key string) (*domain.ViewerSession, error) {
	return nil, errors.New("session backend unavailable")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(t *testing.T, rng *rand.Rand, backend textgen.Client) (*Dispatcher, *fakeRepo, session.Store) {
	t.Helper()
	sessions, err := session.NewStore(session.StoreTypeMemory)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })

	repo := newFakeRepo()
	machine := NewMachine(question.NewGenerator(rand.New(rand.NewSource(1))))
	d := NewDispatcher(sessions, repo, backend, machine, rng, testLogger())
	return d, repo, sessions
}

func TestDispatcherFirstContact(t *testing.T) {
	d, repo, sessions := newTestDispatcher(t, scriptedRand(), &textgen.Mock{})
	ctx := context.Background()

	reply, err := d.HandleTurn(ctx, "viewer-1", "StreamerJane", "hello")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if !strings.Contains(reply, "StreamerJane") || !strings.Contains(reply, "'ok'") {
		t.Fatalf("intro missing creator or consent instructions: %q", reply)
	}

	sess, err := sessions.Get(ctx, domain.Key("viewer-1", "StreamerJane"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess == nil {
		t.Fatal("no session created on first contact")
	}
	if !sess.AwaitingConsent {
		t.Fatal("new session not awaiting consent")
	}
	if got := repo.strategies[domain.Key("viewer-1", "StreamerJane")]; got != domain.StrategyScripted {
		t.Fatalf("persisted strategy = %q, want scripted", got)
	}
}

func TestDispatcherConsentGate(t *testing.T) {
	d, _, _ := newTestDispatcher(t, scriptedRand(), &textgen.Mock{})
	ctx := context.Background()

	if _, err := d.HandleTurn(ctx, "viewer-1", "StreamerJane", "hi"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	reply, err := d.HandleTurn(ctx, "viewer-1", "StreamerJane", "sure thing")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if reply != consentReprompt {
		t.Fatalf("reply = %q, want consent reprompt", reply)
	}

	reply, err = d.HandleTurn(ctx, "viewer-1", "StreamerJane", "  OK ")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if !strings.Contains(reply, "marketing strategies") {
		t.Fatalf("first question = %q, want marketing strategies question", reply)
	}
}

func TestDispatcherEndDestroysSession(t *testing.T) {
	d, repo, sessions := newTestDispatcher(t, scriptedRand(), &textgen.Mock{})
	ctx := context.Background()

	if _, err := d.HandleTurn(ctx, "viewer-1", "StreamerJane", "hi"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	reply, err := d.HandleTurn(ctx, "viewer-1", "StreamerJane", "End")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if reply != closingMessage {
		t.Fatalf("reply = %q, want closing message", reply)
	}

	sess, err := sessions.Get(ctx, domain.Key("viewer-1", "StreamerJane"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess != nil {
		t.Fatal("session survived the end sentinel")
	}

	last, ok := repo.lastTurn()
	if !ok || last.Text != closingMessage {
		t.Fatalf("closing message not in transcript, last = %+v", last)
	}

	reply, err = d.HandleTurn(ctx, "viewer-1", "StreamerJane", "hello again")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if reply != introMessage("StreamerJane") {
		t.Fatalf("post-end reply = %q, want fresh intro", reply)
	}
}

func TestDispatcherScriptedFullInterview(t *testing.T) {
	d, repo, _ := newTestDispatcher(t, scriptedRand(), &textgen.Mock{})
	ctx := context.Background()

	for _, msg := range []string{"hi", "ok"} {
		if _, err := d.HandleTurn(ctx, "viewer-1", "StreamerJane", msg); err != nil {
			t.Fatalf("HandleTurn(%q): %v", msg, err)
		}
	}

	var reply string
	var err error
	for _, answer := range acceptedAnswers {
		reply, err = d.HandleTurn(ctx, "viewer-1", "StreamerJane", answer)
		if err != nil {
			t.Fatalf("HandleTurn(%q): %v", answer, err)
		}
	}
	if reply != completedPrompt {
		t.Fatalf("reply after final answer = %q, want completion prompt", reply)
	}

	// intro + consent exchange + six answered questions, viewer and
	// assistant sides both persisted.
	wantTurns := 1 + 2 + 2*len(acceptedAnswers)
	repo.mu.Lock()
	got := len(repo.turns)
	repo.mu.Unlock()
	if got != wantTurns {
		t.Fatalf("transcript has %d turns, want %d", got, wantTurns)
	}
}

func TestDispatcherDelegatedForwardsToBackend(t *testing.T) {
	mock := &textgen.Mock{Default: "Tell me more about what you enjoy."}
	d, _, _ := newTestDispatcher(t, delegatedRand(), mock)
	ctx := context.Background()

	if _, err := d.HandleTurn(ctx, "viewer-1", "StreamerJane", "hi"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	reply, err := d.HandleTurn(ctx, "viewer-1", "StreamerJane", "ok")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if reply != mock.Default {
		t.Fatalf("consent reply = %q, want backend completion", reply)
	}

	// A vague answer is never rejected locally on the delegated path.
	reply, err = d.HandleTurn(ctx, "viewer-1", "StreamerJane", "bad")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if reply == unhelpfulPrompt || reply == negativePrompt {
		t.Fatalf("delegated path answered with a local rejection: %q", reply)
	}

	if len(mock.Calls) != 2 {
		t.Fatalf("backend called %d times, want 2", len(mock.Calls))
	}
	call := mock.Calls[1]
	if !strings.Contains(call.SystemPrompt, "StreamerJane") {
		t.Fatalf("system prompt does not mention the creator: %q", call.SystemPrompt)
	}
	if call.MaxTokens != delegatedMaxTokens || call.Temperature != delegatedTemperature {
		t.Fatalf("completion parameters = (%d, %v), want (%d, %v)",
			call.MaxTokens, call.Temperature, delegatedMaxTokens, delegatedTemperature)
	}
	if call.History[0].Role != textgen.RoleAssistant || !strings.Contains(call.History[0].Text, "Evalubot") {
		t.Fatalf("history does not start with the intro: %+v", call.History[0])
	}
	if last := call.History[len(call.History)-1]; last.Role != textgen.RoleUser || last.Text != "bad" {
		t.Fatalf("history does not end with the viewer message: %+v", last)
	}
}

func TestDispatcherDelegatedFallbackOnBackendError(t *testing.T) {
	mock := &textgen.Mock{Err: textgen.ErrGeneration}
	d, repo, _ := newTestDispatcher(t, delegatedRand(), mock)
	ctx := context.Background()

	if _, err := d.HandleTurn(ctx, "viewer-1", "StreamerJane", "hi"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	reply, err := d.HandleTurn(ctx, "viewer-1", "StreamerJane", "ok")
	if err != nil {
		t.Fatalf("HandleTurn returned error despite fallback: %v", err)
	}
	if reply != fallbackReply {
		t.Fatalf("reply = %q, want fallback reply", reply)
	}

	last, ok := repo.lastTurn()
	if !ok || last.Text != fallbackReply {
		t.Fatalf("fallback reply not in transcript, last = %+v", last)
	}
}

func TestDispatcherSessionStoreFailureIsFatal(t *testing.T) {
	inner, err := session.NewStore(session.StoreTypeMemory)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { inner.Close() })

	machine := NewMachine(question.NewGenerator(rand.New(rand.NewSource(1))))
	d := NewDispatcher(failingStore{inner}, newFakeRepo(), &textgen.Mock{}, machine, scriptedRand(), testLogger())

	if _, err := d.HandleTurn(context.Background(), "viewer-1", "StreamerJane", "hi"); err == nil {
		t.Fatal("expected error when the session store is down")
	}
}

func TestDispatcherToleratesTranscriptFailure(t *testing.T) {
	d, repo, _ := newTestDispatcher(t, scriptedRand(), &textgen.Mock{})
	repo.appendErr = errors.New("disk full")

	reply, err := d.HandleTurn(context.Background(), "viewer-1", "StreamerJane", "hi")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if reply == "" {
		t.Fatal("empty reply")
	}
}
