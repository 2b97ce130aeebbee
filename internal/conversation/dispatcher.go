package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/evalubot/evalubot/internal/domain"
	"github.com/evalubot/evalubot/internal/session"
	"github.com/evalubot/evalubot/internal/store"
	"github.com/evalubot/evalubot/internal/textgen"
)

// Delegated-path completion parameters.
const (
	delegatedMaxTokens   = 200
	delegatedTemperature = 0.7
)

// Dispatcher assigns each new viewer a conversation strategy and routes
// every turn to the scripted machine or the text-generation backend.
// Turns for the same (viewer, creator) pair are serialized; different
// pairs proceed independently.
type Dispatcher struct {
	sessions session.Store
	repo     store.Repository
	backend  textgen.Client
	machine  *Machine
	logger   *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	// turnLocks holds one mutex per active session key.
	turnLocks sync.Map
}

// NewDispatcher creates a Dispatcher. The randomness source is injected
// so tests can force either strategy deterministically.
func NewDispatcher(sessions session.Store, repo store.Repository, backend textgen.Client, machine *Machine, rng *rand.Rand, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sessions: sessions,
		repo:     repo,
		backend:  backend,
		machine:  machine,
		logger:   logger,
		rng:      rng,
	}
}

// HandleTurn processes one viewer message and returns the assistant
// reply. A session store failure is fatal to the request; transcript
// append failures are logged and tolerated.
func (d *Dispatcher) HandleTurn(ctx context.Context, viewerID, creatorName, message string) (string, error) {
	key := domain.Key(viewerID, creatorName)

	lock, _ := d.turnLocks.LoadOrStore(key, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	mutex.Lock()
	defer mutex.Unlock()

	sess, err := d.sessions.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("load session %s: %w", key, err)
	}

	if sess == nil {
		return d.beginSession(ctx, viewerID, creatorName)
	}

	if isEndSentinel(message) {
		return d.endSession(ctx, sess, message)
	}

	if sess.AwaitingConsent {
		return d.handleConsent(ctx, sess, message)
	}

	switch sess.Strategy {
	case domain.StrategyDelegated:
		return d.delegatedTurn(ctx, sess, message)
	default:
		return d.scriptedTurn(ctx, sess, message)
	}
}

// beginSession creates the session, flips the strategy coin, and emits
// the shared intro/consent message. No category question is asked yet.
func (d *Dispatcher) beginSession(ctx context.Context, viewerID, creatorName string) (string, error) {
	strategy := d.flipStrategy()

	sess := &domain.ViewerSession{
		ViewerID:        viewerID,
		CreatorName:     creatorName,
		Strategy:        strategy,
		AwaitingConsent: true,
		PriorUtterances: make(map[string]bool),
	}

	intro := introMessage(creatorName)
	sess.AppendTurn(domain.SpeakerAssistant, intro)

	if err := d.sessions.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	if err := d.repo.SaveStrategyAssignment(ctx, viewerID, creatorName, strategy); err != nil {
		d.logger.Warn("failed to persist strategy assignment",
			"viewer_id", viewerID, "creator", creatorName, "error", err)
	}
	d.recordTurn(ctx, sess, domain.SpeakerAssistant, intro)

	d.logger.Info("session started",
		"viewer_id", viewerID, "creator", creatorName, "strategy", strategy)
	return intro, nil
}

// endSession destroys the session so the next message from this viewer
// starts over from the intro.
func (d *Dispatcher) endSession(ctx context.Context, sess *domain.ViewerSession, message string) (string, error) {
	d.recordTurn(ctx, sess, domain.SpeakerViewer, message)
	d.recordTurn(ctx, sess, domain.SpeakerAssistant, closingMessage)

	key := domain.Key(sess.ViewerID, sess.CreatorName)
	if err := d.sessions.Delete(ctx, key); err != nil {
		return "", fmt.Errorf("destroy session %s: %w", key, err)
	}

	d.logger.Info("session ended", "viewer_id", sess.ViewerID, "creator", sess.CreatorName)
	return closingMessage, nil
}

// handleConsent gates the interview behind the intro disclaimer. Nothing
// advances until the viewer replies with the consent token. Once consent
// lands, the scripted path asks its first question; the delegated path
// hands the consent turn straight to the backend.
func (d *Dispatcher) handleConsent(ctx context.Context, sess *domain.ViewerSession, message string) (string, error) {
	if !isConsent(message) {
		sess.AppendTurn(domain.SpeakerViewer, message)
		sess.AppendTurn(domain.SpeakerAssistant, consentReprompt)
		if err := d.sessions.Save(ctx, sess); err != nil {
			return "", fmt.Errorf("save session: %w", err)
		}
		d.recordTurn(ctx, sess, domain.SpeakerViewer, message)
		d.recordTurn(ctx, sess, domain.SpeakerAssistant, consentReprompt)
		return consentReprompt, nil
	}

	sess.AwaitingConsent = false

	if sess.Strategy == domain.StrategyDelegated {
		return d.delegatedTurn(ctx, sess, message)
	}

	sess.AppendTurn(domain.SpeakerViewer, message)
	reply := d.machine.FirstQuestion(sess.CreatorName)
	sess.AppendTurn(domain.SpeakerAssistant, reply)

	if err := d.sessions.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	d.recordTurn(ctx, sess, domain.SpeakerViewer, message)
	d.recordTurn(ctx, sess, domain.SpeakerAssistant, reply)
	return reply, nil
}

func (d *Dispatcher) scriptedTurn(ctx context.Context, sess *domain.ViewerSession, message string) (string, error) {
	reply := d.machine.Step(sess, message)

	if err := d.sessions.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	d.recordTurn(ctx, sess, domain.SpeakerViewer, message)
	d.recordTurn(ctx, sess, domain.SpeakerAssistant, reply)
	return reply, nil
}

// delegatedTurn forwards the full accumulated history to the backend and
// returns its completion verbatim. Backend failures yield the fixed
// fallback reply; the turn is still logged.
func (d *Dispatcher) delegatedTurn(ctx context.Context, sess *domain.ViewerSession, message string) (string, error) {
	sess.AppendTurn(domain.SpeakerViewer, message)

	if sess.SystemPrompt == "" {
		sess.SystemPrompt = delegatedSystemPrompt(sess.CreatorName)
	}

	reply, err := d.backend.Complete(ctx, sess.SystemPrompt, historyFromLog(sess.TurnLog), delegatedMaxTokens, delegatedTemperature)
	if err != nil {
		d.logger.Error("delegated completion failed",
			"viewer_id", sess.ViewerID, "creator", sess.CreatorName, "error", err)
		reply = fallbackReply
	}
	sess.AppendTurn(domain.SpeakerAssistant, reply)

	if err := d.sessions.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	d.recordTurn(ctx, sess, domain.SpeakerViewer, message)
	d.recordTurn(ctx, sess, domain.SpeakerAssistant, reply)
	return reply, nil
}

func (d *Dispatcher) flipStrategy() domain.Strategy {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	if d.rng.Intn(2) == 0 {
		return domain.StrategyScripted
	}
	return domain.StrategyDelegated
}

// recordTurn appends to the durable transcript. Losing a turn is
// tolerated; losing the session itself is not, so failures here only
// warn.
func (d *Dispatcher) recordTurn(ctx context.Context, sess *domain.ViewerSession, speaker domain.Speaker, text string) {
	if err := d.repo.AppendTurn(ctx, sess.ViewerID, sess.CreatorName, speaker, text); err != nil {
		d.logger.Warn("failed to persist turn",
			"viewer_id", sess.ViewerID, "creator", sess.CreatorName, "speaker", speaker, "error", err)
	}
}

func historyFromLog(turns []domain.Turn) []textgen.Message {
	history := make([]textgen.Message, 0, len(turns))
	for _, t := range turns {
		role := textgen.RoleAssistant
		if t.Speaker == domain.SpeakerViewer {
			role = textgen.RoleUser
		}
		history = append(history, textgen.Message{Role: role, Text: t.Text})
	}
	return history
}
