package summary

import (
	"context"
	"errors"
	"time"
)

// DefaultWorkerInterval is how often the background worker looks for
// creators with fresh feedback.
const DefaultWorkerInterval = 10 * time.Minute

// StartWorker runs a background goroutine that periodically regenerates
// summaries for creators whose transcripts grew since the last digest.
// It stops when ctx is canceled.
func (m *Manager) StartWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultWorkerInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		m.logger.Info("summary worker started", "interval", interval, "min_viewers", m.minViewers)

		for {
			select {
			case <-ticker.C:
				m.sweep(ctx)
			case <-ctx.Done():
				m.logger.Info("summary worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (m *Manager) sweep(ctx context.Context) {
	creators, err := m.repo.ListCreatorsNeedingSummary(ctx, m.minViewers)
	if err != nil {
		m.logger.Error("summary worker failed to list creators", "error", err)
		return
	}
	if len(creators) == 0 {
		return
	}

	m.logger.Info("summary worker found stale summaries", "count", len(creators))

	for _, creator := range creators {
		if _, err := m.Generate(ctx, creator); err != nil {
			// The viewer count can drop under the threshold between the
			// listing and the generation attempt.
			if errors.Is(err, ErrBelowThreshold) {
				continue
			}
			m.logger.Error("summary worker failed to generate summary",
				"creator", creator, "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
