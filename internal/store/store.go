// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/evalubot/evalubot/internal/domain"
)

// StoredTurn is one persisted transcript row.
type StoredTurn struct {
	ID          int64          `json:"id"`
	ViewerID    string         `json:"viewer_id"`
	CreatorName string         `json:"creator_name"`
	Speaker     domain.Speaker `json:"speaker"`
	Text        string         `json:"text"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Repository defines the interface for persisting transcripts, strategy
// assignments, and generated summaries.
type Repository interface {
	// AppendTurn durably records one conversation turn.
	AppendTurn(ctx context.Context, viewerID, creatorName string, speaker domain.Speaker, text string) error

	// SaveStrategyAssignment records which strategy a viewer was assigned
	// for a creator. A later assignment (after the viewer ended the prior
	// session) overwrites the row.
	SaveStrategyAssignment(ctx context.Context, viewerID, creatorName string, strategy domain.Strategy) error

	// GetStrategyAssignment returns the recorded strategy, or "" when the
	// viewer has never been assigned one for this creator.
	GetStrategyAssignment(ctx context.Context, viewerID, creatorName string) (domain.Strategy, error)

	// ListTurns returns a creator's full transcript in append order.
	ListTurns(ctx context.Context, creatorName string) ([]StoredTurn, error)

	// CountDistinctViewers counts viewers with at least one turn for the creator.
	CountDistinctViewers(ctx context.Context, creatorName string) (int, error)

	// ListCreatorsNeedingSummary returns creators with at least minViewers
	// distinct viewers whose transcripts grew since the last summary.
	ListCreatorsNeedingSummary(ctx context.Context, minViewers int) ([]string, error)

	// UpsertSummary stores or replaces the generated summary for a creator.
	UpsertSummary(ctx context.Context, summary *domain.Summary) error

	// GetSummary returns the stored summary, or nil when none exists.
	GetSummary(ctx context.Context, creatorName string) (*domain.Summary, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
