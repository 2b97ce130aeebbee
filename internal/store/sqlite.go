package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/evalubot/evalubot/internal/domain"
	"github.com/evalubot/evalubot/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // Serializes hot write paths to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		viewer_id TEXT NOT NULL,
		creator_name TEXT NOT NULL COLLATE NOCASE,
		speaker TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_creator ON chat_messages(creator_name);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_viewer ON chat_messages(viewer_id, creator_name);

	CREATE TABLE IF NOT EXISTS strategy_assignments (
		viewer_id TEXT NOT NULL,
		creator_name TEXT NOT NULL COLLATE NOCASE,
		strategy TEXT NOT NULL,
		assigned_at INTEGER NOT NULL,
		PRIMARY KEY (viewer_id, creator_name)
	);

	CREATE TABLE IF NOT EXISTS chat_summaries (
		creator_name TEXT PRIMARY KEY COLLATE NOCASE,
		why_viewers_watch TEXT NOT NULL,
		how_to_improve TEXT NOT NULL,
		content_production TEXT NOT NULL,
		community_management TEXT NOT NULL,
		marketing_strategy TEXT NOT NULL,
		generated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AppendTurn durably records one conversation turn.
// Retries with exponential backoff on SQLITE_BUSY, which can occur when
// the summary worker is writing at the same time.
func (s *SQLiteStore) AppendTurn(ctx context.Context, viewerID, creatorName string, speaker domain.Speaker, text string) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.appendTurnOnce(ctx, viewerID, creatorName, speaker, text)
		if err == nil {
			return nil
		}
		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("AppendTurn hit SQLITE_BUSY, retrying",
				"viewer_id", viewerID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}
		break
	}
	return fmt.Errorf("append turn for %s after retries: %w", viewerID, err)
}

func (s *SQLiteStore) appendTurnOnce(ctx context.Context, viewerID, creatorName string, speaker domain.Speaker, text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `INSERT INTO chat_messages (viewer_id, creator_name, speaker, message, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, viewerID, creatorName, string(speaker), text, time.Now().Unix()); err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// SaveStrategyAssignment records the strategy assigned to a viewer.
func (s *SQLiteStore) SaveStrategyAssignment(ctx context.Context, viewerID, creatorName string, strategy domain.Strategy) error {
	query := `
	INSERT INTO strategy_assignments (viewer_id, creator_name, strategy, assigned_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(viewer_id, creator_name) DO UPDATE SET
		strategy = excluded.strategy,
		assigned_at = excluded.assigned_at`

	if _, err := s.db.ExecContext(ctx, query, viewerID, creatorName, string(strategy), time.Now().Unix()); err != nil {
		return fmt.Errorf("save strategy assignment: %w", err)
	}
	return nil
}

// GetStrategyAssignment returns the recorded strategy for a viewer.
func (s *SQLiteStore) GetStrategyAssignment(ctx context.Context, viewerID, creatorName string) (domain.Strategy, error) {
	query := `SELECT strategy FROM strategy_assignments WHERE viewer_id = ? AND creator_name = ?`

	var strategy string
	err := s.db.QueryRowContext(ctx, query, viewerID, creatorName).Scan(&strategy)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan strategy assignment: %w", err)
	}
	return domain.Strategy(strategy), nil
}

// ListTurns returns a creator's full transcript in append order.
func (s *SQLiteStore) ListTurns(ctx context.Context, creatorName string) ([]StoredTurn, error) {
	query := `
		SELECT id, viewer_id, creator_name, speaker, message, created_at
		FROM chat_messages WHERE creator_name = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, creatorName)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close transcript rows", "error", closeErr)
		}
	}()

	var turns []StoredTurn
	for rows.Next() {
		var turn StoredTurn
		var speaker string
		var createdAt int64

		if err := rows.Scan(&turn.ID, &turn.ViewerID, &turn.CreatorName, &speaker, &turn.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turn.Speaker = domain.Speaker(speaker)
		turn.CreatedAt = time.Unix(createdAt, 0)
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	return turns, nil
}

// CountDistinctViewers counts viewers with at least one turn for the creator.
func (s *SQLiteStore) CountDistinctViewers(ctx context.Context, creatorName string) (int, error) {
	query := `SELECT COUNT(DISTINCT viewer_id) FROM chat_messages WHERE creator_name = ?`

	var count int
	if err := s.db.QueryRowContext(ctx, query, creatorName).Scan(&count); err != nil {
		return 0, fmt.Errorf("count distinct viewers: %w", err)
	}
	return count, nil
}

// ListCreatorsNeedingSummary returns creators at or above the viewer
// threshold whose transcripts have grown since their last summary.
func (s *SQLiteStore) ListCreatorsNeedingSummary(ctx context.Context, minViewers int) ([]string, error) {
	query := `
		SELECT m.creator_name
		FROM chat_messages m
		LEFT JOIN chat_summaries su ON su.creator_name = m.creator_name
		GROUP BY m.creator_name
		HAVING COUNT(DISTINCT m.viewer_id) >= ?
		   AND (MAX(su.generated_at) IS NULL OR MAX(m.created_at) > MAX(su.generated_at))`

	rows, err := s.db.QueryContext(ctx, query, minViewers)
	if err != nil {
		return nil, fmt.Errorf("query creators needing summary: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close creators rows", "error", closeErr)
		}
	}()

	var creators []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan creator row: %w", err)
		}
		creators = append(creators, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate creators: %w", err)
	}

	return creators, nil
}

// UpsertSummary stores or replaces the generated summary for a creator.
func (s *SQLiteStore) UpsertSummary(ctx context.Context, summary *domain.Summary) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
	INSERT INTO chat_summaries (
		creator_name, why_viewers_watch, how_to_improve,
		content_production, community_management, marketing_strategy, generated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(creator_name) DO UPDATE SET
		why_viewers_watch = excluded.why_viewers_watch,
		how_to_improve = excluded.how_to_improve,
		content_production = excluded.content_production,
		community_management = excluded.community_management,
		marketing_strategy = excluded.marketing_strategy,
		generated_at = excluded.generated_at`

	_, err := s.db.ExecContext(ctx, query,
		summary.CreatorName, summary.WhyViewersWatch, summary.HowToImprove,
		summary.ContentProduction, summary.CommunityManagement, summary.MarketingStrategy,
		summary.GeneratedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

// GetSummary returns the stored summary for a creator.
func (s *SQLiteStore) GetSummary(ctx context.Context, creatorName string) (*domain.Summary, error) {
	query := `
		SELECT creator_name, why_viewers_watch, how_to_improve,
		       content_production, community_management, marketing_strategy, generated_at
		FROM chat_summaries WHERE creator_name = ?`

	var summary domain.Summary
	var generatedAt int64

	err := s.db.QueryRowContext(ctx, query, creatorName).Scan(
		&summary.CreatorName, &summary.WhyViewersWatch, &summary.HowToImprove,
		&summary.ContentProduction, &summary.CommunityManagement, &summary.MarketingStrategy,
		&generatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan summary row: %w", err)
	}

	summary.GeneratedAt = time.Unix(generatedAt, 0)
	return &summary, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
