package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens the database at dataSourceName and ensures the schema.
func NewSQLiteStore(dataSourceName string, logger zerolog.Logger) (*SQLiteStore, error) {
	componentLogger := logger.With().Str("component", "SQLiteStore").Logger()
	componentLogger.Info().Str("db_path", dataSourceName).Msg("Initializing state store")

	dbDir := filepath.Dir(dataSourceName)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
	}

	dbInstance, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("sql.Open failed for %s: %w", dataSourceName, err)
	}

	s := &SQLiteStore{
		db:     dbInstance,
		logger: componentLogger,
	}
	if err := s.initSchema(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		endpoint TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		UNIQUE(endpoint, channel_id)
	);
	CREATE TABLE IF NOT EXISTS tracked_messages (
		endpoint TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		item_key TEXT NOT NULL,
		message_id TEXT NOT NULL,
		signature TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (endpoint, channel_id, item_key)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return err
	}
	s.logger.Debug().Msg("Schema ensured")
	return nil
}

// GetJobs returns enabled bindings in insertion order.
func (s *SQLiteStore) GetJobs(ctx context.Context) ([]Job, error) {
	return s.queryJobs(ctx, `SELECT endpoint, channel_id, enabled, id FROM jobs WHERE enabled = 1 ORDER BY id`)
}

// ListBindings returns every binding in insertion order.
func (s *SQLiteStore) ListBindings(ctx context.Context) ([]Job, error) {
	return s.queryJobs(ctx, `SELECT endpoint, channel_id, enabled, id FROM jobs ORDER BY id`)
}

func (s *SQLiteStore) queryJobs(ctx context.Context, query string) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		var enabled int
		if err := rows.Scan(&job.Endpoint, &job.ChannelID, &enabled, &job.Position); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		job.Enabled = enabled != 0
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetTrackedMessages returns the job's tracked records ordered by item key.
func (s *SQLiteStore) GetTrackedMessages(ctx context.Context, job Job) ([]TrackedMessage, error) {
	query := `SELECT endpoint, channel_id, item_key, message_id, signature, content, updated_at
		FROM tracked_messages WHERE endpoint = ? AND channel_id = ? ORDER BY item_key`
	rows, err := s.db.QueryContext(ctx, query, job.Endpoint, job.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked messages: %w", err)
	}
	defer rows.Close()

	var msgs []TrackedMessage
	for rows.Next() {
		var msg TrackedMessage
		if err := rows.Scan(&msg.Endpoint, &msg.ChannelID, &msg.ItemKey, &msg.MessageID, &msg.Signature, &msg.Content, &msg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tracked message row: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// PutTrackedMessages replaces the job's tracked set in one transaction.
func (s *SQLiteStore) PutTrackedMessages(ctx context.Context, job Job, msgs []TrackedMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tracked_messages WHERE endpoint = ? AND channel_id = ?`,
		job.Endpoint, job.ChannelID); err != nil {
		return fmt.Errorf("failed to clear previous tracked messages: %w", err)
	}

	now := time.Now().UTC()
	for _, msg := range msgs {
		updatedAt := msg.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tracked_messages (endpoint, channel_id, item_key, message_id, signature, content, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			job.Endpoint, job.ChannelID, msg.ItemKey, msg.MessageID, msg.Signature, msg.Content, updatedAt); err != nil {
			return fmt.Errorf("failed to insert tracked message %q: %w", msg.ItemKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tracked messages: %w", err)
	}
	s.logger.Debug().
		Str("endpoint", job.Endpoint).
		Str("channel_id", job.ChannelID).
		Int("count", len(msgs)).
		Msg("Replaced tracked message set")
	return nil
}

// ClearTrackedMessages drops tracked records for the scope, leaving job rows
// intact.
func (s *SQLiteStore) ClearTrackedMessages(ctx context.Context, scope ClearScope) error {
	var err error
	if scope.ChannelID == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM tracked_messages`)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM tracked_messages WHERE channel_id = ?`, scope.ChannelID)
	}
	if err != nil {
		return fmt.Errorf("failed to clear tracked messages: %w", err)
	}
	return nil
}

// BindChannel creates or re-enables the binding for (endpoint, channel).
func (s *SQLiteStore) BindChannel(ctx context.Context, endpoint, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (endpoint, channel_id, enabled) VALUES (?, ?, 1)
		 ON CONFLICT(endpoint, channel_id) DO UPDATE SET enabled = 1`,
		endpoint, channelID)
	if err != nil {
		return fmt.Errorf("failed to bind channel: %w", err)
	}
	s.logger.Info().Str("endpoint", endpoint).Str("channel_id", channelID).Msg("Bound channel")
	return nil
}

// UnbindChannel removes the binding and its tracked records.
func (s *SQLiteStore) UnbindChannel(ctx context.Context, endpoint, channelID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM jobs WHERE endpoint = ? AND channel_id = ?`, endpoint, channelID); err != nil {
		return fmt.Errorf("failed to unbind channel: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tracked_messages WHERE endpoint = ? AND channel_id = ?`, endpoint, channelID); err != nil {
		return fmt.Errorf("failed to drop tracked messages for binding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit unbind: %w", err)
	}
	s.logger.Info().Str("endpoint", endpoint).Str("channel_id", channelID).Msg("Unbound channel")
	return nil
}

// SetEndpointEnabled toggles every binding of an endpoint.
func (s *SQLiteStore) SetEndpointEnabled(ctx context.Context, endpoint string, enabled bool) error {
	value := 0
	if enabled {
		value = 1
	}
	result, err := s.db.ExecContext(ctx, `UPDATE jobs SET enabled = ? WHERE endpoint = ?`, value, endpoint)
	if err != nil {
		return fmt.Errorf("failed to toggle endpoint %q: %w", endpoint, err)
	}
	affected, _ := result.RowsAffected()
	s.logger.Info().
		Str("endpoint", endpoint).
		Bool("enabled", enabled).
		Int64("bindings", affected).
		Msg("Toggled endpoint bindings")
	return nil
}
