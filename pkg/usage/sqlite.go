package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// JournalMode is the SQLite journal mode. WAL gives concurrent readers.
	// Default: "WAL"
	JournalMode string
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:        "./ganymede-usage.db",
		BusyTimeout: 5 * time.Second,
		JournalMode: "WAL",
	}
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id          TEXT PRIMARY KEY,
	principal   TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	latency_ms  INTEGER NOT NULL,
	created_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_created_at ON usage_records(created_at);
CREATE INDEX IF NOT EXISTS idx_usage_principal ON usage_records(principal);
CREATE INDEX IF NOT EXISTS idx_usage_model ON usage_records(model);
`

// SQLiteStore implements the Store interface on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the usage database and applies the schema.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage database %q: %w", config.Path, err)
	}

	if config.BusyTimeout > 0 {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", config.BusyTimeout.Milliseconds())); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
	}
	if config.JournalMode != "" {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA journal_mode = %s", config.JournalMode)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set journal mode: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize usage schema: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: slog.Default().With("component", "usage.sqlite"),
	}
	s.logger.Info("usage database opened",
		"path", config.Path,
		"journal_mode", config.JournalMode,
	)
	return s, nil
}

// Insert writes one record.
func (s *SQLiteStore) Insert(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records (id, principal, model, status_code, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Principal, rec.Model, rec.StatusCode,
		rec.Latency.Milliseconds(), rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record %s: %w", rec.ID, err)
	}
	return nil
}

// defaultQueryLimit caps unbounded queries.
const defaultQueryLimit = 100

// Query returns matching records, newest first.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]*Record, error) {
	where, args := buildWhere(f)
	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, principal, model, status_code, latency_ms, created_at
		 FROM usage_records`+where+` ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var latencyMS int64
		if err := rows.Scan(&rec.ID, &rec.Principal, &rec.Model, &rec.StatusCode, &latencyMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		rec.Latency = time.Duration(latencyMS) * time.Millisecond
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Count returns the number of matching records.
func (s *SQLiteStore) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := buildWhere(f)

	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_records`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage records: %w", err)
	}
	return count, nil
}

// Summarize aggregates matching records.
func (s *SQLiteStore) Summarize(ctx context.Context, f Filter) (*Summary, error) {
	where, args := buildWhere(f)

	summary := &Summary{ByModel: make(map[string]int64)}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status_code >= 300 THEN 1 ELSE 0 END), 0)
		 FROM usage_records`+where, args...).Scan(&summary.Requests, &summary.Errors)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT model, COUNT(*) FROM usage_records`+where+` GROUP BY model`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage by model: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var model string
		var count int64
		if err := rows.Scan(&model, &count); err != nil {
			return nil, fmt.Errorf("failed to scan model summary: %w", err)
		}
		summary.ByModel[model] = count
	}
	return summary, rows.Err()
}

// DeleteBefore removes records created before the cutoff.
func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM usage_records WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete usage records: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete count: %w", err)
	}
	return deleted, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// buildWhere assembles the WHERE clause for a filter.
func buildWhere(f Filter) (string, []any) {
	var conds []string
	var args []any

	if f.Principal != "" {
		conds = append(conds, "principal = ?")
		args = append(args, f.Principal)
	}
	if f.Model != "" {
		conds = append(conds, "model = ?")
		args = append(args, f.Model)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
