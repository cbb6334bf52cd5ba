package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

// sqliteSchema mirrors postgresSchema. created_at holds unix milliseconds.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS api_usage (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	provider         TEXT NOT NULL,
	prompt           TEXT NOT NULL,
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL,
	parameters       TEXT NOT NULL DEFAULT '{}',
	created_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_api_usage_user_id ON api_usage(user_id);
CREATE INDEX IF NOT EXISTS idx_api_usage_created_at ON api_usage(created_at);
CREATE INDEX IF NOT EXISTS idx_api_usage_provider ON api_usage(provider);
`

// SQLite is the single-file usage store.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; SQLite would otherwise answer SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &SQLite{conn: conn}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// Migrate creates the usage table and its indexes.
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Append stores one usage record.
func (s *SQLite) Append(ctx context.Context, rec *models.UsageRecord) error {
	params, err := json.Marshal(rec.Parameters)
	if err != nil {
		return fmt.Errorf("encoding parameters: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO api_usage (
			id, user_id, provider, prompt, response_time_ms, status, parameters, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.UserID, string(rec.Provider), rec.Prompt, rec.ResponseTimeMs,
		string(rec.Status), string(params), rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

// ProviderStats aggregates usage rows per provider. An empty userID
// aggregates every user. Any status other than success counts as an error.
func (s *SQLite) ProviderStats(ctx context.Context, userID string) ([]models.ProviderStat, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT
			provider,
			COUNT(*),
			SUM(CASE WHEN status <> 'success' THEN 1 ELSE 0 END),
			COALESCE(AVG(response_time_ms), 0)
		FROM api_usage
		WHERE (? = '' OR user_id = ?)
		GROUP BY provider
		ORDER BY provider
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying provider stats: %w", err)
	}
	defer rows.Close()

	var results []models.ProviderStat
	for rows.Next() {
		var st models.ProviderStat
		var provider string
		if err := rows.Scan(&provider, &st.TotalCalls, &st.ErrorCalls, &st.AvgResponseTimeMs); err != nil {
			return nil, fmt.Errorf("scanning provider stat: %w", err)
		}
		st.Provider = models.Provider(provider)
		results = append(results, st)
	}
	return results, rows.Err()
}

// DailyUsage counts a user's usage rows per UTC day since the given time.
func (s *SQLite) DailyUsage(ctx context.Context, userID string, since time.Time) ([]models.DailyCount, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT
			strftime('%Y-%m-%d', created_at / 1000, 'unixepoch') AS day,
			COUNT(*)
		FROM api_usage
		WHERE user_id = ? AND created_at >= ?
		GROUP BY day
		ORDER BY day
	`, userID, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying daily usage: %w", err)
	}
	defer rows.Close()

	var results []models.DailyCount
	for rows.Next() {
		var d models.DailyCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, fmt.Errorf("scanning daily usage: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// RecentUsage returns a user's most recent records, newest first.
func (s *SQLite) RecentUsage(ctx context.Context, userID string, limit int) ([]models.UsageRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, user_id, provider, prompt, response_time_ms, status, parameters, created_at
		FROM api_usage
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent usage: %w", err)
	}
	defer rows.Close()

	var results []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		var provider, status, params string
		var createdMs int64
		if err := rows.Scan(&r.ID, &r.UserID, &provider, &r.Prompt, &r.ResponseTimeMs, &status, &params, &createdMs); err != nil {
			return nil, fmt.Errorf("scanning usage record: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &r.Parameters); err != nil {
			return nil, fmt.Errorf("decoding parameters of %s: %w", r.ID, err)
		}
		r.Provider = models.Provider(provider)
		r.Status = models.UsageStatus(status)
		r.CreatedAt = time.UnixMilli(createdMs).UTC()
		results = append(results, r)
	}
	return results, rows.Err()
}
