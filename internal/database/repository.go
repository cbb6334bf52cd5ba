package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

// Append stores one usage record.
func (db *DB) Append(ctx context.Context, rec *models.UsageRecord) error {
	params, err := json.Marshal(rec.Parameters)
	if err != nil {
		return fmt.Errorf("encoding parameters: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO api_usage (
			id, user_id, provider, prompt, response_time_ms, status, parameters, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.UserID, string(rec.Provider), rec.Prompt, rec.ResponseTimeMs,
		string(rec.Status), params, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

// ProviderStats aggregates usage rows per provider. An empty userID
// aggregates every user. Any status other than success counts as an error.
func (db *DB) ProviderStats(ctx context.Context, userID string) ([]models.ProviderStat, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT
			provider,
			COUNT(*) AS total_calls,
			COUNT(*) FILTER (WHERE status <> 'success') AS error_calls,
			COALESCE(AVG(response_time_ms), 0)::float8 AS avg_response_time_ms
		FROM api_usage
		WHERE ($1::text = '' OR user_id = $1)
		GROUP BY provider
		ORDER BY provider
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying provider stats: %w", err)
	}
	defer rows.Close()

	var results []models.ProviderStat
	for rows.Next() {
		var s models.ProviderStat
		var provider string
		if err := rows.Scan(&provider, &s.TotalCalls, &s.ErrorCalls, &s.AvgResponseTimeMs); err != nil {
			return nil, fmt.Errorf("scanning provider stat: %w", err)
		}
		s.Provider = models.Provider(provider)
		results = append(results, s)
	}
	return results, rows.Err()
}

// DailyUsage counts a user's usage rows per UTC day since the given time.
func (db *DB) DailyUsage(ctx context.Context, userID string, since time.Time) ([]models.DailyCount, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT
			to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			COUNT(*)
		FROM api_usage
		WHERE user_id = $1 AND created_at >= $2
		GROUP BY day
		ORDER BY day
	`, userID, since)
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
func (db *DB) RecentUsage(ctx context.Context, userID string, limit int) ([]models.UsageRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_id, provider, prompt, response_time_ms, status, parameters, created_at
		FROM api_usage
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent usage: %w", err)
	}
	defer rows.Close()

	var results []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		var provider, status string
		var params []byte
		if err := rows.Scan(&r.ID, &r.UserID, &provider, &r.Prompt, &r.ResponseTimeMs, &status, &params, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning usage record: %w", err)
		}
		if err := json.Unmarshal(params, &r.Parameters); err != nil {
			return nil, fmt.Errorf("decoding parameters of %s: %w", r.ID, err)
		}
		r.Provider = models.Provider(provider)
		r.Status = models.UsageStatus(status)
		results = append(results, r)
	}
	return results, rows.Err()
}
