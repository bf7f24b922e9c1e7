package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/commerce-admin-api/internal/models"
)

var emptyMeta = types.JSONText(`{}`)

// ActivityRepository stores the per-user activity trail.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs an ActivityRepository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Insert appends an entry.
func (r *ActivityRepository) Insert(ctx context.Context, entry *models.ActivityLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	// an empty JSONText would be sent as "", which jsonb rejects
	var meta interface{}
	if len(entry.Meta) > 0 {
		meta = entry.Meta
	}
	const query = `INSERT INTO activity_logs (user_id, action, ip, user_agent, request_id, method, url, latency_ms, meta, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query,
		entry.UserID, entry.Action, entry.IP, entry.UserAgent, entry.RequestID,
		entry.Method, entry.URL, entry.LatencyMS, meta, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}

// ListRecentForUser returns up to limit entries for userID, newest first.
func (r *ActivityRepository) ListRecentForUser(ctx context.Context, userID string, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, user_id, action, ip, user_agent, request_id, method, url, latency_ms, meta, created_at
FROM activity_logs WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	logs := []models.ActivityLog{}
	if err := r.db.SelectContext(ctx, &logs, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list activity logs: %w", err)
	}
	for i := range logs {
		// NULL meta scans as an empty JSONText
		if len(logs[i].Meta) == 0 {
			logs[i].Meta = emptyMeta
		}
	}
	return logs, nil
}
