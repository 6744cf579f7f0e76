package repository

import (
	"context"
	"fmt"

	"kiddoquest/internal/database"
	"kiddoquest/internal/models"
)

// SystemLogRepository records summaries of scheduled runs
type SystemLogRepository struct {
	db database.DBTX
}

// NewSystemLogRepository creates a new system log repository
func NewSystemLogRepository(db database.DBTX) *SystemLogRepository {
	return &SystemLogRepository{db: db}
}

// CreateLog stores a run summary
func (r *SystemLogRepository) CreateLog(ctx context.Context, l *models.SystemLog) error {
	query := `INSERT INTO system_logs (id, log_type, processed, applied, failed, details, started_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, l.ID, l.Type, l.Processed, l.Applied, l.Failed, l.Details,
		utc(l.StartedAt), utc(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create system log: %w", err)
	}
	return nil
}

// GetRecentLogs returns the newest logs of a type
func (r *SystemLogRepository) GetRecentLogs(ctx context.Context, logType string, limit int) ([]models.SystemLog, error) {
	query := `SELECT id, log_type, processed, applied, failed, details, started_at, created_at
		FROM system_logs WHERE log_type = ? ORDER BY created_at DESC, id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, logType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query system logs: %w", err)
	}
	defer rows.Close()

	var logs []models.SystemLog
	for rows.Next() {
		var l models.SystemLog
		if err := rows.Scan(&l.ID, &l.Type, &l.Processed, &l.Applied, &l.Failed, &l.Details, &l.StartedAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan system log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
