package repository

import (
	"context"
	"database/sql"
	"fmt"

	"kiddoquest/internal/database"
	"kiddoquest/internal/models"
)

// OffenseRepository persists per-child, per-rule offense counters
type OffenseRepository struct {
	db database.DBTX
}

// NewOffenseRepository creates a new offense repository
func NewOffenseRepository(db database.DBTX) *OffenseRepository {
	return &OffenseRepository{db: db}
}

// GetCounter returns the counter for a child and rule, or nil
func (r *OffenseRepository) GetCounter(ctx context.Context, childID, ruleID string) (*models.OffenseCounter, error) {
	query := "SELECT child_id, rule_id, count, last_offense_at, version FROM offense_counters WHERE child_id = ? AND rule_id = ?"
	c := &models.OffenseCounter{}
	err := r.db.QueryRowContext(ctx, query, childID, ruleID).Scan(&c.ChildID, &c.RuleID, &c.Count, &c.LastOffenseAt, &c.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get offense counter: %w", err)
	}
	return c, nil
}

// SaveCounter inserts a counter with Version 0, otherwise updates it if the
// stored version still matches. Racing writers get database.ErrConflict
// (or a uniqueness error the dialect classifies as one).
func (r *OffenseRepository) SaveCounter(ctx context.Context, c *models.OffenseCounter) error {
	if c.Version == 0 {
		query := "INSERT INTO offense_counters (child_id, rule_id, count, last_offense_at, version) VALUES (?, ?, ?, ?, 1)"
		if _, err := r.db.ExecContext(ctx, query, c.ChildID, c.RuleID, c.Count, utc(c.LastOffenseAt)); err != nil {
			return fmt.Errorf("failed to create offense counter: %w", err)
		}
		c.Version = 1
		return nil
	}

	query := `UPDATE offense_counters SET count = ?, last_offense_at = ?, version = version + 1
		WHERE child_id = ? AND rule_id = ? AND version = ?`
	res, err := r.db.ExecContext(ctx, query, c.Count, utc(c.LastOffenseAt), c.ChildID, c.RuleID, c.Version)
	if err != nil {
		return fmt.Errorf("failed to update offense counter: %w", err)
	}
	if err := database.ExpectOneRow(res); err != nil {
		return err
	}
	c.Version++
	return nil
}
