package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kiddoquest/internal/database"
	"kiddoquest/internal/models"
)

// PenaltyRepository handles database operations for applied penalties
type PenaltyRepository struct {
	db database.DBTX
}

// NewPenaltyRepository creates a new penalty repository
func NewPenaltyRepository(db database.DBTX) *PenaltyRepository {
	return &PenaltyRepository{db: db}
}

const penaltyColumns = `id, family_id, child_id, rule_id, rule_name, event_id, trigger_type, severity,
	consequences, offense_number, actual_xp_deduction, status, appealable, applied_at, applied_by,
	expires_at, remedial_quest_id, appealed_at, appeal_reason, appeal_status, appeal_resolved_at,
	appeal_resolved_by, appeal_notes, version`

func scanPenalty(s rowScanner) (*models.AppliedPenalty, error) {
	p := &models.AppliedPenalty{}
	var consequences string
	var expiresAt, appealedAt, resolvedAt sql.NullTime
	err := s.Scan(
		&p.ID,
		&p.FamilyID,
		&p.ChildID,
		&p.RuleID,
		&p.RuleName,
		&p.EventID,
		&p.Trigger,
		&p.Severity,
		&consequences,
		&p.OffenseNumber,
		&p.ActualXPDeduction,
		&p.Status,
		&p.Appealable,
		&p.AppliedAt,
		&p.AppliedBy,
		&expiresAt,
		&p.RemedialQuestID,
		&appealedAt,
		&p.AppealReason,
		&p.AppealStatus,
		&resolvedAt,
		&p.AppealResolvedBy,
		&p.AppealNotes,
		&p.Version,
	)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(consequences, &p.Consequences); err != nil {
		return nil, err
	}
	p.ExpiresAt = timePtr(expiresAt)
	p.AppealedAt = timePtr(appealedAt)
	p.AppealResolvedAt = timePtr(resolvedAt)
	return p, nil
}

func (r *PenaltyRepository) queryPenalties(ctx context.Context, query string, args ...interface{}) ([]models.AppliedPenalty, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query penalties: %w", err)
	}
	defer rows.Close()

	var penalties []models.AppliedPenalty
	for rows.Next() {
		p, err := scanPenalty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan penalty: %w", err)
		}
		penalties = append(penalties, *p)
	}
	return penalties, rows.Err()
}

// CreatePenalty inserts a penalty at version 1
func (r *PenaltyRepository) CreatePenalty(ctx context.Context, p *models.AppliedPenalty) error {
	consequences, err := toJSON(p.Consequences)
	if err != nil {
		return err
	}
	p.Version = 1

	query := "INSERT INTO applied_penalties (" + penaltyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.FamilyID, p.ChildID, p.RuleID, p.RuleName, p.EventID, string(p.Trigger), string(p.Severity),
		consequences, p.OffenseNumber, p.ActualXPDeduction, string(p.Status), p.Appealable,
		utc(p.AppliedAt), p.AppliedBy, nullTime(p.ExpiresAt), p.RemedialQuestID,
		nullTime(p.AppealedAt), p.AppealReason, string(p.AppealStatus), nullTime(p.AppealResolvedAt),
		p.AppealResolvedBy, p.AppealNotes, p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create penalty: %w", err)
	}
	return nil
}

// GetPenaltyByID retrieves a penalty by ID
func (r *PenaltyRepository) GetPenaltyByID(ctx context.Context, penaltyID string) (*models.AppliedPenalty, error) {
	query := "SELECT " + penaltyColumns + " FROM applied_penalties WHERE id = ?"
	p, err := scanPenalty(r.db.QueryRowContext(ctx, query, penaltyID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get penalty: %w", err)
	}
	return p, nil
}

// GetPenaltyByRemedialQuest returns the penalty that created a remedial quest, or nil
func (r *PenaltyRepository) GetPenaltyByRemedialQuest(ctx context.Context, questID string) (*models.AppliedPenalty, error) {
	query := "SELECT " + penaltyColumns + " FROM applied_penalties WHERE remedial_quest_id = ?"
	p, err := scanPenalty(r.db.QueryRowContext(ctx, query, questID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get penalty: %w", err)
	}
	return p, nil
}

// UpdatePenalty writes the mutable lifecycle fields if the row still has
// p.Version. A stale version yields database.ErrConflict.
func (r *PenaltyRepository) UpdatePenalty(ctx context.Context, p *models.AppliedPenalty) error {
	query := `
		UPDATE applied_penalties
		SET status = ?, remedial_quest_id = ?, appealed_at = ?, appeal_reason = ?, appeal_status = ?,
			appeal_resolved_at = ?, appeal_resolved_by = ?, appeal_notes = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		string(p.Status), p.RemedialQuestID, nullTime(p.AppealedAt), p.AppealReason, string(p.AppealStatus),
		nullTime(p.AppealResolvedAt), p.AppealResolvedBy, p.AppealNotes, p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update penalty: %w", err)
	}
	if err := database.ExpectOneRow(res); err != nil {
		return err
	}
	p.Version++
	return nil
}

// GetActivePenalties returns a child's active penalties, oldest first
func (r *PenaltyRepository) GetActivePenalties(ctx context.Context, childID string) ([]models.AppliedPenalty, error) {
	query := "SELECT " + penaltyColumns + " FROM applied_penalties WHERE child_id = ? AND status = ? ORDER BY applied_at, id"
	return r.queryPenalties(ctx, query, childID, string(models.PenaltyActive))
}

// GetFamilyPenalties returns a family's penalties applied at or after since
func (r *PenaltyRepository) GetFamilyPenalties(ctx context.Context, familyID string, since time.Time) ([]models.AppliedPenalty, error) {
	query := "SELECT " + penaltyColumns + " FROM applied_penalties WHERE family_id = ? AND applied_at >= ? ORDER BY applied_at, id"
	return r.queryPenalties(ctx, query, familyID, utc(since))
}

// GetDuePenalties returns active penalties whose cooldown ended at or before
// now. Penalties with an appeal awaiting a decision are left out.
func (r *PenaltyRepository) GetDuePenalties(ctx context.Context, now time.Time, limit int) ([]models.AppliedPenalty, error) {
	query := "SELECT " + penaltyColumns + ` FROM applied_penalties
		WHERE status = ? AND appeal_status <> ? AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at, id LIMIT ?`
	return r.queryPenalties(ctx, query, string(models.PenaltyActive), string(models.AppealPending), utc(now), limit)
}

// CountApplied counts penalties applied to a family in [start, end)
func (r *PenaltyRepository) CountApplied(ctx context.Context, familyID string, start, end time.Time) (int, error) {
	query := "SELECT COUNT(*) FROM applied_penalties WHERE family_id = ? AND applied_at >= ? AND applied_at < ?"
	var count int
	if err := r.db.QueryRowContext(ctx, query, familyID, utc(start), utc(end)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count penalties: %w", err)
	}
	return count, nil
}
