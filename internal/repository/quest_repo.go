package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kiddoquest/internal/database"
	"kiddoquest/internal/models"
)

// QuestRepository handles database operations for quests and quest templates
type QuestRepository struct {
	db database.DBTX
}

// NewQuestRepository creates a new quest repository
func NewQuestRepository(db database.DBTX) *QuestRepository {
	return &QuestRepository{db: db}
}

const questColumns = `id, family_id, assigned_to, title, description, category, difficulty, xp_reward,
	status, template_id, penalty_id, due_at, completed_at, created_at`

func scanQuest(s rowScanner) (*models.Quest, error) {
	q := &models.Quest{}
	var dueAt, completedAt sql.NullTime
	err := s.Scan(&q.ID, &q.FamilyID, &q.AssignedTo, &q.Title, &q.Description, &q.Category, &q.Difficulty,
		&q.XPReward, &q.Status, &q.TemplateID, &q.PenaltyID, &dueAt, &completedAt, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	q.DueAt = timePtr(dueAt)
	q.CompletedAt = timePtr(completedAt)
	return q, nil
}

// CreateQuest inserts a quest
func (r *QuestRepository) CreateQuest(ctx context.Context, q *models.Quest) error {
	query := "INSERT INTO quests (" + questColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := r.db.ExecContext(ctx, query, q.ID, q.FamilyID, q.AssignedTo, q.Title, q.Description, q.Category,
		q.Difficulty, q.XPReward, q.Status, q.TemplateID, q.PenaltyID, nullTime(q.DueAt), nullTime(q.CompletedAt),
		utc(q.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create quest: %w", err)
	}
	return nil
}

// GetQuestByID retrieves a quest by ID
func (r *QuestRepository) GetQuestByID(ctx context.Context, questID string) (*models.Quest, error) {
	query := "SELECT " + questColumns + " FROM quests WHERE id = ?"
	q, err := scanQuest(r.db.QueryRowContext(ctx, query, questID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quest: %w", err)
	}
	return q, nil
}

// GetOverdueQuests returns pending quests whose due time passed before now
func (r *QuestRepository) GetOverdueQuests(ctx context.Context, now time.Time, limit int) ([]models.Quest, error) {
	query := "SELECT " + questColumns + ` FROM quests
		WHERE status = ? AND due_at IS NOT NULL AND due_at < ?
		ORDER BY due_at, id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, models.QuestPending, utc(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue quests: %w", err)
	}
	defer rows.Close()

	var quests []models.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quest: %w", err)
		}
		quests = append(quests, *q)
	}
	return quests, rows.Err()
}

// MarkMissed flips a pending quest to missed. It reports false when the quest
// was no longer pending, so each quest is flagged at most once.
func (r *QuestRepository) MarkMissed(ctx context.Context, questID string) (bool, error) {
	query := "UPDATE quests SET status = ? WHERE id = ? AND status = ?"
	res, err := r.db.ExecContext(ctx, query, models.QuestMissed, questID, models.QuestPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark quest missed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark quest missed: %w", err)
	}
	return n == 1, nil
}

// MarkCompleted flips a pending quest assigned to childID in familyID to
// completed; false if no such pending quest exists
func (r *QuestRepository) MarkCompleted(ctx context.Context, questID, familyID, childID string, at time.Time) (bool, error) {
	query := `UPDATE quests SET status = ?, completed_at = ?
		WHERE id = ? AND family_id = ? AND assigned_to = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, models.QuestCompleted, utc(at), questID, familyID, childID, models.QuestPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark quest completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark quest completed: %w", err)
	}
	return n == 1, nil
}

// CreateTemplate inserts a quest template
func (r *QuestRepository) CreateTemplate(ctx context.Context, t *models.QuestTemplate) error {
	query := `INSERT INTO quest_templates (id, family_id, title, description, category, difficulty, xp_reward, duration_hours)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, t.ID, t.FamilyID, t.Title, t.Description, t.Category, t.Difficulty,
		t.XPReward, t.DurationHours)
	if err != nil {
		return fmt.Errorf("failed to create quest template: %w", err)
	}
	return nil
}

// GetTemplateByID retrieves a quest template by ID
func (r *QuestRepository) GetTemplateByID(ctx context.Context, templateID string) (*models.QuestTemplate, error) {
	query := `SELECT id, family_id, title, description, category, difficulty, xp_reward, duration_hours
		FROM quest_templates WHERE id = ?`
	t := &models.QuestTemplate{}
	err := r.db.QueryRowContext(ctx, query, templateID).Scan(&t.ID, &t.FamilyID, &t.Title, &t.Description,
		&t.Category, &t.Difficulty, &t.XPReward, &t.DurationHours)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quest template: %w", err)
	}
	return t, nil
}
