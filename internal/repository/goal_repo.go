package repository

import (
	"context"
	"database/sql"
	"fmt"

	"kiddoquest/internal/database"
	"kiddoquest/internal/models"
)

// GoalRepository handles database operations for family goals
type GoalRepository struct {
	db database.DBTX
}

// NewGoalRepository creates a new goal repository
func NewGoalRepository(db database.DBTX) *GoalRepository {
	return &GoalRepository{db: db}
}

const goalColumns = "id, family_id, title, goal_type, category, target_value, current_progress, status, completed_at, created_at, version"

func scanGoal(s rowScanner) (*models.FamilyGoal, error) {
	g := &models.FamilyGoal{}
	var completedAt sql.NullTime
	err := s.Scan(&g.ID, &g.FamilyID, &g.Title, &g.Type, &g.Category, &g.TargetValue,
		&g.CurrentProgress, &g.Status, &completedAt, &g.CreatedAt, &g.Version)
	if err != nil {
		return nil, err
	}
	g.CompletedAt = timePtr(completedAt)
	return g, nil
}

// CreateGoal inserts a goal at version 1
func (r *GoalRepository) CreateGoal(ctx context.Context, g *models.FamilyGoal) error {
	g.Version = 1
	query := "INSERT INTO family_goals (" + goalColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := r.db.ExecContext(ctx, query, g.ID, g.FamilyID, g.Title, string(g.Type), g.Category, g.TargetValue,
		g.CurrentProgress, string(g.Status), nullTime(g.CompletedAt), utc(g.CreatedAt), g.Version)
	if err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}
	return nil
}

// GetGoalByID retrieves a goal by ID
func (r *GoalRepository) GetGoalByID(ctx context.Context, goalID string) (*models.FamilyGoal, error) {
	query := "SELECT " + goalColumns + " FROM family_goals WHERE id = ?"
	g, err := scanGoal(r.db.QueryRowContext(ctx, query, goalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}
	return g, nil
}

// GetActiveGoals returns a family's active goals
func (r *GoalRepository) GetActiveGoals(ctx context.Context, familyID string) ([]models.FamilyGoal, error) {
	query := "SELECT " + goalColumns + " FROM family_goals WHERE family_id = ? AND status = ? ORDER BY created_at, id"
	return r.queryGoals(ctx, query, familyID, string(models.GoalActive))
}

// GetFamilyGoals returns every goal of a family, completed ones included
func (r *GoalRepository) GetFamilyGoals(ctx context.Context, familyID string) ([]models.FamilyGoal, error) {
	query := "SELECT " + goalColumns + " FROM family_goals WHERE family_id = ? ORDER BY created_at, id"
	return r.queryGoals(ctx, query, familyID)
}

func (r *GoalRepository) queryGoals(ctx context.Context, query string, args ...interface{}) ([]models.FamilyGoal, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	var goals []models.FamilyGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

// UpdateProgress writes progress and status if the row still has g.Version
func (r *GoalRepository) UpdateProgress(ctx context.Context, g *models.FamilyGoal) error {
	query := `UPDATE family_goals SET current_progress = ?, status = ?, completed_at = ?, version = version + 1
		WHERE id = ? AND version = ?`
	res, err := r.db.ExecContext(ctx, query, g.CurrentProgress, string(g.Status), nullTime(g.CompletedAt), g.ID, g.Version)
	if err != nil {
		return fmt.Errorf("failed to update goal: %w", err)
	}
	if err := database.ExpectOneRow(res); err != nil {
		return err
	}
	g.Version++
	return nil
}
