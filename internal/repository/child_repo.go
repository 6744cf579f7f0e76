package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kiddoquest/internal/database"
	"kiddoquest/internal/models"
)

// ChildRepository handles database operations for child profiles
type ChildRepository struct {
	db database.DBTX
}

// NewChildRepository creates a new child repository
func NewChildRepository(db database.DBTX) *ChildRepository {
	return &ChildRepository{db: db}
}

const childColumns = "id, family_id, name, xp, version, created_at, updated_at"

func scanChild(s rowScanner) (*models.Child, error) {
	child := &models.Child{}
	err := s.Scan(
		&child.ID,
		&child.FamilyID,
		&child.Name,
		&child.XP,
		&child.Version,
		&child.CreatedAt,
		&child.UpdatedAt,
	)
	return child, err
}

// CreateChild inserts a child profile at version 1
func (r *ChildRepository) CreateChild(ctx context.Context, child *models.Child) error {
	child.Version = 1
	query := "INSERT INTO children (" + childColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)"
	_, err := r.db.ExecContext(ctx, query, child.ID, child.FamilyID, child.Name, child.XP, child.Version,
		utc(child.CreatedAt), utc(child.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create child: %w", err)
	}
	return nil
}

// GetChildByID retrieves a child by ID
func (r *ChildRepository) GetChildByID(ctx context.Context, childID string) (*models.Child, error) {
	query := "SELECT " + childColumns + " FROM children WHERE id = ?"
	child, err := scanChild(r.db.QueryRowContext(ctx, query, childID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get child: %w", err)
	}
	return child, nil
}

// GetFamilyChildren retrieves all children in a family
func (r *ChildRepository) GetFamilyChildren(ctx context.Context, familyID string) ([]models.Child, error) {
	query := "SELECT " + childColumns + " FROM children WHERE family_id = ? ORDER BY created_at ASC, id"
	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query children: %w", err)
	}
	defer rows.Close()

	var children []models.Child
	for rows.Next() {
		child, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan child: %w", err)
		}
		children = append(children, *child)
	}
	return children, rows.Err()
}

// UpdateXP writes a new XP balance if the row still has child.Version.
// On success child.Version is advanced; a stale version yields database.ErrConflict.
func (r *ChildRepository) UpdateXP(ctx context.Context, child *models.Child, xp int, now time.Time) error {
	query := "UPDATE children SET xp = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?"
	res, err := r.db.ExecContext(ctx, query, xp, utc(now), child.ID, child.Version)
	if err != nil {
		return fmt.Errorf("failed to update child xp: %w", err)
	}
	if err := database.ExpectOneRow(res); err != nil {
		return err
	}
	child.XP = xp
	child.Version++
	child.UpdatedAt = now
	return nil
}
