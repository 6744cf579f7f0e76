package repository

import (
	"context"
	"database/sql"
	"fmt"

	"kiddoquest/internal/database"
	"kiddoquest/internal/models"
)

// FamilyRepository handles database operations for families
type FamilyRepository struct {
	db database.DBTX
}

// NewFamilyRepository creates a new family repository
func NewFamilyRepository(db database.DBTX) *FamilyRepository {
	return &FamilyRepository{db: db}
}

// CreateFamily inserts a family
func (r *FamilyRepository) CreateFamily(ctx context.Context, family *models.Family) error {
	query := "INSERT INTO families (id, name, timezone, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"
	_, err := r.db.ExecContext(ctx, query, family.ID, family.Name, family.Timezone, utc(family.CreatedAt), utc(family.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create family: %w", err)
	}
	return nil
}

// GetFamilyByID retrieves a family by ID
func (r *FamilyRepository) GetFamilyByID(ctx context.Context, familyID string) (*models.Family, error) {
	query := "SELECT id, name, timezone, created_at, updated_at FROM families WHERE id = ?"
	family := &models.Family{}
	err := r.db.QueryRowContext(ctx, query, familyID).Scan(
		&family.ID,
		&family.Name,
		&family.Timezone,
		&family.CreatedAt,
		&family.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}

	return family, nil
}

// ListFamilies returns every family, oldest first
func (r *FamilyRepository) ListFamilies(ctx context.Context) ([]models.Family, error) {
	query := "SELECT id, name, timezone, created_at, updated_at FROM families ORDER BY created_at, id"
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query families: %w", err)
	}
	defer rows.Close()

	var families []models.Family
	for rows.Next() {
		var family models.Family
		if err := rows.Scan(&family.ID, &family.Name, &family.Timezone, &family.CreatedAt, &family.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan family: %w", err)
		}
		families = append(families, family)
	}

	return families, rows.Err()
}

// AddFamilyMember adds a user to a family
func (r *FamilyRepository) AddFamilyMember(ctx context.Context, member *models.FamilyMember) error {
	query := "INSERT INTO family_members (family_id, user_id, name, email, role, joined_at) VALUES (?, ?, ?, ?, ?, ?)"
	_, err := r.db.ExecContext(ctx, query, member.FamilyID, member.UserID, member.Name, member.Email, member.Role, utc(member.JoinedAt))
	if err != nil {
		return fmt.Errorf("failed to add family member: %w", err)
	}
	return nil
}

// GetFamilyMember returns the membership of a user in a family, or nil
func (r *FamilyRepository) GetFamilyMember(ctx context.Context, familyID, userID string) (*models.FamilyMember, error) {
	query := "SELECT family_id, user_id, name, email, role, joined_at FROM family_members WHERE family_id = ? AND user_id = ?"
	member := &models.FamilyMember{}
	err := r.db.QueryRowContext(ctx, query, familyID, userID).Scan(
		&member.FamilyID,
		&member.UserID,
		&member.Name,
		&member.Email,
		&member.Role,
		&member.JoinedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family member: %w", err)
	}
	return member, nil
}

// GetGuardians returns the admins and parents of a family
func (r *FamilyRepository) GetGuardians(ctx context.Context, familyID string) ([]models.FamilyMember, error) {
	query := `
		SELECT family_id, user_id, name, email, role, joined_at
		FROM family_members
		WHERE family_id = ? AND role IN (?, ?)
		ORDER BY joined_at
	`
	rows, err := r.db.QueryContext(ctx, query, familyID, models.RoleAdmin, models.RoleParent)
	if err != nil {
		return nil, fmt.Errorf("failed to query guardians: %w", err)
	}
	defer rows.Close()

	var members []models.FamilyMember
	for rows.Next() {
		var m models.FamilyMember
		if err := rows.Scan(&m.FamilyID, &m.UserID, &m.Name, &m.Email, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan family member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
