package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kiddoquest/internal/database"
	"kiddoquest/internal/models"
)

// StreakRepository persists activity streaks keyed by child and streak type
type StreakRepository struct {
	db database.DBTX
}

// NewStreakRepository creates a new streak repository
func NewStreakRepository(db database.DBTX) *StreakRepository {
	return &StreakRepository{db: db}
}

const streakColumns = `child_id, streak_type, family_id, current_length, longest_length, start_date,
	last_activity_date, total_active_days, broken, broken_date, version`

func scanStreak(s rowScanner) (*models.Streak, error) {
	st := &models.Streak{}
	var brokenDate sql.NullTime
	err := s.Scan(
		&st.ChildID,
		&st.Type,
		&st.FamilyID,
		&st.CurrentLength,
		&st.LongestLength,
		&st.StartDate,
		&st.LastActivityDate,
		&st.TotalActiveDays,
		&st.Broken,
		&brokenDate,
		&st.Version,
	)
	if err != nil {
		return nil, err
	}
	st.BrokenDate = timePtr(brokenDate)
	return st, nil
}

// GetStreak returns a child's streak of the given type, or nil
func (r *StreakRepository) GetStreak(ctx context.Context, childID, streakType string) (*models.Streak, error) {
	query := "SELECT " + streakColumns + " FROM streaks WHERE child_id = ? AND streak_type = ?"
	st, err := scanStreak(r.db.QueryRowContext(ctx, query, childID, streakType))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}
	return st, nil
}

// SaveStreak inserts a streak with Version 0, otherwise performs a versioned update
func (r *StreakRepository) SaveStreak(ctx context.Context, st *models.Streak) error {
	if st.Version == 0 {
		query := "INSERT INTO streaks (" + streakColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)"
		_, err := r.db.ExecContext(ctx, query,
			st.ChildID, st.Type, st.FamilyID, st.CurrentLength, st.LongestLength, utc(st.StartDate),
			utc(st.LastActivityDate), st.TotalActiveDays, st.Broken, nullTime(st.BrokenDate),
		)
		if err != nil {
			return fmt.Errorf("failed to create streak: %w", err)
		}
		st.Version = 1
		return nil
	}

	query := `
		UPDATE streaks
		SET current_length = ?, longest_length = ?, start_date = ?, last_activity_date = ?,
			total_active_days = ?, broken = ?, broken_date = ?, version = version + 1
		WHERE child_id = ? AND streak_type = ? AND version = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		st.CurrentLength, st.LongestLength, utc(st.StartDate), utc(st.LastActivityDate),
		st.TotalActiveDays, st.Broken, nullTime(st.BrokenDate), st.ChildID, st.Type, st.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update streak: %w", err)
	}
	if err := database.ExpectOneRow(res); err != nil {
		return err
	}
	st.Version++
	return nil
}

// GetStaleStreaks returns unbroken streaks whose last activity is before cutoff
func (r *StreakRepository) GetStaleStreaks(ctx context.Context, cutoff time.Time, limit int) ([]models.Streak, error) {
	query := "SELECT " + streakColumns + ` FROM streaks
		WHERE broken = ? AND last_activity_date < ?
		ORDER BY last_activity_date, child_id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, false, utc(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale streaks: %w", err)
	}
	defer rows.Close()

	var streaks []models.Streak
	for rows.Next() {
		st, err := scanStreak(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan streak: %w", err)
		}
		streaks = append(streaks, *st)
	}
	return streaks, rows.Err()
}

// GetFamilyStreaks returns all streaks of a family's children
func (r *StreakRepository) GetFamilyStreaks(ctx context.Context, familyID string) ([]models.Streak, error) {
	query := "SELECT " + streakColumns + " FROM streaks WHERE family_id = ? ORDER BY child_id"
	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query streaks: %w", err)
	}
	defer rows.Close()

	var streaks []models.Streak
	for rows.Next() {
		st, err := scanStreak(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan streak: %w", err)
		}
		streaks = append(streaks, *st)
	}
	return streaks, rows.Err()
}
