// Package counters keeps real-time per-family daily counters with atomic
// increments, either in SQL or in Redis.
package counters

import (
	"context"
	"fmt"
	"sort"

	"kiddoquest/internal/database"
	"kiddoquest/internal/models"
)

// Store increments and reads daily counters. Increments are atomic per
// counter; concurrent callers never lose updates.
type Store interface {
	Increment(ctx context.Context, familyID, day string, deltas map[string]int64) error
	Get(ctx context.Context, familyID, day string) (models.DailyCounters, error)
}

// SQLStore keeps counters in the daily_counters table
type SQLStore struct {
	db database.DBTX
}

// NewSQLStore creates a counter store on db
func NewSQLStore(db database.DBTX) *SQLStore {
	return &SQLStore{db: db}
}

// Increment adds each delta with a single upsert per counter
func (s *SQLStore) Increment(ctx context.Context, familyID, day string, deltas map[string]int64) error {
	query := s.db.GetDialect().IncrementCounterQuery()
	for _, name := range sortedNames(deltas) {
		if _, err := s.db.ExecContext(ctx, query, familyID, day, name, deltas[name]); err != nil {
			return fmt.Errorf("failed to increment counter %s: %w", name, err)
		}
	}
	return nil
}

// Get returns the counters of a family on a day; missing counters are zero
func (s *SQLStore) Get(ctx context.Context, familyID, day string) (models.DailyCounters, error) {
	out := models.DailyCounters{FamilyID: familyID, Date: day}
	rows, err := s.db.QueryContext(ctx, "SELECT name, value FROM daily_counters WHERE family_id = ? AND day = ?", familyID, day)
	if err != nil {
		return out, fmt.Errorf("failed to query counters: %w", err)
	}
	defer rows.Close()

	values := make(map[string]int64)
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return out, fmt.Errorf("failed to scan counter: %w", err)
		}
		values[name] = value
	}
	if err := rows.Err(); err != nil {
		return out, err
	}
	fill(&out, values)
	return out, nil
}

func fill(out *models.DailyCounters, values map[string]int64) {
	out.QuestsCompleted = values[models.CounterQuestsCompleted]
	out.XPEarned = values[models.CounterXPEarned]
	out.RewardsRedeemed = values[models.CounterRewardsRedeemed]
	out.XPSpent = values[models.CounterXPSpent]
	out.PenaltiesApplied = values[models.CounterPenaltiesApplied]
}

// sortedNames keeps lock order stable across concurrent upserts
func sortedNames(deltas map[string]int64) []string {
	names := make([]string, 0, len(deltas))
	for name, delta := range deltas {
		if delta != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
