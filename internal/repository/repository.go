// Package repository is the SQL document store. Every repository works on a
// database.DBTX, so the same code runs directly against the pool or inside a
// transaction opened by database.DB.RunInTx.
package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"kiddoquest/internal/database"
)

// Store bundles the repositories bound to one connection or transaction
type Store struct {
	Families   *FamilyRepository
	Children   *ChildRepository
	Rules      *RuleRepository
	Penalties  *PenaltyRepository
	Offenses   *OffenseRepository
	Streaks    *StreakRepository
	Goals      *GoalRepository
	Quests     *QuestRepository
	Events     *EventRepository
	Reports    *ReportRepository
	SystemLogs *SystemLogRepository
}

// NewStore creates every repository on db
func NewStore(db database.DBTX) *Store {
	return &Store{
		Families:   NewFamilyRepository(db),
		Children:   NewChildRepository(db),
		Rules:      NewRuleRepository(db),
		Penalties:  NewPenaltyRepository(db),
		Offenses:   NewOffenseRepository(db),
		Streaks:    NewStreakRepository(db),
		Goals:      NewGoalRepository(db),
		Quests:     NewQuestRepository(db),
		Events:     NewEventRepository(db),
		Reports:    NewReportRepository(db),
		SystemLogs: NewSystemLogRepository(db),
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// utc normalizes timestamps so text-backed dialects compare them correctly
func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func toJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json: %w", err)
	}
	return string(b), nil
}

func fromJSON(data string, v interface{}) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("failed to decode json: %w", err)
	}
	return nil
}
