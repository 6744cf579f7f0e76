package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiddoquest/internal/database"
	"kiddoquest/internal/models"
)

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return database.New(db, database.NewPostgresDialect()), mock
}

func TestChildRepository_UpdateXP(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChildRepository(db)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	update := regexp.QuoteMeta("UPDATE children SET xp = $1, version = version + 1, updated_at = $2 WHERE id = $3 AND version = $4")

	// 1. Success advances the version
	mock.ExpectExec(update).
		WithArgs(40, sqlmock.AnyArg(), "child-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	child := &models.Child{ID: "child-1", XP: 100, Version: 3}
	err := repo.UpdateXP(ctx, child, 40, now)
	assert.NoError(t, err)
	assert.Equal(t, 40, child.XP)
	assert.Equal(t, 4, child.Version)

	// 2. Stale version is a conflict and leaves the struct alone
	mock.ExpectExec(update).
		WithArgs(0, sqlmock.AnyArg(), "child-1", 4).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateXP(ctx, child, 0, now)
	assert.ErrorIs(t, err, database.ErrConflict)
	assert.Equal(t, 40, child.XP)
	assert.Equal(t, 4, child.Version)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepository_GetActiveRules(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRuleRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "family_id", "name", "description", "trigger_type", "severity",
		"conditions", "consequences", "escalation", "is_active", "auto_apply", "appealable", "created_by",
		"created_at", "updated_at"}).
		AddRow("rule-1", "fam-1", "Missed chores", "", "missed_quest", "moderate",
			`{"quest_difficulty":"hard"}`, `{"xp_deduction":10}`, nil, true, true, true, "parent-1", now, now).
		AddRow("rule-2", "fam-1", "Repeat offender", "", "custom", "major",
			`{"custom":"weekend"}`, `{"xp_deduction":5}`, `{"second_offense":{"xp_deduction":20},"reset_period_hours":48}`,
			true, false, false, "parent-1", now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM penalty_rules WHERE family_id = $1 AND is_active = TRUE AND trigger_type IN ($2, $3) ORDER BY created_at, id")).
		WithArgs("fam-1", "missed_quest", "custom").
		WillReturnRows(rows)

	rules, err := repo.GetActiveRules(context.Background(), "fam-1", []models.Trigger{models.TriggerMissedQuest, models.TriggerCustom})
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, models.TriggerMissedQuest, rules[0].Trigger)
	assert.Equal(t, "hard", rules[0].Conditions.QuestDifficulty)
	assert.Equal(t, 10, rules[0].Consequences.XPDeduction)
	assert.Nil(t, rules[0].Escalation)

	require.NotNil(t, rules[1].Escalation)
	require.NotNil(t, rules[1].Escalation.SecondOffense)
	assert.Equal(t, 20, rules[1].Escalation.SecondOffense.XPDeduction)
	assert.Equal(t, 48, rules[1].Escalation.ResetPeriodHours)
	assert.False(t, rules[1].AutoApply)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPenaltyRepository_GetPenaltyByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPenaltyRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM applied_penalties WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	p, err := repo.GetPenaltyByID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPenaltyRepository_UpdatePenalty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPenaltyRepository(db)
	appealedAt := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE applied_penalties")).
		WithArgs("active", "", sqlmock.AnyArg(), "unfair", "pending", sqlmock.AnyArg(), "", "", "pen-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := &models.AppliedPenalty{
		ID:           "pen-1",
		Status:       models.PenaltyActive,
		AppealedAt:   &appealedAt,
		AppealReason: "unfair",
		AppealStatus: models.AppealPending,
		Version:      2,
	}
	require.NoError(t, repo.UpdatePenalty(context.Background(), p))
	assert.Equal(t, 3, p.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuestRepository_MarkMissed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQuestRepository(db)
	query := regexp.QuoteMeta("UPDATE quests SET status = $1 WHERE id = $2 AND status = $3")

	mock.ExpectExec(query).WithArgs("missed", "quest-1", "pending").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("missed", "quest-1", "pending").WillReturnResult(sqlmock.NewResult(0, 0))

	flagged, err := repo.MarkMissed(context.Background(), "quest-1")
	assert.NoError(t, err)
	assert.True(t, flagged)

	flagged, err = repo.MarkMissed(context.Background(), "quest-1")
	assert.NoError(t, err)
	assert.False(t, flagged, "a quest must only be flagged once")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuestRepository_MarkCompletedScopedToChild(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQuestRepository(db)
	query := regexp.QuoteMeta(`UPDATE quests SET status = $1, completed_at = $2
		WHERE id = $3 AND family_id = $4 AND assigned_to = $5 AND status = $6`)
	at := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(query).WithArgs("completed", at, "quest-1", "fam-1", "child-2", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	marked, err := repo.MarkCompleted(context.Background(), "quest-1", "fam-1", "child-2", at)
	assert.NoError(t, err)
	assert.False(t, marked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStreakRepository_SaveStreak(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStreakRepository(db)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO streaks")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE streaks")).
		WithArgs(2, 2, sqlmock.AnyArg(), sqlmock.AnyArg(), 2, false, sqlmock.AnyArg(), "child-1", "daily", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	st := &models.Streak{ChildID: "child-1", FamilyID: "fam-1", Type: models.StreakTypeDaily,
		CurrentLength: 1, LongestLength: 1, StartDate: now, LastActivityDate: now, TotalActiveDays: 1}
	require.NoError(t, repo.SaveStreak(ctx, st))
	assert.Equal(t, 1, st.Version)

	st.CurrentLength, st.LongestLength, st.TotalActiveDays = 2, 2, 2
	require.NoError(t, repo.SaveStreak(ctx, st))
	assert.Equal(t, 2, st.Version)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepository_RoundTripsPayload(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventRepository(db)
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "family_id", "child_id", "kind", "occurred_at", "payload"}).
		AddRow("evt-1", "fam-1", "child-1", "quest_completed", at, `{"quest":{"quest_id":"q-1","category":"reading","xp_earned":15}}`)
	mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE id = $1")).WithArgs("evt-1").WillReturnRows(rows)

	e, err := repo.GetEventByID(context.Background(), "evt-1")
	require.NoError(t, err)
	require.NotNil(t, e.Quest)
	assert.Equal(t, models.EventQuestCompleted, e.Kind)
	assert.Equal(t, "reading", e.Quest.Category)
	assert.Equal(t, 15, e.Quest.XPEarned)
	assert.Nil(t, e.Redemption)
	assert.NoError(t, mock.ExpectationsWereMet())
}
