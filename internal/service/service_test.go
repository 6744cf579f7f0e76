package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kiddoquest/internal/config"
	"kiddoquest/internal/counters"
	"kiddoquest/internal/database"
	"kiddoquest/internal/logger"
	"kiddoquest/internal/models"
	"kiddoquest/internal/repository"
	"kiddoquest/internal/rules"
)

// testEnv wires every service onto a migrated sqlite database
type testEnv struct {
	db        *database.DB
	store     *repository.Store
	clock     *time.Time
	penalties *PenaltyService
	streaks   *StreakService
	goals     *GoalService
	reports   *ReportService
	events    *EventService
	rules     *RuleService
	counters  counters.Store
}

var testNow = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := database.Initialize(filepath.Join(t.TempDir(), "service_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	fsys, err := database.MigrationsFS("")
	require.NoError(t, err)
	_, err = db.RunMigrations(context.Background(), fsys)
	require.NoError(t, err)

	clock := testNow
	env := &testEnv{db: db, store: repository.NewStore(db), clock: &clock, counters: counters.NewSQLStore(db)}
	deps := Deps{
		DB:       db,
		Logger:   logger.Nop(),
		Counters: env.counters,
		Config:   config.DefaultEngineConfig(),
		Now:      func() time.Time { return *env.clock },
	}

	calculator, err := rules.NewCalculator(rules.DefaultSeverityTable())
	require.NoError(t, err)
	evaluator := rules.NewEvaluator(map[string]rules.Predicate{
		"big_spend": func(e models.Event) bool { return e.XPSpent() >= 100 },
	})

	env.penalties = NewPenaltyService(deps, evaluator, calculator)
	env.streaks = NewStreakService(deps, env.penalties)
	env.goals = NewGoalService(deps)
	env.reports = NewReportService(deps, nil)
	env.events = NewEventService(deps, env.penalties, env.streaks, env.goals)
	env.rules = NewRuleService(deps, evaluator, calculator)
	return env
}

func (e *testEnv) advance(d time.Duration) {
	*e.clock = e.clock.Add(d)
}

func (e *testEnv) seedFamily(t *testing.T, familyID, timezone string) {
	t.Helper()
	require.NoError(t, e.store.Families.CreateFamily(context.Background(), &models.Family{
		ID: familyID, Name: "The " + familyID + " family", Timezone: timezone, CreatedAt: testNow, UpdatedAt: testNow,
	}))
}

func (e *testEnv) seedChild(t *testing.T, familyID, childID string, xp int) {
	t.Helper()
	require.NoError(t, e.store.Children.CreateChild(context.Background(), &models.Child{
		ID: childID, FamilyID: familyID, Name: childID, XP: xp, CreatedAt: testNow, UpdatedAt: testNow,
	}))
}

func (e *testEnv) seedRule(t *testing.T, rule models.PenaltyRule) models.PenaltyRule {
	t.Helper()
	if rule.ID == "" {
		rule.ID = newID()
	}
	if rule.Name == "" {
		rule.Name = "rule " + rule.ID
	}
	if rule.Severity == "" {
		rule.Severity = models.SeverityMinor
	}
	rule.IsActive = true
	rule.CreatedBy = "parent-1"
	rule.CreatedAt = testNow
	rule.UpdatedAt = testNow
	require.NoError(t, e.store.Rules.CreateRule(context.Background(), &rule))
	return rule
}

func (e *testEnv) childXP(t *testing.T, childID string) int {
	t.Helper()
	child, err := e.store.Children.GetChildByID(context.Background(), childID)
	require.NoError(t, err)
	require.NotNil(t, child)
	return child.XP
}

var parent = models.Identity{UserID: "parent-1", FamilyID: "fam-1", Role: models.RoleParent}

func questCompleted(id, childID string, at time.Time, xp int, category string) models.Event {
	return models.Event{
		ID:         id,
		FamilyID:   "fam-1",
		ChildID:    childID,
		OccurredAt: at,
		Quest:      &models.QuestCompletionEvent{QuestID: "", Category: category, XPEarned: xp},
	}
}
