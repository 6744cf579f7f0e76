package service

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiddoquest/internal/models"
)

func TestCreateGoal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedFamily(t, "fam-1", "UTC")

	tests := []struct {
		name     string
		identity models.Identity
		goal     models.FamilyGoal
		wantErr  error
	}{
		{"valid", parent, models.FamilyGoal{FamilyID: "fam-1", Title: "Camping trip", Type: models.GoalTotalXP, TargetValue: 500}, nil},
		{"missing title", parent, models.FamilyGoal{FamilyID: "fam-1", Type: models.GoalTotalXP, TargetValue: 500}, ErrValidation},
		{"zero target", parent, models.FamilyGoal{FamilyID: "fam-1", Title: "x", Type: models.GoalTotalQuests}, ErrValidation},
		{"category without category", parent, models.FamilyGoal{FamilyID: "fam-1", Title: "x", Type: models.GoalCategoryQuests, TargetValue: 3}, ErrValidation},
		{"unknown type", parent, models.FamilyGoal{FamilyID: "fam-1", Title: "x", Type: "streaks", TargetValue: 3}, ErrValidation},
		{"child cannot create", models.Identity{UserID: "k", FamilyID: "fam-1", Role: models.RoleChild},
			models.FamilyGoal{FamilyID: "fam-1", Title: "x", Type: models.GoalTotalXP, TargetValue: 3}, ErrPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			goal := tt.goal
			err := env.goals.CreateGoal(ctx, tt.identity, &goal)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			stored, err := env.store.Goals.GetGoalByID(ctx, goal.ID)
			require.NoError(t, err)
			assert.Equal(t, models.GoalActive, stored.Status)
			assert.Equal(t, 0, stored.CurrentProgress)
		})
	}
}

func TestRuleServiceCreateRule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedFamily(t, "fam-1", "UTC")

	bad := models.PenaltyRule{FamilyID: "fam-1", Name: "No trigger", Severity: models.SeverityMinor,
		Consequences: models.Consequences{XPDeduction: 5}}
	assert.ErrorIs(t, env.rules.CreateRule(ctx, parent, &bad), ErrValidation)

	bad = models.PenaltyRule{FamilyID: "fam-1", Name: "Bad severity", Trigger: models.TriggerMissedQuest,
		Severity: "catastrophic", Consequences: models.Consequences{XPDeduction: 5}}
	assert.ErrorIs(t, env.rules.CreateRule(ctx, parent, &bad), ErrValidation)

	bad = models.PenaltyRule{FamilyID: "fam-1", Name: "Unknown predicate", Trigger: models.TriggerCustom,
		Severity: models.SeverityMinor, Conditions: models.RuleConditions{Custom: "moon_phase"},
		Consequences: models.Consequences{XPDeduction: 5}}
	assert.ErrorIs(t, env.rules.CreateRule(ctx, parent, &bad), ErrValidation)

	rule := models.PenaltyRule{FamilyID: "fam-1", Name: "Late homework", Trigger: models.TriggerLateCompletion,
		Severity: models.SeverityModerate, Consequences: models.Consequences{XPDeduction: 5}, AutoApply: true}
	require.NoError(t, env.rules.CreateRule(ctx, parent, &rule))
	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, "parent-1", rule.CreatedBy)

	require.NoError(t, env.rules.SetActive(ctx, parent, rule.ID, false))
	active, err := env.store.Rules.GetActiveRules(ctx, "fam-1", []models.Trigger{models.TriggerLateCompletion})
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, env.rules.SetActive(ctx, parent, "missing", true), ErrNotFound)
}

func TestExportFamily(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedFamily(t, "fam-1", "UTC")
	env.seedFamily(t, "fam-2", "UTC")
	env.seedChild(t, "fam-1", "child-1", 100)
	env.seedChild(t, "fam-2", "child-9", 100)
	rule := env.seedRule(t, models.PenaltyRule{FamilyID: "fam-1", Trigger: models.TriggerRuleViolation,
		Consequences: models.Consequences{XPDeduction: 10}, AutoApply: true})
	env.seedRule(t, models.PenaltyRule{FamilyID: "fam-2", Trigger: models.TriggerRuleViolation,
		Consequences: models.Consequences{XPDeduction: 10}})

	_, err := env.penalties.ApplyManual(ctx, parent, rule.ID, "child-1")
	require.NoError(t, err)
	_, err = env.events.HandleQuestCompleted(ctx, questCompleted("evt-1", "child-1", testNow, 10, "chores"))
	require.NoError(t, err)

	exports := NewExportService(env.penalties.Deps)
	var buf bytes.Buffer
	require.NoError(t, exports.Export(ctx, parent, "fam-1", time.Time{}, &buf))

	var data FamilyExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, "fam-1", data.Family.ID)
	assert.Equal(t, "sqlite3", data.DatabaseType)
	assert.Len(t, data.Children, 1)
	assert.Len(t, data.Rules, 1)
	assert.Len(t, data.Penalties, 1)
	assert.Len(t, data.Streaks, 1)

	later, err := exports.Collect(ctx, parent, "fam-1", testNow.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, later.Penalties)

	_, err = exports.Collect(ctx, models.Identity{UserID: "k", FamilyID: "fam-1", Role: models.RoleChild}, "fam-1", time.Time{})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = exports.Collect(ctx, models.Identity{UserID: "ops", Role: models.RoleSystem}, "missing", time.Time{})
	assert.ErrorIs(t, err, ErrNotFound)
}
