package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiddoquest/internal/models"
	"kiddoquest/internal/streaks"
)

func TestRecordActivityScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedFamily(t, "fam-1", "America/New_York")
	env.seedChild(t, "fam-1", "child-1", 0)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	day := func(d, hour int) time.Time { return time.Date(2024, 6, d, hour, 0, 0, 0, ny) }

	steps := []struct {
		at         time.Time
		transition streaks.Transition
		length     int
		broken     bool
		breakEvent bool
	}{
		{day(1, 9), streaks.Started, 1, false, false},
		{day(1, 22), streaks.SameDay, 1, false, false},
		// 23:30 local is already the next UTC day; only local days count.
		{time.Date(2024, 6, 2, 23, 30, 0, 0, ny), streaks.Extended, 2, false, false},
		{day(4, 8), streaks.Reset, 1, true, true},
		{day(5, 8), streaks.Extended, 2, false, false},
	}

	for i, step := range steps {
		res, err := env.streaks.RecordActivity(ctx, "fam-1", "child-1", step.at)
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, step.transition, res.Transition, "step %d", i)
		assert.Equal(t, step.length, res.Streak.CurrentLength, "step %d", i)
		assert.Equal(t, step.broken, res.Streak.Broken, "step %d", i)
		assert.Equal(t, step.breakEvent, res.Break != nil, "step %d", i)
	}

	st, err := env.store.Streaks.GetStreak(ctx, "child-1", models.StreakTypeDaily)
	require.NoError(t, err)
	assert.Equal(t, 2, st.CurrentLength)
	assert.Equal(t, 2, st.LongestLength)
	assert.Equal(t, 4, st.TotalActiveDays)
}

func TestSweepStaleBreaksOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedFamily(t, "fam-1", "UTC")
	env.seedChild(t, "fam-1", "child-1", 100)
	env.seedChild(t, "fam-1", "child-2", 100)
	env.seedRule(t, models.PenaltyRule{
		FamilyID:     "fam-1",
		Trigger:      models.TriggerStreakBreak,
		Conditions:   models.RuleConditions{StreakLength: &models.Range{Min: f64(3)}},
		Consequences: models.Consequences{XPDeduction: 10},
		AutoApply:    true,
	})

	// child-1 had a five day streak, child-2 was active recently
	for d := 0; d < 5; d++ {
		_, err := env.streaks.RecordActivity(ctx, "fam-1", "child-1", testNow.AddDate(0, 0, d-7))
		require.NoError(t, err)
	}
	_, err := env.streaks.RecordActivity(ctx, "fam-1", "child-2", testNow.Add(-2*time.Hour))
	require.NoError(t, err)

	summary, err := env.streaks.SweepStale(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Applied)
	assert.Equal(t, 90, env.childXP(t, "child-1"))
	assert.Equal(t, 100, env.childXP(t, "child-2"))

	st, err := env.store.Streaks.GetStreak(ctx, "child-1", models.StreakTypeDaily)
	require.NoError(t, err)
	assert.True(t, st.Broken)
	assert.Equal(t, 5, st.CurrentLength)

	// Already broken streaks are not flagged or penalized again
	summary, err = env.streaks.SweepStale(ctx, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 90, env.childXP(t, "child-1"))

	// Returning after the sweep starts a new streak without a second break event
	res, err := env.streaks.RecordActivity(ctx, "fam-1", "child-1", testNow.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, streaks.Reset, res.Transition)
	assert.Nil(t, res.Break)
}

func f64(v float64) *float64 { return &v }
