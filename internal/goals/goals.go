// Package goals computes family goal progress from events.
package goals

import (
	"time"

	"kiddoquest/internal/models"
)

// ContributionFor returns how much an event adds to a goal. Only quest
// completions contribute; category goals ignore other categories.
func ContributionFor(goal models.FamilyGoal, event models.Event) int {
	if event.Kind != models.EventQuestCompleted || event.Quest == nil {
		return 0
	}
	switch goal.Type {
	case models.GoalTotalQuests:
		return 1
	case models.GoalTotalXP:
		if event.Quest.XPEarned > 0 {
			return event.Quest.XPEarned
		}
	case models.GoalCategoryQuests:
		if goal.Category != "" && event.Quest.Category == goal.Category {
			return 1
		}
	}
	return 0
}

// Contribute adds the event's contribution to the goal. completed is true only
// on the call that moves the goal from active to completed.
func Contribute(goal models.FamilyGoal, event models.Event, now time.Time) (updated models.FamilyGoal, completed bool) {
	updated = goal
	value := ContributionFor(goal, event)
	if value <= 0 {
		return updated, false
	}

	updated.CurrentProgress += value
	if updated.Status != models.GoalCompleted && updated.CurrentProgress >= updated.TargetValue {
		at := now
		updated.Status = models.GoalCompleted
		updated.CompletedAt = &at
		return updated, true
	}
	return updated, false
}
