package models

import "time"

// GoalType selects how events contribute to a family goal
type GoalType string

const (
	GoalTotalQuests    GoalType = "total_quests"
	GoalTotalXP        GoalType = "total_xp"
	GoalCategoryQuests GoalType = "category_quests"
)

// GoalStatus is active until the target is reached, then completed forever
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
)

// FamilyGoal is a shared target the whole family works towards
type FamilyGoal struct {
	ID              string     `json:"id"`
	FamilyID        string     `json:"family_id"`
	Title           string     `json:"title"`
	Type            GoalType   `json:"type"`
	Category        string     `json:"category,omitempty"`
	TargetValue     int        `json:"target_value"`
	CurrentProgress int        `json:"current_progress"`
	Status          GoalStatus `json:"status"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	Version         int        `json:"-"`
}
