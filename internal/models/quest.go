package models

import "time"

// Quest statuses
const (
	QuestPending   = "pending"
	QuestCompleted = "completed"
	QuestMissed    = "missed"
)

// Quest is a task assigned to a child
type Quest struct {
	ID          string     `json:"id"`
	FamilyID    string     `json:"family_id"`
	AssignedTo  string     `json:"assigned_to"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Difficulty  string     `json:"difficulty,omitempty"`
	XPReward    int        `json:"xp_reward"`
	Status      string     `json:"status"`
	TemplateID  string     `json:"template_id,omitempty"`
	PenaltyID   string     `json:"penalty_id,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// QuestTemplate is a reusable quest definition, used for remedial quests
type QuestTemplate struct {
	ID            string `json:"id"`
	FamilyID      string `json:"family_id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Category      string `json:"category,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`
	XPReward      int    `json:"xp_reward"`
	DurationHours int    `json:"duration_hours,omitempty"`
}
